package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"github.com/aussiebroadwan/mediscan/pkg/slogx"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type UserService struct {
	Store store.Store
}

type UserPage struct {
	Users  []domain.Profile `json:"users"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// ListUsers clamps the page size to [1, MaxPageSize].
func (s *UserService) ListUsers(ctx context.Context, limit, offset int) (UserPage, error) {
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	offset = max(offset, 0)

	users, total, err := s.Store.Users().ListUsers(ctx, limit, offset)
	if err != nil {
		return UserPage{}, err
	}

	page := UserPage{Users: make([]domain.Profile, 0, len(users)), Total: total, Limit: limit, Offset: offset}
	for _, u := range users {
		page.Users = append(page.Users, u.Profile())
	}
	return page, nil
}

func (s *UserService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

func (s *UserService) SetRole(ctx context.Context, userID string, role domain.Role) (domain.User, error) {
	if !role.Valid() {
		return domain.User{}, invalid("Invalid role")
	}
	if err := s.Store.Users().SetRole(ctx, userID, role); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	slogx.FromContext(ctx).Info("user role changed", slog.String("target_user_id", userID), slog.String("role", string(role)))
	return s.GetUser(ctx, userID)
}

// SetActive toggles the account. Deactivating also revokes every refresh
// token the user holds.
func (s *UserService) SetActive(ctx context.Context, userID string, active bool) (domain.User, error) {
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetActive(ctx, userID, active); err != nil {
			return err
		}
		if active {
			return nil
		}
		_, err := tx.Users().BumpTokenVersion(ctx, userID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user status changed", slog.String("target_user_id", userID), slog.Bool("active", active))
	return s.GetUser(ctx, userID)
}
