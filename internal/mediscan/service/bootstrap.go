package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"github.com/aussiebroadwan/mediscan/pkg/cryptox"
	"github.com/aussiebroadwan/mediscan/pkg/idx"
	"github.com/aussiebroadwan/mediscan/pkg/slogx"
)

var (
	ErrBootstrapDisabled     = errors.New("bootstrap is disabled")
	ErrBootstrapAlready      = errors.New("system already bootstrapped")
	ErrBootstrapUnauthorized = errors.New("unauthorized bootstrap attempt")
)

type BootstrapService struct {
	Store  store.Store
	Hasher *cryptox.Hasher

	// Token is the pre-shared bootstrap token. Empty disables bootstrap.
	Token string
}

type BootstrapInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (s *BootstrapService) Enabled() bool { return s.Token != "" }

// Bootstrap creates the first admin account.
func (s *BootstrapService) Bootstrap(ctx context.Context, token string, in BootstrapInput) (domain.User, error) {
	l := slogx.FromContext(ctx)

	if !s.Enabled() {
		return domain.User{}, ErrBootstrapDisabled
	}
	if !cryptox.EqualSecret(token, s.Token) {
		l.Warn("unauthorized bootstrap attempt")
		return domain.User{}, ErrBootstrapUnauthorized
	}

	email, err := domain.ParseEmail(in.Email)
	if err != nil {
		return domain.User{}, invalid("Please provide a valid email")
	}
	if len(in.Password) < MinPasswordLength {
		return domain.User{}, invalid("Password must be at least 8 characters")
	}
	if in.FirstName == "" {
		in.FirstName = "Admin"
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	u := domain.User{
		ID:         idx.NewAt(now).String(),
		Email:      email,
		Username:   domain.UsernameFromEmail(email),
		Credential: domain.LocalCredential{Hash: hash},
		Role:       domain.RoleAdmin,
		Active:     true,
		Details:    domain.NewDetails(in.FirstName, in.LastName),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		exists, err := tx.Users().HasAdmin(ctx)
		if err != nil {
			return err
		}
		if exists {
			return ErrBootstrapAlready
		}
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrUserExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrBootstrapAlready) {
			l.Warn("attempted bootstrap on already-bootstrapped system")
		}
		return domain.User{}, err
	}

	l.Info("successfully bootstrapped system", slog.String("admin_user_id", u.ID))
	return u, nil
}
