package http

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/service"
	"github.com/aussiebroadwan/mediscan/pkg/httpx"
	"github.com/aussiebroadwan/mediscan/pkg/jwtx"
)

// sessionResolver lets httpx.Protect load users through the account service.
type sessionResolver struct {
	accounts *service.AccountService
}

func (s sessionResolver) ResolveAccess(ctx context.Context, v jwtx.Verification) (httpx.Identity, error) {
	u, err := s.accounts.Authenticate(ctx, v.UserID())
	return identity(u, err)
}

func (s sessionResolver) ResolveRefresh(ctx context.Context, v jwtx.Verification) (httpx.Identity, error) {
	u, err := s.accounts.AuthenticateRefresh(ctx, v.UserID(), v.TokenVersion())
	return identity(u, err)
}

func identity(u domain.User, err error) (httpx.Identity, error) {
	switch {
	case err == nil:
		return httpx.Identity{UserID: u.ID, Role: string(u.Role)}, nil
	case errors.Is(err, service.ErrUserNotFound):
		return httpx.Identity{}, httpx.Unauthorized("User not found").WithCause(err)
	case errors.Is(err, service.ErrAccountDisabled):
		return httpx.Identity{}, httpx.Unauthorized("Account is disabled").WithCause(err)
	case errors.Is(err, service.ErrInvalidRefresh):
		return httpx.Identity{}, httpx.Unauthorized("Invalid refresh token").WithCause(err)
	}
	return httpx.Identity{}, httpx.Internal(err)
}
