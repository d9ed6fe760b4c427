package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"github.com/aussiebroadwan/mediscan/pkg/cryptox"
	"github.com/aussiebroadwan/mediscan/pkg/idx"
	"github.com/aussiebroadwan/mediscan/pkg/jwtx"
	"github.com/aussiebroadwan/mediscan/pkg/slogx"
)

const MinPasswordLength = 8

// ExternalVerifier checks identity tokens from a managed provider.
type ExternalVerifier interface {
	Verify(ctx context.Context, token string) (jwtx.ExternalClaims, error)
}

type AccountService struct {
	Store  store.Store
	Hasher *cryptox.Hasher
	Tokens *TokenService

	// External is nil when external login is not configured.
	External ExternalVerifier

	Lockout domain.LockoutPolicy
	Now     func() time.Time
}

type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// AuthResult is what a successful sign-in hands back to the client.
type AuthResult struct {
	User    domain.User
	Session domain.Session
}

func (s *AccountService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *AccountService) policy() domain.LockoutPolicy {
	if s.Lockout.MaxAttempts <= 0 || s.Lockout.Duration <= 0 {
		return domain.DefaultLockoutPolicy
	}
	return s.Lockout
}

func (s *AccountService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	email, err := domain.ParseEmail(in.Email)
	if err != nil {
		return AuthResult{}, invalid("Please provide a valid email")
	}
	if len(in.Password) < MinPasswordLength {
		return AuthResult{}, invalid(fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	first, last := strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName)
	if first == "" || last == "" {
		return AuthResult{}, invalid("First name and last name are required")
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	u := domain.User{
		ID:         idx.NewAt(now).String(),
		Email:      email,
		Username:   domain.UsernameFromEmail(email),
		Credential: domain.LocalCredential{Hash: hash},
		Role:       domain.RoleUser,
		Active:     true,
		Details:    domain.NewDetails(first, last),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return AuthResult{}, ErrUserExists
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	slogx.FromContext(ctx).Info("user registered", slog.String("user_id", u.ID))
	return s.session(u)
}

// Login authenticates a local account. Every way of not knowing the right
// password for a usable account yields ErrInvalidCredentials.
func (s *AccountService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	l := slogx.FromContext(ctx)
	now := s.now()

	u, err := s.Store.Users().GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		s.Hasher.VerifyDecoy(password)
		return AuthResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return AuthResult{}, fmt.Errorf("load user: %w", err)
	}

	hash, ok := u.PasswordHash()
	if !ok {
		s.Hasher.VerifyDecoy(password)
		return AuthResult{}, ErrInvalidCredentials
	}

	if u.Lockout.Locked(now) {
		s.Hasher.VerifyDecoy(password)
		l.Warn("login attempt on locked account", slog.String("user_id", u.ID))
		return AuthResult{}, ErrInvalidCredentials
	}

	if err := s.Hasher.Verify(password, hash); err != nil {
		if !errors.Is(err, cryptox.ErrMismatch) {
			return AuthResult{}, fmt.Errorf("verify password: %w", err)
		}

		policy := s.policy()
		lock, err := s.Store.Users().ModifyLockout(ctx, u.ID, func(cur domain.Lockout) domain.Lockout {
			return cur.RegisterFailure(now, policy)
		})
		if err != nil {
			return AuthResult{}, fmt.Errorf("record failed login: %w", err)
		}
		if lock.Locked(now) {
			l.Warn("account locked", slog.String("user_id", u.ID), slog.Time("locked_until", *lock.LockedUntil))
		}
		return AuthResult{}, ErrInvalidCredentials
	}

	if !u.Active {
		return AuthResult{}, ErrAccountDisabled
	}

	if err := s.Store.Users().RecordLogin(ctx, u.ID, now); err != nil {
		return AuthResult{}, fmt.Errorf("record login: %w", err)
	}
	u.LastLogin = &now
	u.Lockout = domain.Lockout{}

	l.Info("user logged in", slog.String("user_id", u.ID))
	return s.session(u)
}

// Refresh rotates a session from its refresh token. The new refresh token
// keeps the user's current token version.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	if refreshToken == "" {
		return AuthResult{}, ErrRefreshRequired
	}

	v := s.Tokens.VerifyRefreshToken(refreshToken)
	if !v.Valid() {
		slogx.FromContext(ctx).Debug("refresh token rejected", slog.Any("reason", v.Reason()))
		return AuthResult{}, ErrInvalidRefresh
	}

	u, err := s.AuthenticateRefresh(ctx, v.UserID(), v.TokenVersion())
	if err != nil {
		return AuthResult{}, err
	}
	return s.session(u)
}

// Logout revokes outstanding refresh tokens when the presented one is still
// valid. It never fails from the caller's point of view.
func (s *AccountService) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	v := s.Tokens.VerifyRefreshToken(refreshToken)
	if !v.Valid() {
		return
	}

	l := slogx.FromContext(ctx)
	version, err := s.Store.Users().BumpTokenVersion(ctx, v.UserID())
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			l.Error("failed to revoke refresh tokens", slog.String("user_id", v.UserID()), slog.Any("error", err))
		}
		return
	}
	l.Info("user logged out", slog.String("user_id", v.UserID()), slog.Int64("token_version", version))
}

// ExternalLogin exchanges a provider identity token for a session, creating
// the account on first sight of the subject.
func (s *AccountService) ExternalLogin(ctx context.Context, idToken string) (AuthResult, error) {
	if s.External == nil {
		return AuthResult{}, ErrExternalDisabled
	}
	if idToken == "" {
		return AuthResult{}, invalid("Identity token is required")
	}

	l := slogx.FromContext(ctx)
	claims, err := s.External.Verify(ctx, idToken)
	if err != nil {
		l.Debug("external token rejected", slog.Any("error", err))
		return AuthResult{}, ErrInvalidExternal
	}

	now := s.now()
	u, err := s.Store.Users().GetUserByExternalID(ctx, claims.Subject)
	switch {
	case err == nil:
		if !u.Active {
			return AuthResult{}, ErrAccountDisabled
		}
		if err := s.Store.Users().RecordLogin(ctx, u.ID, now); err != nil {
			return AuthResult{}, fmt.Errorf("record login: %w", err)
		}
		u.LastLogin = &now
		return s.session(u)
	case !errors.Is(err, store.ErrNotFound):
		return AuthResult{}, fmt.Errorf("load external user: %w", err)
	}

	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return AuthResult{}, ErrInvalidExternal
	}
	email, err := domain.ParseEmail(claims.Email)
	if err != nil {
		return AuthResult{}, ErrInvalidExternal
	}

	if _, err := s.Store.Users().GetUserByEmail(ctx, email); err == nil {
		return AuthResult{}, ErrEmailInUse
	} else if !errors.Is(err, store.ErrNotFound) {
		return AuthResult{}, fmt.Errorf("check email: %w", err)
	}

	first := strings.TrimSpace(claims.GivenName)
	if first == "" {
		first = domain.UsernameFromEmail(email)
	}
	u = domain.User{
		ID:         idx.NewAt(now).String(),
		Email:      email,
		Username:   domain.UsernameFromEmail(email),
		Credential: domain.ExternalCredential{ProviderID: claims.Subject},
		Role:       domain.RoleUser,
		Active:     true,
		LastLogin:  &now,
		Details:    domain.NewDetails(first, strings.TrimSpace(claims.FamilyName)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return AuthResult{}, ErrEmailInUse
		}
		return AuthResult{}, fmt.Errorf("create external user: %w", err)
	}

	l.Info("external user created", slog.String("user_id", u.ID))
	return s.session(u)
}

// Authenticate loads the user behind a verified access token.
func (s *AccountService) Authenticate(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !u.Active {
		return domain.User{}, ErrAccountDisabled
	}
	return u, nil
}

// AuthenticateRefresh is Authenticate plus the token version check that
// makes revoked refresh tokens stale.
func (s *AccountService) AuthenticateRefresh(ctx context.Context, userID string, version int64) (domain.User, error) {
	u, err := s.Authenticate(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if u.TokenVersion != version {
		return domain.User{}, ErrInvalidRefresh
	}
	return u, nil
}

func (s *AccountService) session(u domain.User) (AuthResult, error) {
	sess, err := s.Tokens.IssueSession(u)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue session: %w", err)
	}
	return AuthResult{User: u, Session: sess}, nil
}
