package service

import (
	"errors"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/pkg/cryptox"
	"github.com/aussiebroadwan/mediscan/pkg/jwtx"
)

var ErrSameSecrets = errors.New("access and refresh token secrets must differ")

type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Now           func() time.Time
}

// TokenService issues and verifies the two session token classes, each
// under its own secret.
type TokenService struct {
	access  *jwtx.HMAC
	refresh *jwtx.HMAC
}

func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cryptox.EqualSecret(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, ErrSameSecrets
	}

	access, err := jwtx.NewHMAC(jwtx.HMACConfig{
		Class:  jwtx.ClassAccess,
		Secret: []byte(cfg.AccessSecret),
		TTL:    cfg.AccessTTL,
		Issuer: cfg.Issuer,
		Now:    cfg.Now,
	})
	if err != nil {
		return nil, err
	}

	refresh, err := jwtx.NewHMAC(jwtx.HMACConfig{
		Class:  jwtx.ClassRefresh,
		Secret: []byte(cfg.RefreshSecret),
		TTL:    cfg.RefreshTTL,
		Issuer: cfg.Issuer,
		Now:    cfg.Now,
	})
	if err != nil {
		return nil, err
	}

	return &TokenService{access: access, refresh: refresh}, nil
}

func (s *TokenService) IssueAccessToken(userID string) (string, time.Time, error) {
	return s.access.Issue(userID, 0)
}

// IssueRefreshToken binds the token to the user's current token version.
func (s *TokenService) IssueRefreshToken(userID string, version int64) (string, time.Time, error) {
	return s.refresh.Issue(userID, version)
}

func (s *TokenService) VerifyAccessToken(token string) jwtx.Verification {
	return s.access.Verify(token)
}

func (s *TokenService) VerifyRefreshToken(token string) jwtx.Verification {
	return s.refresh.Verify(token)
}

func (s *TokenService) RefreshTTL() time.Duration { return s.refresh.TTL() }

// IssueSession mints a fresh access and refresh token pair for u.
func (s *TokenService) IssueSession(u domain.User) (domain.Session, error) {
	access, accessExp, err := s.IssueAccessToken(u.ID)
	if err != nil {
		return domain.Session{}, err
	}
	refresh, refreshExp, err := s.IssueRefreshToken(u.ID, u.TokenVersion)
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}
