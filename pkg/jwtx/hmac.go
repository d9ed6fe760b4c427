package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest HMAC secret accepted, matching the
// HS256 output size.
const MinSecretLength = 32

var ErrWeakSecret = fmt.Errorf("jwtx: secret must be at least %d bytes", MinSecretLength)

// HMACConfig configures one class of session token.
type HMACConfig struct {
	Class  Class
	Secret []byte
	TTL    time.Duration
	Issuer string

	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

// HMAC issues and verifies HS256 session tokens of a single class.
type HMAC struct {
	class  Class
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// NewHMAC validates cfg and returns an issuer/verifier pair for its class.
func NewHMAC(cfg HMACConfig) (*HMAC, error) {
	if cfg.Class != ClassAccess && cfg.Class != ClassRefresh {
		return nil, fmt.Errorf("jwtx: unknown token class %q", cfg.Class)
	}
	if len(cfg.Secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("jwtx: ttl must be positive")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(now),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &HMAC{
		class:  cfg.Class,
		secret: append([]byte(nil), cfg.Secret...),
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    now,
		parser: jwt.NewParser(opts...),
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (h *HMAC) TTL() time.Duration { return h.ttl }

// Issue signs a token for userID. The version is embedded only when non-zero.
func (h *HMAC) Issue(userID string, version int64) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("jwtx: empty user id")
	}

	now := h.now().UTC()
	exp := now.Add(h.ttl)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    h.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        NewJTI(),
		},
		UserID:       userID,
		Class:        h.class,
		TokenVersion: version,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwtx: sign %s token: %w", h.class, err)
	}
	return signed, exp, nil
}

// Verify checks signature, algorithm, expiry, issuer and class.
func (h *HMAC) Verify(token string) Verification {
	if token == "" {
		return rejected(ErrMalformed)
	}

	var claims SessionClaims
	_, err := h.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return h.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return rejected(ErrExpired)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return rejected(ErrNotYetValid)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return rejected(ErrInvalidSig)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return rejected(ErrIssuer)
	default:
		return rejected(fmt.Errorf("%w: %v", ErrMalformed, err))
	}

	if claims.Class != h.class {
		return rejected(ErrWrongClass)
	}
	if claims.UserID == "" {
		return rejected(ErrInvalidClaim)
	}
	return verified(claims)
}
