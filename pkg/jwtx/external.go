package jwtx

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KeyResolver finds the public key for a kid.
type KeyResolver interface {
	Key(ctx context.Context, kid string) (any, error)
}

// ExternalVerifier validates ID tokens minted by a managed identity
// provider, signed with RS256 or ES256.
type ExternalVerifier struct {
	keys     KeyResolver
	issuer   string
	audience []string
	leeway   time.Duration
	now      func() time.Time
}

// NewExternalVerifier returns a verifier. Issuer is mandatory; an empty
// audience list disables the audience check.
func NewExternalVerifier(keys KeyResolver, issuer string, audience []string) (*ExternalVerifier, error) {
	if keys == nil {
		return nil, errors.New("jwtx: external verifier needs a key resolver")
	}
	if issuer == "" {
		return nil, errors.New("jwtx: external verifier needs an issuer")
	}
	return &ExternalVerifier{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
		leeway:   30 * time.Second,
		now:      time.Now,
	}, nil
}

// Verify returns the claims of a valid token. The subject is required.
func (v *ExternalVerifier) Verify(ctx context.Context, token string) (ExternalClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(v.issuer),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)

	var claims ExternalClaims
	_, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: missing kid", ErrMalformed)
		}

		pub, err := v.keys.Key(ctx, kid)
		if err != nil {
			return nil, err
		}

		switch t.Method.Alg() {
		case jwt.SigningMethodRS256.Alg():
			if k, ok := pub.(*rsa.PublicKey); ok {
				return k, nil
			}
		case jwt.SigningMethodES256.Alg():
			if k, ok := pub.(*ecdsa.PublicKey); ok {
				return k, nil
			}
		}
		return nil, fmt.Errorf("jwtx: key %q does not match alg %s", kid, t.Method.Alg())
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownKID):
		return ExternalClaims{}, ErrUnknownKID
	case errors.Is(err, jwt.ErrTokenExpired):
		return ExternalClaims{}, ErrExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ExternalClaims{}, ErrIssuer
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ExternalClaims{}, ErrInvalidSig
	default:
		return ExternalClaims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if err := validateAudience(claims.Audience, v.audience); err != nil {
		return ExternalClaims{}, err
	}
	if claims.Subject == "" {
		return ExternalClaims{}, fmt.Errorf("%w: missing subject", ErrInvalidClaim)
	}
	return claims, nil
}
