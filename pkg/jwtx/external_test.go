package jwtx_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/mediscan/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const providerIssuer = "https://id.example.test"

type provider struct {
	rsaKey *rsa.PrivateKey
	ecKey  *ecdsa.PrivateKey
	hits   atomic.Int32
	srv    *httptest.Server
}

func newProvider(t *testing.T) *provider {
	t.Helper()

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	p := &provider{rsaKey: rsaKey, ecKey: ecKey}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.hits.Add(1)
		_ = json.NewEncoder(w).Encode(jwtx.JWKS{Keys: []jwtx.JWK{
			jwtx.NewRSAJWK("rsa-1", &rsaKey.PublicKey),
			jwtx.NewES256JWK("ec-1", &ecKey.PublicKey),
		}})
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *provider) sign(t *testing.T, method jwt.SigningMethod, kid string, claims jwtx.ExternalClaims) string {
	t.Helper()

	tok := jwt.NewWithClaims(method, claims)
	tok.Header["kid"] = kid

	var key any = p.rsaKey
	if method == jwt.SigningMethodES256 {
		key = p.ecKey
	}
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func baseClaims(sub string) jwtx.ExternalClaims {
	now := time.Now()
	return jwtx.ExternalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    providerIssuer,
			Subject:   sub,
			Audience:  jwt.ClaimStrings{"mediscan"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
		Email:     "ext@example.test",
		GivenName: "Ext",
	}
}

func TestExternalVerifier(t *testing.T) {
	p := newProvider(t)
	keys := jwtx.NewRemoteKeySet(p.srv.URL, p.srv.Client())

	v, err := jwtx.NewExternalVerifier(keys, providerIssuer, []string{"mediscan"})
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("rs256", func(t *testing.T) {
		claims, err := v.Verify(ctx, p.sign(t, jwt.SigningMethodRS256, "rsa-1", baseClaims("user_rsa")))
		require.NoError(t, err)
		require.Equal(t, "user_rsa", claims.Subject)
		require.Equal(t, "ext@example.test", claims.Email)
	})

	t.Run("es256", func(t *testing.T) {
		claims, err := v.Verify(ctx, p.sign(t, jwt.SigningMethodES256, "ec-1", baseClaims("user_ec")))
		require.NoError(t, err)
		require.Equal(t, "user_ec", claims.Subject)
	})

	t.Run("key type must match alg", func(t *testing.T) {
		_, err := v.Verify(ctx, p.sign(t, jwt.SigningMethodRS256, "ec-1", baseClaims("user")))
		require.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		c := baseClaims("user")
		c.Issuer = "https://evil.test"
		_, err := v.Verify(ctx, p.sign(t, jwt.SigningMethodRS256, "rsa-1", c))
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})

	t.Run("wrong audience", func(t *testing.T) {
		c := baseClaims("user")
		c.Audience = jwt.ClaimStrings{"other"}
		_, err := v.Verify(ctx, p.sign(t, jwt.SigningMethodRS256, "rsa-1", c))
		require.ErrorIs(t, err, jwtx.ErrAudience)
	})

	t.Run("expired", func(t *testing.T) {
		c := baseClaims("user")
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		_, err := v.Verify(ctx, p.sign(t, jwt.SigningMethodRS256, "rsa-1", c))
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})

	t.Run("missing subject", func(t *testing.T) {
		_, err := v.Verify(ctx, p.sign(t, jwt.SigningMethodRS256, "rsa-1", baseClaims("")))
		require.ErrorIs(t, err, jwtx.ErrInvalidClaim)
	})

	t.Run("unknown kid", func(t *testing.T) {
		_, err := v.Verify(ctx, p.sign(t, jwt.SigningMethodRS256, "rotated", baseClaims("user")))
		require.ErrorIs(t, err, jwtx.ErrUnknownKID)
	})

	// One fetch served every case above: the unknown kid happened inside
	// the MinRefresh window.
	require.Equal(t, int32(1), p.hits.Load())
}

func TestNewExternalVerifierValidation(t *testing.T) {
	_, err := jwtx.NewExternalVerifier(nil, providerIssuer, nil)
	require.Error(t, err)

	_, err = jwtx.NewExternalVerifier(jwtx.NewRemoteKeySet("http://127.0.0.1/jwks", nil), "", nil)
	require.Error(t, err)
}
