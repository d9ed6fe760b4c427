package jwtx

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

	"github.com/stretchr/testify/require"
)

// resolve matches the KeyResolver shape for a static set.
func (k *KeySet) resolve(_ context.Context, kid string) (any, error) { return k.Key(kid) }

func TestKeySetParsesRSAAndEC(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	ks := NewKeySet()
	require.NoError(t, ks.Add(NewRSAJWK("r", &rsaKey.PublicKey)))
	require.NoError(t, ks.Add(NewES256JWK("e", &ecKey.PublicKey)))
	require.Equal(t, 2, ks.Len())

	got, err := ks.resolve(context.Background(), "r")
	require.NoError(t, err)
	require.True(t, rsaKey.PublicKey.Equal(got))

	got, err = ks.Key("e")
	require.NoError(t, err)
	require.True(t, ecKey.PublicKey.Equal(got))

	_, err = ks.Key("missing")
	require.ErrorIs(t, err, ErrUnknownKID)
}

func TestKeySetRejects(t *testing.T) {
	ks := NewKeySet()

	require.Error(t, ks.Add(JWK{Kty: "OKP", Crv: "Ed25519", X: "AA"}))
	require.Error(t, ks.Add(JWK{Kty: "EC", Crv: "P-384", X: "AA", Y: "AA"}))
	require.Error(t, ks.Add(JWK{Kty: "RSA", N: "", E: "AQAB"}))
	require.Error(t, ks.Add(JWK{Kty: "RSA", Use: "enc", N: "AQAB", E: "AQAB"}))

	// A point that is not on the curve.
	require.Error(t, ks.Add(JWK{Kty: "EC", Crv: "P-256", X: "AQ", Y: "AQ"}))
}

func TestKeySetReplaceKeepsOldOnEmpty(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	ks := NewKeySet()
	require.NoError(t, ks.Add(NewRSAJWK("r", &rsaKey.PublicKey)))

	require.Error(t, ks.Replace(JWKS{Keys: []JWK{{Kty: "oct"}}}))
	require.Equal(t, 1, ks.Len())
}

func TestRemoteKeySetRefreshes(t *testing.T) {
	first, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	second, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var rotated atomic.Bool
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		set := JWKS{Keys: []JWK{NewRSAJWK("k1", &first.PublicKey)}}
		if rotated.Load() {
			set.Keys = append(set.Keys, NewRSAJWK("k2", &second.PublicKey))
		}
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer srv.Close()

	now := time.Now()
	r := NewRemoteKeySet(srv.URL, srv.Client())
	r.now = func() time.Time { return now }

	ctx := context.Background()

	_, err = r.Key(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load())

	rotated.Store(true)

	// Inside the refresh window the unknown kid is not refetched.
	_, err = r.Key(ctx, "k2")
	require.ErrorIs(t, err, ErrUnknownKID)
	require.Equal(t, int32(1), hits.Load())

	now = now.Add(2 * time.Minute)
	_, err = r.Key(ctx, "k2")
	require.NoError(t, err)
	require.Equal(t, int32(2), hits.Load())

	now = now.Add(2 * time.Hour)
	_, err = r.Key(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, int32(3), hits.Load())
}

func TestRemoteKeySetFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewRemoteKeySet(srv.URL, srv.Client()).Key(context.Background(), "k")
	require.Error(t, err)
}
