package httpx_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/mediscan/pkg/httpx"
	"github.com/aussiebroadwan/mediscan/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

type testTokens struct {
	access, refresh *jwtx.HMAC
}

func (t testTokens) VerifyAccessToken(s string) jwtx.Verification  { return t.access.Verify(s) }
func (t testTokens) VerifyRefreshToken(s string) jwtx.Verification { return t.refresh.Verify(s) }
func (t testTokens) IssueAccessToken(id string) (string, time.Time, error) {
	return t.access.Issue(id, 0)
}

type testResolver struct {
	users   map[string]httpx.Identity
	version int64
}

func (r testResolver) ResolveAccess(_ context.Context, v jwtx.Verification) (httpx.Identity, error) {
	id, ok := r.users[v.UserID()]
	if !ok {
		return httpx.Identity{}, httpx.Unauthorized("User not found")
	}
	return id, nil
}

func (r testResolver) ResolveRefresh(ctx context.Context, v jwtx.Verification) (httpx.Identity, error) {
	if v.TokenVersion() != r.version {
		return httpx.Identity{}, httpx.Unauthorized("Invalid refresh token")
	}
	return r.ResolveAccess(ctx, v)
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

type protectFixture struct {
	clock   *clock
	tokens  testTokens
	handler http.Handler
}

func newProtectFixture(t *testing.T) *protectFixture {
	t.Helper()

	c := &clock{t: time.Now()}
	access, err := jwtx.NewHMAC(jwtx.HMACConfig{Class: jwtx.ClassAccess, Secret: []byte(strings.Repeat("a", 32)), TTL: time.Minute, Now: c.Now})
	require.NoError(t, err)
	refresh, err := jwtx.NewHMAC(jwtx.HMACConfig{Class: jwtx.ClassRefresh, Secret: []byte(strings.Repeat("r", 32)), TTL: time.Hour, Now: c.Now})
	require.NoError(t, err)

	tokens := testTokens{access: access, refresh: refresh}
	resolver := testResolver{
		users: map[string]httpx.Identity{
			"alice": {UserID: "alice", Role: "user"},
			"root":  {UserID: "root", Role: httpx.RoleAdmin},
		},
		version: 2,
	}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := httpx.IdentityFrom(r.Context())
		if !ok {
			t.Fatal("identity missing")
		}
		httpx.Respond(w, http.StatusOK, "ok", id.UserID)
	})

	return &protectFixture{
		clock:   c,
		tokens:  tokens,
		handler: httpx.Chain(inner, httpx.Protect(tokens, resolver, httpx.RefreshCookie{})),
	}
}

func (f *protectFixture) do(bearer, refresh string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if refresh != "" {
		req.AddCookie(&http.Cookie{Name: httpx.DefaultRefreshCookieName, Value: refresh})
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func envelope(t *testing.T, rec *httptest.ResponseRecorder) httpx.Envelope {
	t.Helper()
	var env httpx.Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func TestProtect(t *testing.T) {
	f := newProtectFixture(t)

	access, _, err := f.tokens.access.Issue("alice", 0)
	require.NoError(t, err)
	refresh, _, err := f.tokens.refresh.Issue("alice", 2)
	require.NoError(t, err)

	t.Run("missing bearer", func(t *testing.T) {
		rec := f.do("", refresh)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "Access token required", envelope(t, rec).Message)
	})

	t.Run("valid access token", func(t *testing.T) {
		rec := f.do(access, "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "alice", envelope(t, rec).Data)
		require.Empty(t, rec.Header().Get("Authorization"))
	})

	t.Run("unknown user", func(t *testing.T) {
		ghost, _, err := f.tokens.access.Issue("ghost", 0)
		require.NoError(t, err)

		rec := f.do(ghost, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "User not found", envelope(t, rec).Message)
	})

	t.Run("invalid access without cookie", func(t *testing.T) {
		rec := f.do("garbage", "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "Please login again", envelope(t, rec).Message)
	})

	t.Run("invalid access and invalid refresh", func(t *testing.T) {
		rec := f.do("garbage", "garbage")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "Invalid refresh token", envelope(t, rec).Message)
	})

	t.Run("access token in refresh cookie is rejected", func(t *testing.T) {
		rec := f.do("garbage", access)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "Invalid refresh token", envelope(t, rec).Message)
	})

	t.Run("stale token version", func(t *testing.T) {
		old, _, err := f.tokens.refresh.Issue("alice", 1)
		require.NoError(t, err)

		rec := f.do("garbage", old)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired access renews from cookie", func(t *testing.T) {
		f.clock.t = f.clock.t.Add(2 * time.Minute)
		defer func() { f.clock.t = f.clock.t.Add(-2 * time.Minute) }()

		rec := f.do(access, refresh)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "alice", envelope(t, rec).Data)

		renewed, ok := strings.CutPrefix(rec.Header().Get("Authorization"), "Bearer ")
		require.True(t, ok)
		require.True(t, f.tokens.access.Verify(renewed).Valid())
		require.Equal(t, "alice", f.tokens.access.Verify(renewed).UserID())
	})
}

func TestBearerToken(t *testing.T) {
	for header, want := range map[string]string{
		"Bearer abc":  "abc",
		"bearer abc":  "abc",
		"Bearer  abc": "abc",
		"Basic abc":   "",
		"Bearer":      "",
		"Bearer ":     "",
		"":            "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		got, ok := httpx.BearerToken(req)
		require.Equal(t, want, got, header)
		require.Equal(t, want != "", ok, header)
	}
}
