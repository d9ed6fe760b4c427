package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/mediscan/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestCORS(t *testing.T) {
	h := httpx.CORS(httpx.CORSConfig{Origins: []string{"http://localhost:5173"}})(okHandler())

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", "POST")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	})

	t.Run("simple request exposes authorization", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
		req.Header.Set("Origin", "http://localhost:5173")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Authorization")
	})

	t.Run("foreign origin gets no grant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.test")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestSecureHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.SecureHeaders(true)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
	require.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestRefreshCookie(t *testing.T) {
	c := httpx.RefreshCookie{Secure: true, MaxAge: 7 * 24 * time.Hour}

	rec := httptest.NewRecorder()
	c.Set(rec, "tok")
	set := rec.Result().Cookies()
	require.Len(t, set, 1)
	require.Equal(t, "refreshToken", set[0].Name)
	require.True(t, set[0].HttpOnly)
	require.True(t, set[0].Secure)
	require.Equal(t, http.SameSiteStrictMode, set[0].SameSite)
	require.Equal(t, 7*24*3600, set[0].MaxAge)

	rec = httptest.NewRecorder()
	c.Clear(rec)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	require.Empty(t, cleared[0].Value)
	require.Equal(t, -1, cleared[0].MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: "abc"})
	got, ok := c.Read(req)
	require.True(t, ok)
	require.Equal(t, "abc", got)
}
