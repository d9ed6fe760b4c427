package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/mediscan/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func gateMux(gate httpx.Middleware) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /records/{userId}", httpx.Chain(okHandler(), gate))
	return mux
}

func asCaller(path string, id *httpx.Identity) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if id != nil {
		req = req.WithContext(httpx.WithIdentity(req.Context(), *id))
	}
	return req
}

func TestRequireOwner(t *testing.T) {
	mux := gateMux(httpx.RequireOwner("userId"))

	alice := &httpx.Identity{UserID: "alice", Role: "user"}
	admin := &httpx.Identity{UserID: "root", Role: httpx.RoleAdmin}

	tests := []struct {
		name   string
		path   string
		caller *httpx.Identity
		want   int
	}{
		{"owner", "/records/alice", alice, http.StatusOK},
		{"other user", "/records/bob", alice, http.StatusForbidden},
		{"admin on anyone", "/records/bob", admin, http.StatusOK},
		{"anonymous", "/records/alice", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, asCaller(tt.path, tt.caller))
			require.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusForbidden {
				require.Equal(t, "Not authorized to access these records", envelope(t, rec).Message)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	mux := gateMux(httpx.RequireRole(httpx.RoleAdmin))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, asCaller("/records/x", &httpx.Identity{UserID: "alice", Role: "user"}))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "Not authorized as admin", envelope(t, rec).Message)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, asCaller("/records/x", &httpx.Identity{UserID: "root", Role: httpx.RoleAdmin}))
	require.Equal(t, http.StatusOK, rec.Code)
}
