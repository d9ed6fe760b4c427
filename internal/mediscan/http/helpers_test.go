package http

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/service"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store/drivers/sqlite"
	"github.com/aussiebroadwan/mediscan/pkg/cryptox"
	"github.com/aussiebroadwan/mediscan/pkg/gemini"
	"github.com/aussiebroadwan/mediscan/pkg/httpx"
	"github.com/aussiebroadwan/mediscan/pkg/mediscansdk"
	"github.com/aussiebroadwan/mediscan/pkg/objectstore"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct-horse"

var unlimited = httpx.RateLimitConfig{RequestsPerWindow: 100000, Window: time.Minute, Burst: 100000}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeModel struct {
	reply string
}

func (f fakeModel) Generate(context.Context, ...gemini.Part) (string, error) {
	return f.reply, nil
}

type memObjects struct {
	mu   sync.Mutex
	puts map[string]string
}

func (m *memObjects) Put(_ context.Context, key, contentType string, body io.Reader, _ int64) (objectstore.Object, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return objectstore.Object{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.puts == nil {
		m.puts = map[string]string{}
	}
	m.puts[key] = contentType
	return objectstore.Object{Key: key, URL: "https://cdn.example.com/" + key}, nil
}

func (m *memObjects) Delete(context.Context, string) error { return nil }

type testServer struct {
	*httptest.Server
	router *Router
	store  store.Store
	clock  *clock
}

// client returns a fresh SDK client with its own cookie jar.
func (ts *testServer) client() *mediscansdk.Client {
	return mediscansdk.NewClient(ts.URL)
}

// register signs up email through the API and returns its session.
func (ts *testServer) register(t *testing.T, email string) *mediscansdk.Session {
	t.Helper()
	s, err := ts.client().Register(context.Background(), mediscansdk.RegisterRequest{
		Email:     email,
		Password:  testPassword,
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)
	return s
}

// admin bootstraps and signs in an admin account.
func (ts *testServer) admin(t *testing.T) *mediscansdk.Session {
	t.Helper()
	ctx := context.Background()
	c := ts.client()

	_, err := c.Bootstrap(ctx, ts.router.BootstrapService.Token, mediscansdk.BootstrapRequest{
		Email:    "root@example.com",
		Password: testPassword,
	})
	require.NoError(t, err)

	s, err := c.Login(ctx, "root@example.com", testPassword)
	require.NoError(t, err)
	return s
}

// newTestServer wires every service against a temporary sqlite database.
// configure runs before the routes are applied.
func newTestServer(t *testing.T, configure ...func(*Router)) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "http.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	clk := &clock{now: time.Now().UTC()}

	hasher, err := cryptox.NewHasher("pepper", cryptox.Params{Memory: 1024, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16})
	require.NoError(t, err)

	tokens, err := service.NewTokenService(service.TokenConfig{
		AccessSecret:  strings.Repeat("a", 32),
		RefreshSecret: strings.Repeat("r", 32),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "mediscan-test",
		Now:           clk.Now,
	})
	require.NoError(t, err)

	cfg := Config{
		Cookie:       httpx.RefreshCookie{MaxAge: tokens.RefreshTTL()},
		CORS:         httpx.CORSConfig{Origins: []string{"http://localhost:5173"}},
		ErrorDetail:  false,
		BuildVersion: "test",
		Limits:       RateLimits{Strict: unlimited, Login: unlimited, Moderate: unlimited, Lenient: unlimited, Public: unlimited},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := NewRouter(cfg, st, logger)
	r.TokenService = tokens
	r.AccountService = &service.AccountService{
		Store:   st,
		Hasher:  hasher,
		Tokens:  tokens,
		Lockout: domain.DefaultLockoutPolicy,
		Now:     clk.Now,
	}
	r.ProfileService = &service.ProfileService{Store: st}
	r.UserService = &service.UserService{Store: st}
	r.ChatService = &service.ChatService{Store: st, Responder: service.CannedResponder{}, Retention: domain.DefaultChatRetention, Now: clk.Now}
	r.HealthService = &service.HealthService{Store: st, Now: clk.Now}
	r.AnalyzeService = &service.AnalyzeService{}
	r.AvatarService = &service.AvatarService{Store: st, Now: clk.Now}
	r.BootstrapService = &service.BootstrapService{Store: st, Hasher: hasher, Token: "bootstrap-secret"}

	for _, fn := range configure {
		fn(r)
	}
	r.ApplyRoutes()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, router: r, store: st, clock: clk}
}
