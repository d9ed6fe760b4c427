package service

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store/drivers/sqlite"
	"github.com/aussiebroadwan/mediscan/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

var testParams = cryptox.Params{Memory: 1024, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16}

var (
	testAccessSecret  = strings.Repeat("a", 32)
	testRefreshSecret = strings.Repeat("r", 32)
)

// clock is a settable time source shared by the services under test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
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

type env struct {
	store   store.Store
	clock   *clock
	hasher  *cryptox.Hasher
	tokens  *TokenService
	account *AccountService
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	return s
}

func newEnv(t *testing.T) *env {
	t.Helper()

	st := newStore(t)
	clk := newClock()

	hasher, err := cryptox.NewHasher("pepper", testParams)
	require.NoError(t, err)

	tokens, err := NewTokenService(TokenConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "mediscan-test",
		Now:           clk.Now,
	})
	require.NoError(t, err)

	return &env{
		store:  st,
		clock:  clk,
		hasher: hasher,
		tokens: tokens,
		account: &AccountService{
			Store:   st,
			Hasher:  hasher,
			Tokens:  tokens,
			Lockout: domain.DefaultLockoutPolicy,
			Now:     clk.Now,
		},
	}
}

// register creates a local account through the real flow.
func (e *env) register(t *testing.T, email string) AuthResult {
	t.Helper()
	res, err := e.account.Register(context.Background(), RegisterInput{
		Email:     email,
		Password:  "correct-horse",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)
	return res
}
