package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store/drivers/sqlite"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store/storetest"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) store.Store {
	t.Helper()

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "mediscan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, newStore)
}

func TestMigrationsIdempotent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

// The schema refuses rows that hold both credential kinds.
func TestCredentialCheckConstraint(t *testing.T) {
	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "check.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	_, err = s.DB().ExecContext(context.Background(), `
		INSERT INTO users (id, email, username, password_hash, external_id, created_at, updated_at)
		VALUES ('x', 'x@example.com', 'x', 'hash', 'ext', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	require.Error(t, err)

	_, err = s.DB().ExecContext(context.Background(), `
		INSERT INTO users (id, email, username, created_at, updated_at)
		VALUES ('y', 'y@example.com', 'y', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	require.Error(t, err)

	u := storetest.NewUser("ok@example.com")
	u.Credential = domain.ExternalCredential{ProviderID: "sub"}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
}
