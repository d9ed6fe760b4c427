package postgres_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store/drivers/postgres"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store/storetest"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres runs a throwaway server and returns its DSN.
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "mediscan",
			"POSTGRES_PASSWORD": "mediscan",
			"POSTGRES_DB":       "mediscan",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://mediscan:mediscan@%s:%s/mediscan?sslmode=disable", host, port.Port())
}

func TestConformance(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}

	dsn := startPostgres(t)
	ctx := context.Background()

	// One server for the whole suite; each subtest gets clean tables.
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := postgres.NewStore(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })

		require.NoError(t, s.ApplyMigrations())
		truncate(t, s.DB())
		return s
	})
}

func truncate(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`TRUNCATE health_entries, chat_messages, chats, users`)
	require.NoError(t, err)
}
