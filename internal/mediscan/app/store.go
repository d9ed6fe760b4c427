package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store/drivers/bolt"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store/drivers/postgres"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store/drivers/sqlite"
)

// OpenStore connects the configured driver and brings its schema up to
// date.
func OpenStore(ctx context.Context, cfg Config, logger *slog.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)

	switch cfg.StorageDriver {
	case "sqlite":
		st, err = sqlite.NewStore(cfg.DatabaseFile)
	case "postgres":
		st, err = postgres.NewStore(ctx, cfg.DatabaseURL)
	case "bolt":
		st, err = bolt.NewStore(cfg.BoltFile)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", cfg.StorageDriver, err)
	}

	if err := st.ApplyMigrations(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to apply %s migrations: %w", cfg.StorageDriver, err)
	}

	logger.Info("database migrations applied successfully", "driver", cfg.StorageDriver)
	return st, nil
}
