// Package postgres is the PostgreSQL store driver. It talks to the server
// through pgx's database/sql adapter.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/store/drivers/sqldb"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

var dialect = sqldb.Dialect{
	Name:              "postgres",
	Numbered:          true,
	ForUpdate:         " FOR UPDATE",
	IsUniqueViolation: isUniqueViolation,
}

type Store struct {
	*sqldb.Store
}

// NewStore connects to dsn and checks the server answers.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{}
	s.Store = sqldb.New(db, dialect, func() error { return applyMigrations(db) })
	return s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
