// Package sqldb implements the store repositories over database/sql. The
// sqlite and postgres drivers share it and differ only in their Dialect.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
)

// DBTX is the part of database/sql the repositories use. Both *sql.DB and
// *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect captures what differs between SQL engines.
type Dialect struct {
	Name string

	// Numbered placeholders ($1, $2) instead of "?".
	Numbered bool

	// ForUpdate is appended to read-modify-write selects.
	ForUpdate string

	// TxOptions used to begin transactions.
	TxOptions *sql.TxOptions

	// IsUniqueViolation recognises duplicate key errors.
	IsUniqueViolation func(error) bool
}

// Rebind rewrites "?" placeholders for the dialect.
func (d Dialect) Rebind(q string) string {
	if !d.Numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// Store is a store.Store over a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	migrate func() error
}

// New wraps db. migrate runs the driver's embedded migrations.
func New(db *sql.DB, dialect Dialect, migrate func() error) *Store {
	return &Store{db: db, dialect: dialect, migrate: migrate}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) ApplyMigrations() error {
	if s.migrate == nil {
		return nil
	}
	return s.migrate()
}

func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, s.dialect.TxOptions)
	if err != nil {
		return nil, err
	}
	return &txStore{tx: tx, dialect: s.dialect}, nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) conn() conn { return conn{q: s.db, db: s.db, d: s.dialect} }

func (s *Store) Users() store.Users   { return &usersRepo{s.conn()} }
func (s *Store) Chats() store.Chats   { return &chatsRepo{s.conn()} }
func (s *Store) Health() store.Health { return &healthRepo{s.conn()} }

type txStore struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the caller commits or rolls back and the DB stays open.
func (t *txStore) Close() error                 { return nil }
func (t *txStore) Ping(_ context.Context) error { return nil }
func (t *txStore) ApplyMigrations() error       { return nil }

func (t *txStore) Tx(_ context.Context) (store.Tx, error) { return nil, store.ErrTxDone }

func (t *txStore) WithTx(_ context.Context, _ func(store.Tx) error) error {
	return store.ErrTxDone
}

func (t *txStore) conn() conn { return conn{q: t.tx, d: t.dialect} }

func (t *txStore) Users() store.Users   { return &usersRepo{t.conn()} }
func (t *txStore) Chats() store.Chats   { return &chatsRepo{t.conn()} }
func (t *txStore) Health() store.Health { return &healthRepo{t.conn()} }

// conn is what every repo holds: a query handle and, outside a
// transaction, the *sql.DB used to open one for multi-statement writes.
type conn struct {
	q  DBTX
	db *sql.DB
	d  Dialect
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := c.q.ExecContext(ctx, c.d.Rebind(query), args...)
	return res, c.mapErr(err)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := c.q.QueryContext(ctx, c.d.Rebind(query), args...)
	return rows, c.mapErr(err)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.d.Rebind(query), args...)
}

// atomic runs fn in a transaction, reusing the current one if there is one.
func (c conn) atomic(ctx context.Context, fn func(conn) error) (err error) {
	if c.db == nil {
		return fn(c)
	}

	tx, err := c.db.BeginTx(ctx, c.d.TxOptions)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(conn{q: tx, d: c.d})
}

func (c conn) mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case c.d.IsUniqueViolation != nil && c.d.IsUniqueViolation(err):
		return store.ErrAlreadyExists
	}
	return err
}

// expectOne turns a zero-row write into ErrNotFound.
func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
