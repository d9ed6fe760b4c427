// Package sqlite is the SQLite store driver, built on the pure-Go
// modernc.org/sqlite engine.
package sqlite

import (
	"database/sql"
	"errors"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/store/drivers/sqldb"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var dialect = sqldb.Dialect{
	Name:              "sqlite",
	IsUniqueViolation: isUniqueViolation,
}

type Store struct {
	*sqldb.Store
}

// NewStore opens the database file at path. Foreign keys are enforced,
// transactions take the write lock up front and busy writers wait rather
// than fail.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; serialise through one connection for
	// in-memory databases, which are per-connection.
	if strings.Contains(path, ":memory:") || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	s := &Store{}
	s.Store = sqldb.New(db, dialect, func() error { return applyMigrations(db) })
	return s, nil
}

func dsn(path string) string {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Set("_txlock", "immediate")
	params.Set("_time_format", "sqlite")

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + sep + params.Encode()
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
