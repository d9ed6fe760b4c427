// Package bolt is an embedded store driver on go.etcd.io/bbolt. Records
// are JSON documents; secondary lookups use index buckets.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"go.etcd.io/bbolt"
)

var (
	bucketUsers           = []byte("users")
	bucketUsersByEmail    = []byte("users_by_email")
	bucketUsersByExternal = []byte("users_by_external")
	bucketChats           = []byte("chats")
	bucketChatsByUser     = []byte("chats_by_user")
	bucketHealth          = []byte("health_entries")

	allBuckets = [][]byte{
		bucketUsers, bucketUsersByEmail, bucketUsersByExternal,
		bucketChats, bucketChatsByUser, bucketHealth,
	}
)

type Store struct {
	db *bbolt.DB
}

func NewStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// ApplyMigrations creates any missing buckets.
func (s *Store) ApplyMigrations() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("bolt: create bucket %s: %w", b, err)
			}
		}
		return nil
	})
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(_ context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketUsers) == nil {
			return errors.New("bolt: buckets missing")
		}
		return nil
	})
}

func (s *Store) Tx(_ context.Context) (store.Tx, error) {
	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, err
	}
	return &txStore{tx: tx}, nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // ErrTxClosed after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) conn() conn { return conn{db: s.db} }

func (s *Store) Users() store.Users   { return &usersRepo{s.conn()} }
func (s *Store) Chats() store.Chats   { return &chatsRepo{s.conn()} }
func (s *Store) Health() store.Health { return &healthRepo{s.conn()} }

type txStore struct {
	tx *bbolt.Tx
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error                 { return nil }
func (t *txStore) Ping(_ context.Context) error { return nil }
func (t *txStore) ApplyMigrations() error       { return nil }

func (t *txStore) Tx(_ context.Context) (store.Tx, error) { return nil, store.ErrTxDone }

func (t *txStore) WithTx(_ context.Context, _ func(store.Tx) error) error {
	return store.ErrTxDone
}

func (t *txStore) conn() conn { return conn{tx: t.tx} }

func (t *txStore) Users() store.Users   { return &usersRepo{t.conn()} }
func (t *txStore) Chats() store.Chats   { return &chatsRepo{t.conn()} }
func (t *txStore) Health() store.Health { return &healthRepo{t.conn()} }

// conn runs work either in the enclosing writable transaction or in a
// fresh one on the database.
type conn struct {
	db *bbolt.DB
	tx *bbolt.Tx
}

func (c conn) update(fn func(*bbolt.Tx) error) error {
	if c.tx != nil {
		return fn(c.tx)
	}
	return c.db.Update(fn)
}

func (c conn) view(fn func(*bbolt.Tx) error) error {
	if c.tx != nil {
		return fn(c.tx)
	}
	return c.db.View(fn)
}

func getJSON(b *bbolt.Bucket, key []byte, v any) error {
	raw := b.Get(key)
	if raw == nil {
		return store.ErrNotFound
	}
	return json.Unmarshal(raw, v)
}

func putJSON(b *bbolt.Bucket, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, raw)
}

// compositeKey joins parts with a NUL so prefix scans cannot bleed into
// neighbouring ids.
func compositeKey(parts ...string) []byte {
	n := len(parts)
	for _, p := range parts {
		n += len(p)
	}
	k := make([]byte, 0, n)
	for _, p := range parts {
		k = append(k, p...)
		k = append(k, 0)
	}
	return k
}
