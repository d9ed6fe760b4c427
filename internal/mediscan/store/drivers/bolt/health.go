package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"go.etcd.io/bbolt"
)

type healthRepo struct {
	c conn
}

func entryKey(userID string, kind domain.Kind, id string) []byte {
	return compositeKey(userID, string(kind), id)
}

func (r *healthRepo) AddEntry(_ context.Context, e domain.Entry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	return r.c.update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketUsers).Get([]byte(e.UserID)) == nil {
			return store.ErrNotFound
		}
		b := tx.Bucket(bucketHealth)
		key := entryKey(e.UserID, e.Kind, e.ID)
		if b.Get(key) != nil {
			return store.ErrAlreadyExists
		}
		return putJSON(b, key, e)
	})
}

func (r *healthRepo) GetEntry(_ context.Context, userID string, kind domain.Kind, id string) (domain.Entry, error) {
	var e domain.Entry
	err := r.c.view(func(tx *bbolt.Tx) error {
		return getJSON(tx.Bucket(bucketHealth), entryKey(userID, kind, id), &e)
	})
	return e, err
}

func (r *healthRepo) ListEntries(_ context.Context, userID string, kind domain.Kind) ([]domain.Entry, error) {
	out := []domain.Entry{}
	err := r.c.view(func(tx *bbolt.Tx) error {
		prefix := compositeKey(userID, string(kind))
		cur := tx.Bucket(bucketHealth).Cursor()
		for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
			var e domain.Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r *healthRepo) UpdateEntry(_ context.Context, e domain.Entry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	return r.c.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketHealth)
		key := entryKey(e.UserID, e.Kind, e.ID)

		var cur domain.Entry
		if err := getJSON(b, key, &cur); err != nil {
			return err
		}
		cur.Data = e.Data
		cur.UpdatedAt = e.UpdatedAt.UTC()
		return putJSON(b, key, cur)
	})
}

func (r *healthRepo) DeleteEntry(_ context.Context, userID string, kind domain.Kind, id string) error {
	return r.c.update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketHealth)
		key := entryKey(userID, kind, id)
		if b.Get(key) == nil {
			return store.ErrNotFound
		}
		return b.Delete(key)
	})
}
