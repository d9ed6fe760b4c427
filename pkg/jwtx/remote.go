package jwtx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// RemoteKeySet lazily fetches a provider's JWKS and refreshes it when it
// goes stale or when a token names a kid we have not seen yet.
type RemoteKeySet struct {
	url    string
	client *http.Client
	keys   *KeySet

	// MaxAge is how long a fetched set is trusted.
	MaxAge time.Duration

	// MinRefresh bounds how often an unknown kid may trigger a refetch.
	MinRefresh time.Duration

	mu        sync.Mutex
	fetchedAt time.Time
	now       func() time.Time
}

// NewRemoteKeySet returns a key set backed by the JWKS document at url.
// A nil client uses a 10 second timeout client.
func NewRemoteKeySet(url string, client *http.Client) *RemoteKeySet {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteKeySet{
		url:        url,
		client:     client,
		keys:       NewKeySet(),
		MaxAge:     time.Hour,
		MinRefresh: time.Minute,
		now:        time.Now,
	}
}

// Key returns the key for kid, fetching the JWKS when needed.
func (r *RemoteKeySet) Key(ctx context.Context, kid string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	age := now.Sub(r.fetchedAt)

	if r.fetchedAt.IsZero() || age > r.MaxAge {
		if err := r.fetchLocked(ctx); err != nil && r.keys.Len() == 0 {
			return nil, err
		}
	}

	key, err := r.keys.Key(kid)
	if errors.Is(err, ErrUnknownKID) && now.Sub(r.fetchedAt) > r.MinRefresh {
		if ferr := r.fetchLocked(ctx); ferr != nil {
			return nil, ferr
		}
		key, err = r.keys.Key(kid)
	}
	return key, err
}

func (r *RemoteKeySet) fetchLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return fmt.Errorf("jwtx: build jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("jwtx: fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwtx: fetch jwks: unexpected status %d", resp.StatusCode)
	}

	var set JWKS
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&set); err != nil {
		return fmt.Errorf("jwtx: decode jwks: %w", err)
	}
	if err := r.keys.Replace(set); err != nil {
		return err
	}

	r.fetchedAt = r.now()
	return nil
}
