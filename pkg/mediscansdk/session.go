package mediscansdk

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

// Session carries an access token. When the server renews an expired token
// from the refresh cookie it answers with a new Authorization header, which
// the session adopts for later calls.
type Session struct {
	client *Client

	mu          sync.RWMutex
	accessToken string
	user        Profile
}

// AccessToken returns the current access token.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// User returns the profile returned at login. It is not refreshed by later
// calls; use Profile for the current state.
func (s *Session) User() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Refresh rotates the refresh cookie and adopts the new access token.
func (s *Session) Refresh(ctx context.Context) error {
	next, err := s.client.Refresh(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.accessToken = next.accessToken
	s.user = next.user
	s.mu.Unlock()
	return nil
}

// Logout revokes the refresh cookie and forgets the access token.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.client.Logout(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.accessToken = ""
	s.mu.Unlock()
	return nil
}

// do sends an authenticated request and picks up a renewed access token.
func (s *Session) do(ctx context.Context, in request) (*http.Response, error) {
	req, err := s.client.newRequest(ctx, in)
	if err != nil {
		return nil, err
	}
	if tok := s.AccessToken(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := s.client.send(req)
	if err != nil {
		return nil, err
	}

	if renewed, ok := strings.CutPrefix(resp.Header.Get("Authorization"), "Bearer "); ok && renewed != "" {
		s.mu.Lock()
		s.accessToken = renewed
		s.mu.Unlock()
	}
	return resp, nil
}

// call is do followed by decode.
func call[T any](ctx context.Context, s *Session, in request, expected int) (T, error) {
	resp, err := s.do(ctx, in)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode[T](resp, expected)
}
