package mediscansdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// Client talks to a MediScan server. The embedded cookie jar keeps the
// refresh token cookie between calls.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client with a cookie jar and a 30 second timeout.
func NewClient(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
	}
}

// Register creates an account and returns a session for it.
func (c *Client) Register(ctx context.Context, in RegisterRequest) (*Session, error) {
	return c.authenticate(ctx, "/api/auth/register", in, http.StatusCreated)
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	return c.authenticate(ctx, "/api/auth/login", LoginRequest{Email: email, Password: password}, http.StatusOK)
}

// ExternalLogin exchanges an identity provider token for a session.
func (c *Client) ExternalLogin(ctx context.Context, token string) (*Session, error) {
	return c.authenticate(ctx, "/api/auth/external", ExternalLoginRequest{Token: token}, http.StatusOK)
}

// Refresh rotates the refresh cookie held by the jar and returns a new session.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	return c.authenticate(ctx, "/api/auth/refresh-token", nil, http.StatusOK)
}

// Logout revokes the refresh cookie held by the jar.
func (c *Client) Logout(ctx context.Context) error {
	req, err := c.newRequest(ctx, request{method: http.MethodPost, path: "/api/auth/logout"})
	if err != nil {
		return err
	}
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	_, err = decode[any](resp, http.StatusOK)
	return err
}

// NewSession wraps an access token obtained elsewhere.
func (c *Client) NewSession(accessToken string) *Session {
	return &Session{client: c, accessToken: accessToken}
}

// Bootstrap creates the first admin account.
func (c *Client) Bootstrap(ctx context.Context, token string, in BootstrapRequest) (*Profile, error) {
	req, err := c.newRequest(ctx, request{
		method:  http.MethodPost,
		path:    "/api/bootstrap",
		body:    in,
		headers: map[string]string{"X-Bootstrap-Token": token},
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	p, err := decode[Profile](resp, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Health calls the liveness probe.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	return c.probe(ctx, "/health")
}

// Ready calls the readiness probe. A degraded server answers 503, which is
// returned together with the decoded body.
func (c *Client) Ready(ctx context.Context) (*HealthResponse, error) {
	return c.probe(ctx, "/readyz")
}

func (c *Client) probe(ctx context.Context, path string) (*HealthResponse, error) {
	req, err := c.newRequest(ctx, request{method: http.MethodGet, path: path})
	if err != nil {
		return nil, err
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var hr HealthResponse
	if err := json.Unmarshal(body, &hr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &hr, &APIError{StatusCode: resp.StatusCode, Message: hr.Status}
	}
	return &hr, nil
}

func (c *Client) authenticate(ctx context.Context, path string, body any, expected int) (*Session, error) {
	req, err := c.newRequest(ctx, request{method: http.MethodPost, path: path, body: body})
	if err != nil {
		return nil, err
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	data, err := decode[AuthData](resp, expected)
	if err != nil {
		return nil, err
	}
	return &Session{client: c, accessToken: data.AccessToken, user: data.User}, nil
}
