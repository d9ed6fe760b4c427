package mediscansdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// request describes one call. body is JSON encoded unless raw is set.
type request struct {
	method  string
	path    string
	body    any
	raw     io.Reader
	headers map[string]string
}

func (c *Client) url(path string) string {
	return c.BaseURL + path
}

func (c *Client) newRequest(ctx context.Context, in request) (*http.Request, error) {
	body := in.raw
	if body == nil && in.body != nil {
		buf, err := json.Marshal(in.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, in.method, c.url(in.path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if in.raw == nil && in.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range in.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// decode reads an envelope and returns its data when the status matches.
func decode[T any](resp *http.Response, expected int) (T, error) {
	defer resp.Body.Close()

	var zero T
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != expected {
		return zero, parseError(resp, body)
	}

	var env Response[T]
	if err := json.Unmarshal(body, &env); err != nil {
		return zero, fmt.Errorf("failed to decode response: %w", err)
	}
	return env.Data, nil
}
