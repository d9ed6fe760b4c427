// Package gemini is a small client for the Gemini generateContent REST
// endpoint, covering text prompts with optional inline images.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"
)

var (
	// ErrBlocked is returned when the prompt or every candidate was
	// withheld by safety filters.
	ErrBlocked = errors.New("gemini: response blocked")

	// ErrEmpty is returned when the model produced no text.
	ErrEmpty = errors.New("gemini: empty response")
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini: %d %s: %s", e.StatusCode, e.Status, e.Message)
}

type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// New returns a client. A nil HTTPClient gets a 60 second timeout, which
// covers image prompts on the slower models.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
	}, nil
}

// Part is one piece of a prompt: either text or an inline blob.
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
}

func Text(s string) Part { return Part{Text: s} }

func Blob(mimeType string, data []byte) Part { return Part{MIMEType: mimeType, Data: data} }

type wirePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type content struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends a single user turn and returns the concatenated text of the
// first candidate.
func (c *Client) Generate(ctx context.Context, parts ...Part) (string, error) {
	if len(parts) == 0 {
		return "", errors.New("gemini: no prompt parts")
	}

	req := generateRequest{Contents: []content{{Role: "user"}}}
	for _, p := range parts {
		if p.Text != "" {
			req.Contents[0].Parts = append(req.Contents[0].Parts, wirePart{Text: p.Text})
			continue
		}
		req.Contents[0].Parts = append(req.Contents[0].Parts, wirePart{InlineData: &inlineData{
			MIMEType: p.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(p.Data),
		}})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("gemini: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("gemini: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil && er.Error.Message != "" {
			apiErr.Status = er.Error.Status
			apiErr.Message = er.Error.Message
		}
		return "", apiErr
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}

	if out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: %s", ErrBlocked, out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return "", ErrEmpty
	}

	first := out.Candidates[0]
	if first.FinishReason == "SAFETY" {
		return "", fmt.Errorf("%w: %s", ErrBlocked, first.FinishReason)
	}

	var sb strings.Builder
	for _, p := range first.Content.Parts {
		sb.WriteString(p.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmpty
	}
	return sb.String(), nil
}
