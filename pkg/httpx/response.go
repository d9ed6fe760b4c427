package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/mediscan/pkg/slogx"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	StatusCode int        `json:"statusCode"`
	Message    string     `json:"message"`
	Data       any        `json:"data"`
	Errors     []string   `json:"errors"`
	Success    bool       `json:"success"`
	Error      *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo is present on every failed response. Detail is only filled in
// when ErrorDetail is enabled.
type ErrorInfo struct {
	Detail string `json:"detail,omitempty"`
}

// WriteJSON writes v as JSON with no-cache headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache stops intermediaries from keeping responses that may hold tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// Respond writes a success envelope.
func Respond(w http.ResponseWriter, code int, message string, data any) {
	WriteJSON(w, code, Envelope{
		StatusCode: code,
		Message:    message,
		Data:       data,
		Errors:     []string{},
		Success:    code >= 200 && code < 300,
	})
}

// WriteError is the single sink for failed requests. It logs the cause
// against the request logger and writes the error envelope.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	e := AsError(err)
	ctx := r.Context()

	level := slog.LevelWarn
	if e.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	attrs := []any{"status", e.Status, "message", e.Message}
	if e.Err != nil {
		attrs = append(attrs, "err", e.Err)
	}
	slogx.FromContext(ctx).Log(ctx, level, "request_failed", attrs...)

	errs := e.Errors
	if errs == nil {
		errs = []string{}
	}

	info := &ErrorInfo{}
	if errorDetailEnabled(ctx) && e.Err != nil {
		info.Detail = e.Err.Error()
	}

	if e.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}

	WriteJSON(w, e.Status, Envelope{
		StatusCode: e.Status,
		Message:    e.Message,
		Data:       nil,
		Errors:     errs,
		Success:    false,
		Error:      info,
	})
}

// ErrorDetail marks requests whose error envelopes may include the cause.
// Enable it in development only.
func ErrorDetail(enabled bool) Middleware {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := contextWithErrorDetail(r.Context())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ErrEmptyBody is the cause of the error DecodeJSON returns for a request
// without a body.
var ErrEmptyBody = errors.New("empty request body")

// DecodeJSON reads a single JSON object from the request body into v.
// Unknown fields are rejected when strict is set.
func DecodeJSON(r *http.Request, v any, strict bool) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return BadRequest("Content-Type must be application/json")
	}

	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}

	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return NewError(http.StatusRequestEntityTooLarge, "Request body too large")
		case errors.Is(err, io.EOF):
			return BadRequest("Request body is required").WithCause(ErrEmptyBody)
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return BadRequest("Field not allowed: " + strings.Trim(field, `"`))
		default:
			return BadRequest("Invalid JSON body").WithCause(err)
		}
	}

	if dec.More() {
		return BadRequest("Request body must contain a single JSON object")
	}
	return nil
}
