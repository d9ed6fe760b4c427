package mediscansdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
	Errors     []string
	Detail     string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("mediscan: %d %s", e.StatusCode, e.Message)
	if len(e.Errors) > 0 {
		msg += " (" + strings.Join(e.Errors, "; ") + ")"
	}
	return msg
}

// IsStatus reports whether err is an *APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// parseError builds an APIError from a failed response body. Bodies that are
// not an envelope fall back to the status text.
func parseError(resp *http.Response, body []byte) error {
	var env ErrorResponse
	if err := json.Unmarshal(body, &env); err != nil || env.Message == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    env.Message,
		Errors:     env.Errors,
	}
	if env.Error != nil {
		apiErr.Detail = env.Error.Detail
	}
	return apiErr
}
