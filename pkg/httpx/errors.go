package httpx

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an API failure with a stable status and client message. Err
// holds the underlying cause, which is logged but only shown to clients in
// development.
type Error struct {
	Status  int
	Message string
	Errors  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithCause returns a copy of e carrying err.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// WithErrors returns a copy of e listing individual problems.
func (e *Error) WithErrors(errs ...string) *Error {
	c := *e
	c.Errors = append([]string(nil), errs...)
	return &c
}

func NewError(status int, msg string) *Error {
	return &Error{Status: status, Message: msg}
}

func BadRequest(msg string) *Error   { return NewError(http.StatusBadRequest, msg) }
func Unauthorized(msg string) *Error { return NewError(http.StatusUnauthorized, msg) }
func Forbidden(msg string) *Error    { return NewError(http.StatusForbidden, msg) }
func NotFound(msg string) *Error     { return NewError(http.StatusNotFound, msg) }
func Conflict(msg string) *Error     { return NewError(http.StatusConflict, msg) }
func Unavailable(msg string) *Error  { return NewError(http.StatusServiceUnavailable, msg) }

func TooManyRequests(msg string) *Error {
	return NewError(http.StatusTooManyRequests, msg)
}

// Internal hides err behind a generic message.
func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: "Internal server error", Err: err}
}

// AsError converts any error into an *Error, treating unknown errors as
// internal failures.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
