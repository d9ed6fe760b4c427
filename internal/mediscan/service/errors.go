package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrUserExists         = errors.New("user already exists")
	ErrEmailInUse         = errors.New("email already in use")
	ErrUserNotFound       = errors.New("user not found")
	ErrRefreshRequired    = errors.New("refresh token required")
	ErrInvalidRefresh     = errors.New("invalid refresh token")
	ErrUpdateRequired     = errors.New("update data is required")
	ErrExternalDisabled   = errors.New("external login is not configured")
	ErrInvalidExternal    = errors.New("invalid identity token")
)

// FieldNotAllowedError rejects an update that names a key outside the
// allow-list.
type FieldNotAllowedError struct {
	Field string
}

func (e *FieldNotAllowedError) Error() string { return "Field not allowed: " + e.Field }

// InvalidInputError is a client mistake with a message fit for display.
type InvalidInputError struct {
	Message  string
	Problems []string
}

func (e *InvalidInputError) Error() string {
	if len(e.Problems) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Problems)
}

func invalid(msg string, problems ...string) error {
	return &InvalidInputError{Message: msg, Problems: problems}
}
