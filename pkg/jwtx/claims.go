package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// Class separates the two kinds of session token. Each class is signed with
// its own secret and the class is also carried in the token, so an access
// token can never be accepted where a refresh token is expected.
type Class string

const (
	ClassAccess  Class = "access"
	ClassRefresh Class = "refresh"
)

// SessionClaims are the claims of access and refresh tokens.
type SessionClaims struct {
	jwt.RegisteredClaims

	// UserID of the session owner.
	UserID string `json:"id"`

	Class Class `json:"cls"`

	// TokenVersion is only set on refresh tokens. It must match the user's
	// current version for the token to be honoured.
	TokenVersion int64 `json:"tv,omitempty"`
}

// ExternalClaims are the claims we read from a managed identity provider's
// ID token.
type ExternalClaims struct {
	jwt.RegisteredClaims

	Email         string `json:"email,omitempty"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
}

// validateAudience reports whether at least one expected audience is
// present. An empty expectation always passes.
func validateAudience(got jwt.ClaimStrings, expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(got, want) {
			return nil
		}
	}
	return ErrAudience
}

// NewJTI returns a random URL-safe token id.
func NewJTI() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
