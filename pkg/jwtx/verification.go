package jwtx

import (
	"errors"
	"time"
)

var (
	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrInvalidSig   = errors.New("jwtx: invalid signature")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrWrongClass   = errors.New("jwtx: wrong token class")
	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrUnknownKID   = errors.New("jwtx: unknown kid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// Verification is the outcome of checking a session token. It is either
// valid, carrying the claims, or invalid, carrying the reason. Verifying
// never fails in any other way, so callers can fall through from one token
// class to the next without error plumbing.
type Verification struct {
	claims SessionClaims
	reason error
}

func verified(c SessionClaims) Verification { return Verification{claims: c} }

func rejected(reason error) Verification { return Verification{reason: reason} }

// Valid reports whether the token passed every check.
func (v Verification) Valid() bool { return v.reason == nil && v.claims.UserID != "" }

// UserID is the session owner, or "" when invalid.
func (v Verification) UserID() string {
	if !v.Valid() {
		return ""
	}
	return v.claims.UserID
}

// TokenVersion is the refresh token version, zero for access tokens.
func (v Verification) TokenVersion() int64 { return v.claims.TokenVersion }

// ExpiresAt is the token expiry, zero when invalid.
func (v Verification) ExpiresAt() time.Time {
	if !v.Valid() || v.claims.ExpiresAt == nil {
		return time.Time{}
	}
	return v.claims.ExpiresAt.Time
}

// Reason explains why the token was rejected. It is nil for valid tokens.
func (v Verification) Reason() error {
	if v.reason == nil && v.claims.UserID == "" {
		return ErrInvalidClaim
	}
	return v.reason
}
