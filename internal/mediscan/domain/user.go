package domain

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

var (
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrNoCredential      = errors.New("user has no credential")
	ErrCredentialMixture = errors.New("user has both a password and an external identity")
)

// Credential is how a user proves who they are. It is exactly one of
// LocalCredential or ExternalCredential.
type Credential interface {
	credential()
}

// LocalCredential is a peppered argon2id PHC string.
type LocalCredential struct {
	Hash string
}

// ExternalCredential is the subject id issued by the managed identity
// provider.
type ExternalCredential struct {
	ProviderID string
}

func (LocalCredential) credential()    {}
func (ExternalCredential) credential() {}

// CredentialFromColumns rebuilds a credential from its stored halves.
// Exactly one side must be set.
func CredentialFromColumns(hash, externalID string) (Credential, error) {
	switch {
	case hash != "" && externalID != "":
		return nil, ErrCredentialMixture
	case hash != "":
		return LocalCredential{Hash: hash}, nil
	case externalID != "":
		return ExternalCredential{ProviderID: externalID}, nil
	default:
		return nil, ErrNoCredential
	}
}

// CredentialColumns splits a credential into (hash, external id).
func CredentialColumns(c Credential) (hash, externalID string) {
	switch c := c.(type) {
	case LocalCredential:
		return c.Hash, ""
	case ExternalCredential:
		return "", c.ProviderID
	}
	return "", ""
}

type User struct {
	ID           string
	Email        string
	Username     string
	Credential   Credential
	Role         Role
	Lockout      Lockout
	LastLogin    *time.Time
	Active       bool
	TokenVersion int64
	Details      Details
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PasswordHash returns the local hash, if the user has one.
func (u User) PasswordHash() (string, bool) {
	c, ok := u.Credential.(LocalCredential)
	return c.Hash, ok && c.Hash != ""
}

// ExternalID returns the provider subject, if the user signs in externally.
func (u User) ExternalID() (string, bool) {
	c, ok := u.Credential.(ExternalCredential)
	return c.ProviderID, ok && c.ProviderID != ""
}

func (u User) Provider() string {
	if _, ok := u.Credential.(ExternalCredential); ok {
		return "external"
	}
	return "local"
}

// Validate checks the record is storable.
func (u User) Validate() error {
	if u.ID == "" {
		return errors.New("user id required")
	}
	if _, err := ParseEmail(u.Email); err != nil {
		return err
	}
	if !u.Role.Valid() {
		return ErrInvalidRole
	}
	hash, ext := CredentialColumns(u.Credential)
	_, err := CredentialFromColumns(hash, ext)
	return err
}

// ParseEmail trims and lower-cases addr and checks it is a bare address.
func ParseEmail(addr string) (string, error) {
	addr = NormalizeEmail(addr)
	if addr == "" {
		return "", ErrInvalidEmail
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr || !strings.Contains(addr[strings.LastIndexByte(addr, '@'):], ".") {
		return "", ErrInvalidEmail
	}
	return addr, nil
}

func NormalizeEmail(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// UsernameFromEmail is the default username: the local part of the address.
func UsernameFromEmail(addr string) string {
	local, _, _ := strings.Cut(addr, "@")
	return local
}
