// Package cryptox holds the credential primitives: peppered argon2id
// password hashing and constant-time secret comparison.
package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrMismatch is returned when a password does not match its hash.
var ErrMismatch = errors.New("password does not match")

// ErrMalformedHash is returned for stored hashes that are not argon2id PHC strings.
var ErrMalformedHash = errors.New("invalid hash format")

// Params tunes argon2id. The zero value is invalid; use DefaultParams.
type Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
	SaltLength  uint32
}

// DefaultParams follows the OWASP minimum for argon2id.
var DefaultParams = Params{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	KeyLength:   32,
	SaltLength:  16,
}

// Hasher hashes and verifies passwords with a server-side pepper. It is safe
// for concurrent use.
type Hasher struct {
	pepper string
	params Params

	// decoy is verified against when there is no stored hash so that unknown
	// accounts cost the same as wrong passwords.
	decoy string
}

// NewHasher returns a Hasher using the given pepper and params.
func NewHasher(pepper string, params Params) (*Hasher, error) {
	if params.Memory == 0 || params.Iterations == 0 || params.Parallelism == 0 || params.KeyLength == 0 || params.SaltLength == 0 {
		return nil, errors.New("cryptox: argon2 params must be non-zero")
	}

	h := &Hasher{pepper: pepper, params: params}

	decoy, err := h.Hash(GenerateSecretString(16))
	if err != nil {
		return nil, err
	}
	h.decoy = decoy

	return h, nil
}

// Hash returns a PHC formatted argon2id hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cryptox: read salt: %w", err)
	}

	p := h.params
	key := argon2.IDKey([]byte(password+h.pepper), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks password against an encoded hash. It returns nil on a match,
// ErrMismatch on a wrong password and ErrMalformedHash for unusable input.
// The parameters embedded in the hash are used, so hashes made with older
// params keep verifying.
func (h *Hasher) Verify(password, encoded string) error {
	// ["", "argon2id", "v=19", "m=X,t=Y,p=Z", salt, hash]
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return ErrMalformedHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, parts[2])
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return fmt.Errorf("%w: params: %v", ErrMalformedHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return fmt.Errorf("%w: key", ErrMalformedHash)
	}

	got := argon2.IDKey([]byte(password+h.pepper), salt, iters, mem, par, uint32(len(want))) // #nosec G115 -- len of a decoded hash

	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrMismatch
	}
	return nil
}

// VerifyDecoy burns the same work as Verify against a throwaway hash. Call
// it when the account does not exist or has no local password.
func (h *Hasher) VerifyDecoy(password string) {
	_ = h.Verify(password, h.decoy)
}
