package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// GenerateSecret returns size random bytes encoded as unpadded base64url.
func GenerateSecret(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("cryptox: secret size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateSecretString is GenerateSecret for callers that cannot handle the
// error. It panics if the system random source fails.
func GenerateSecretString(size int) string {
	s, err := GenerateSecret(size)
	if err != nil {
		panic(err)
	}
	return s
}

// EqualSecret compares two secrets in constant time with respect to content.
func EqualSecret(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
