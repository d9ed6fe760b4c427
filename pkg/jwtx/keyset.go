package jwtx

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"sync"
)

// KeySet holds parsed public verification keys by kid. It is safe for
// concurrent use.
type KeySet struct {
	mu  sync.RWMutex
	pub map[string]any // *rsa.PublicKey | *ecdsa.PublicKey
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{pub: make(map[string]any)}
}

// Add parses j and stores it under its kid.
func (k *KeySet) Add(j JWK) error {
	key, err := parseJWK(j)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub[j.Kid] = key
	return nil
}

// Key returns the public key for kid.
func (k *KeySet) Key(kid string) (any, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if pk, ok := k.pub[kid]; ok {
		return pk, nil
	}
	return nil, ErrUnknownKID
}

// Len is the number of loaded keys.
func (k *KeySet) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.pub)
}

// Replace swaps every key for the contents of set. Keys with unsupported
// types are skipped; a set without any usable key is an error and leaves the
// current keys in place.
func (k *KeySet) Replace(set JWKS) error {
	next := make(map[string]any, len(set.Keys))
	var errs []error
	for _, j := range set.Keys {
		key, err := parseJWK(j)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		next[j.Kid] = key
	}
	if len(next) == 0 {
		return errors.Join(append([]error{errors.New("jwtx: jwks has no usable keys")}, errs...)...)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub = next
	return nil
}

func parseJWK(j JWK) (any, error) {
	if j.Use != "" && j.Use != "sig" {
		return nil, fmt.Errorf("jwtx: key %q is not a signing key", j.Kid)
	}

	switch j.Kty {
	case "RSA":
		n, err := decodeBigInt(j.N)
		if err != nil {
			return nil, err
		}
		e, err := decodeBigInt(j.E)
		if err != nil {
			return nil, err
		}
		if !e.IsInt64() || e.Int64() < 3 {
			return nil, fmt.Errorf("jwtx: key %q has an invalid exponent", j.Kid)
		}
		return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil

	case "EC":
		if j.Crv != "P-256" {
			return nil, fmt.Errorf("jwtx: unsupported EC curve %q", j.Crv)
		}
		x, err := decodeBigInt(j.X)
		if err != nil {
			return nil, err
		}
		y, err := decodeBigInt(j.Y)
		if err != nil {
			return nil, err
		}
		pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
		if !pub.Curve.IsOnCurve(x, y) {
			return nil, fmt.Errorf("jwtx: key %q is not on P-256", j.Kid)
		}
		return pub, nil

	default:
		return nil, fmt.Errorf("jwtx: unsupported kty %q", j.Kty)
	}
}

func decodeBigInt(s string) (*big.Int, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(b) == 0 {
		return nil, fmt.Errorf("jwtx: invalid jwk coordinate: %w", ErrMalformed)
	}
	return new(big.Int).SetBytes(b), nil
}
