package cryptox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadOrCreatePepper reads the pepper stored at path. When the file does not
// exist a new random pepper is generated and written with 0600 permissions.
// Losing this file invalidates every stored password hash.
func LoadOrCreatePepper(path string) (string, error) {
	if path == "" {
		return "", errors.New("cryptox: pepper path is empty")
	}
	path = filepath.Clean(path)

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		pepper := strings.TrimSpace(string(b))
		if pepper == "" {
			return "", fmt.Errorf("cryptox: pepper file %s is empty", path)
		}
		return pepper, nil
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("cryptox: read pepper: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("cryptox: create pepper dir: %w", err)
	}

	pepper, err := GenerateSecret(32)
	if err != nil {
		return "", err
	}

	// O_EXCL so two processes starting together cannot overwrite each other.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return LoadOrCreatePepper(path)
		}
		return "", fmt.Errorf("cryptox: create pepper: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(pepper); err != nil {
		return "", fmt.Errorf("cryptox: write pepper: %w", err)
	}
	return pepper, nil
}
