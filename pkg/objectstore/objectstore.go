// Package objectstore stores user uploads in S3-compatible object storage
// and hands back public URLs for them.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotConfigured = errors.New("objectstore: not configured")

// Object is a stored upload.
type Object struct {
	Key string
	URL string
}

// Store is the narrow surface the application needs from object storage.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (Object, error)
	Delete(ctx context.Context, key string) error
}

// NewKey returns a unique key under prefix, bucketed by upload date.
func NewKey(prefix string, now time.Time) string {
	return path.Join(
		strings.Trim(prefix, "/"),
		fmt.Sprintf("%d/%d/%d", now.Year(), now.Month(), now.Day()),
		uuid.NewString(),
	)
}
