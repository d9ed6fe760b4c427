package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/domain"
	"github.com/aussiebroadwan/mediscan/internal/mediscan/store"
	"github.com/aussiebroadwan/mediscan/pkg/objectstore"
	"github.com/aussiebroadwan/mediscan/pkg/slogx"
)

const MaxAvatarSize = 5 << 20

var (
	ErrNoFile          = errors.New("no file uploaded")
	ErrNotAnImage      = errors.New("only image files are allowed")
	ErrAvatarTooBig    = errors.New("avatar exceeds 5 MiB")
	ErrAvatarsDisabled = errors.New("avatar uploads are not configured")
)

type AvatarService struct {
	Store   store.Store
	Objects objectstore.Store // nil disables uploads
	Now     func() time.Time
}

func (s *AvatarService) Enabled() bool { return s.Objects != nil }

// Upload stores a new avatar and points the profile at it. The previous
// object is removed afterwards; a failure there is only logged.
func (s *AvatarService) Upload(ctx context.Context, userID, contentType string, body io.Reader, size int64) (domain.Avatar, error) {
	if !s.Enabled() {
		return domain.Avatar{}, ErrAvatarsDisabled
	}
	if body == nil {
		return domain.Avatar{}, ErrNoFile
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return domain.Avatar{}, ErrNotAnImage
	}
	if size > MaxAvatarSize {
		return domain.Avatar{}, ErrAvatarTooBig
	}

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}

	obj, err := s.Objects.Put(ctx, objectstore.NewKey("avatars/"+userID, now), contentType, io.LimitReader(body, MaxAvatarSize), size)
	if err != nil {
		return domain.Avatar{}, fmt.Errorf("store avatar: %w", err)
	}

	var previous domain.Avatar
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		u, err := tx.Users().GetUserForUpdate(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		previous = u.Details.Avatar
		u.Details.Avatar = domain.Avatar{URL: obj.URL, Key: obj.Key}
		return tx.Users().UpdateUser(ctx, u)
	})

	l := slogx.FromContext(ctx)
	if err != nil {
		if derr := s.Objects.Delete(ctx, obj.Key); derr != nil {
			l.Warn("failed to remove orphaned avatar", slog.String("key", obj.Key), slog.Any("error", derr))
		}
		return domain.Avatar{}, err
	}

	if previous.Key != "" && previous.Key != obj.Key {
		if err := s.Objects.Delete(ctx, previous.Key); err != nil {
			l.Warn("failed to remove previous avatar", slog.String("key", previous.Key), slog.Any("error", err))
		}
	}

	l.Info("avatar updated", slog.String("key", obj.Key))
	return domain.Avatar{URL: obj.URL, Key: obj.Key}, nil
}
