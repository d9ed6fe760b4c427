package slogx

import (
	"context"
	"log/slog"
	"sync"
)

type ctxKey struct{}

type attrsKey struct{}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the request logger, or the default logger outside a request.
func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

// With returns ctx carrying FromContext(ctx).With(args...).
func With(ctx context.Context, args ...any) context.Context {
	return WithContext(ctx, FromContext(ctx).With(args...))
}

// requestAttrs collects attributes added by inner handlers so the access log
// line written by HTTPMiddleware can include them.
type requestAttrs struct {
	mu    sync.Mutex
	attrs []any
}

// Annotate adds key/value pairs to the enclosing request's access log line.
// Outside HTTPMiddleware it does nothing.
func Annotate(ctx context.Context, args ...any) {
	ra, ok := ctx.Value(attrsKey{}).(*requestAttrs)
	if !ok {
		return
	}
	ra.mu.Lock()
	ra.attrs = append(ra.attrs, args...)
	ra.mu.Unlock()
}
