package httpx

import "context"

type ctxKey string

const (
	CtxKeyIdentity    ctxKey = "identity"
	CtxKeyErrorDetail ctxKey = "error_detail"
)

// Identity is the resolved caller attached by Protect. It never carries
// credential material.
type Identity struct {
	UserID string
	Role   string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, CtxKeyIdentity, id)
}

// IdentityFrom returns the caller, if Protect ran.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(CtxKeyIdentity).(Identity)
	return id, ok && id.UserID != ""
}

// UserIDFrom is IdentityFrom(ctx).UserID, or "".
func UserIDFrom(ctx context.Context) string {
	id, _ := IdentityFrom(ctx)
	return id.UserID
}

func errorDetailEnabled(ctx context.Context) bool {
	on, _ := ctx.Value(CtxKeyErrorDetail).(bool)
	return on
}

func contextWithErrorDetail(ctx context.Context) context.Context {
	return context.WithValue(ctx, CtxKeyErrorDetail, true)
}
