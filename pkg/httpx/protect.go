package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/mediscan/pkg/jwtx"
	"github.com/aussiebroadwan/mediscan/pkg/slogx"
)

// SessionTokens verifies both token classes and mints access tokens.
type SessionTokens interface {
	VerifyAccessToken(token string) jwtx.Verification
	VerifyRefreshToken(token string) jwtx.Verification
	IssueAccessToken(userID string) (string, time.Time, error)
}

// SessionResolver turns verified tokens into identities. Implementations
// return *Error values for callers that must be turned away, such as
// unknown or disabled users and stale refresh tokens.
type SessionResolver interface {
	ResolveAccess(ctx context.Context, v jwtx.Verification) (Identity, error)
	ResolveRefresh(ctx context.Context, v jwtx.Verification) (Identity, error)
}

// Protect authenticates the request. A valid bearer access token is used
// when present. Otherwise the refresh cookie is tried, and on success a new
// access token is returned in the Authorization response header.
func Protect(tokens SessionTokens, resolver SessionResolver, cookie RefreshCookie) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			// 1. Bearer token is mandatory, even when it is stale.
			raw, ok := BearerToken(r)
			if !ok {
				WriteError(w, r, Unauthorized("Access token required"))
				return
			}

			// 2. The access token normally settles it.
			v := tokens.VerifyAccessToken(raw)
			if v.Valid() {
				id, err := resolver.ResolveAccess(ctx, v)
				if err != nil {
					WriteError(w, r, err)
					return
				}
				serveAs(w, r, next, id)
				return
			}
			log.Debug("access token rejected", "reason", v.Reason())

			// 3. Fall back to the refresh cookie.
			refresh, ok := cookie.Read(r)
			if !ok {
				WriteError(w, r, Unauthorized("Please login again"))
				return
			}

			// 4. A valid refresh token renews the session silently.
			rv := tokens.VerifyRefreshToken(refresh)
			if !rv.Valid() {
				WriteError(w, r, Unauthorized("Invalid refresh token").WithCause(rv.Reason()))
				return
			}

			id, err := resolver.ResolveRefresh(ctx, rv)
			if err != nil {
				WriteError(w, r, err)
				return
			}

			access, _, err := tokens.IssueAccessToken(id.UserID)
			if err != nil {
				WriteError(w, r, Internal(err))
				return
			}

			w.Header().Set("Authorization", "Bearer "+access)
			log.Info("access token renewed", "user_id", id.UserID)

			serveAs(w, r, next, id)
		})
	}
}

func serveAs(w http.ResponseWriter, r *http.Request, next http.Handler, id Identity) {
	ctx := WithIdentity(r.Context(), id)
	ctx = slogx.With(ctx, "user_id", id.UserID)
	slogx.Annotate(ctx, "user_id", id.UserID)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
