package httpx

import "net/http"

// RoleAdmin is the role that passes every gate.
const RoleAdmin = "admin"

// RequireRole lets through only callers holding role. It must run after Protect.
func RequireRole(role string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				WriteError(w, r, Unauthorized("Access token required"))
				return
			}
			if id.Role != role {
				WriteError(w, r, Forbidden("Not authorized as "+role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwner lets through admins and the user whose id is the named path
// value. It must run after Protect on a route declaring that wildcard.
func RequireOwner(param string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				WriteError(w, r, Unauthorized("Access token required"))
				return
			}

			owner := r.PathValue(param)
			if id.Role != RoleAdmin && (owner == "" || owner != id.UserID) {
				WriteError(w, r, Forbidden("Not authorized to access these records"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
