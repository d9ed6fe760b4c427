package httpx

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/aussiebroadwan/mediscan/pkg/slogx"
)

// Recover turns a panicking handler into a 500 response.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				slogx.FromContext(r.Context()).Error("panic recovered",
					"panic", fmt.Sprint(rec),
					"stack", string(debug.Stack()),
				)
				WriteError(w, r, Internal(fmt.Errorf("panic: %v", rec)))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
