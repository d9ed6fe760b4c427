package httpx

import (
	"net/http"
	"time"
)

// RefreshCookie describes the cookie that carries the refresh token.
type RefreshCookie struct {
	Name   string
	Path   string
	Secure bool
	MaxAge time.Duration
}

// DefaultRefreshCookieName is the cookie browsers already hold.
const DefaultRefreshCookieName = "refreshToken"

func (c RefreshCookie) name() string {
	if c.Name == "" {
		return DefaultRefreshCookieName
	}
	return c.Name
}

func (c RefreshCookie) path() string {
	if c.Path == "" {
		return "/"
	}
	return c.Path
}

// Set stores token in the cookie.
func (c RefreshCookie) Set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    token,
		Path:     c.path(),
		MaxAge:   int(c.MaxAge.Seconds()),
		Expires:  time.Now().Add(c.MaxAge).UTC(),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Clear expires the cookie immediately.
func (c RefreshCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    "",
		Path:     c.path(),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Read returns the refresh token, if the request carries one.
func (c RefreshCookie) Read(r *http.Request) (string, bool) {
	ck, err := r.Cookie(c.name())
	if err != nil || ck.Value == "" {
		return "", false
	}
	return ck.Value, true
}
