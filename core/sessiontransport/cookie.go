package sessiontransport

import (
	"net/http"

	"github.com/dmitrymomot/extsession/core/cookie"
)

// CookieResolver keeps the session id in a cookie written by a cookie.Serializer.
type CookieResolver struct {
	serializer *cookie.Serializer
}

// NewCookie creates a cookie-based resolver.
func NewCookie(serializer *cookie.Serializer) *CookieResolver {
	return &CookieResolver{serializer: serializer}
}

// ResolveSessionIDs implements IDResolver.
func (c *CookieResolver) ResolveSessionIDs(r *http.Request) []string {
	return c.serializer.ReadCookieValues(r)
}

// SetSessionID writes the id with the configured cookie lifetime. Requests
// marked with cookie.WithRememberMe get a long-lived cookie instead.
func (c *CookieResolver) SetSessionID(w http.ResponseWriter, r *http.Request, id string) error {
	return c.serializer.WriteCookieValue(w, r, id, -1)
}

// ExpireSession clears the cookie.
func (c *CookieResolver) ExpireSession(w http.ResponseWriter, r *http.Request) error {
	return c.serializer.WriteCookieValue(w, r, "", 0)
}
