package sessiontransport

import (
	"net/http"
	"strings"
)

const (
	// HeaderXAuthToken is the conventional header for API session ids.
	HeaderXAuthToken = "X-Auth-Token"
	// HeaderAuthenticationInfo is the RFC 7615 response header.
	HeaderAuthenticationInfo = "Authentication-Info"
)

// HeaderResolver keeps the session id in a request and response header.
// Clients read the id from the response and send it back on later requests.
type HeaderResolver struct {
	name string
}

// NewHeader creates a header-based resolver.
func NewHeader(name string) *HeaderResolver {
	return &HeaderResolver{name: name}
}

// XAuthToken resolves ids from the X-Auth-Token header.
func XAuthToken() *HeaderResolver {
	return NewHeader(HeaderXAuthToken)
}

// AuthenticationInfo resolves ids from the Authentication-Info header.
func AuthenticationInfo() *HeaderResolver {
	return NewHeader(HeaderAuthenticationInfo)
}

// ResolveSessionIDs implements IDResolver.
func (h *HeaderResolver) ResolveSessionIDs(r *http.Request) []string {
	v := strings.TrimSpace(r.Header.Get(h.name))
	if v == "" {
		return nil
	}
	return []string{v}
}

// SetSessionID implements IDResolver.
func (h *HeaderResolver) SetSessionID(w http.ResponseWriter, _ *http.Request, id string) error {
	w.Header().Set(h.name, id)
	return nil
}

// ExpireSession sends an empty header value.
func (h *HeaderResolver) ExpireSession(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set(h.name, "")
	return nil
}
