// Package cookie writes and reads the session id cookie.
//
// Serializer renders a session id into a Set-Cookie header with Domain, Path,
// Max-Age, Expires, Secure, HttpOnly and SameSite attributes and reads candidate
// ids back from the request. Values are base64 encoded by default, may carry a
// load-balancer route suffix, and may be HMAC signed with a rotating set of secrets.
//
// # Configuration
//
//	cfg := cookie.DefaultConfig()          // SESSION, Path=/, HttpOnly, SameSite=Lax
//	cfg.DomainPattern = `^.+?\.(\w+\.[a-z]+)$` // share across subdomains
//	serializer, err := cookie.New(cfg)
//
// Config carries env tags, so it can be loaded with core/config:
//
//	cfg := config.MustLoad[cookie.Config]()
//
// Secure defaults to "auto": the attribute follows whether the request arrived over TLS.
//
// # Writing
//
//	// Persist the id with the configured lifetime.
//	err := serializer.WriteCookieValue(w, r, sess.ID(), -1)
//
//	// Clear the client-side id.
//	err := serializer.WriteCookieValue(w, r, "", 0)
//
// Writing the same value twice within one response adds only one header. Values,
// domains and paths with characters that would corrupt the header are rejected
// with ErrInvalidValue, ErrInvalidDomain or ErrInvalidPath.
//
// # Parsing
//
// ParseSetCookie and ParseSetCookies parse response headers back into cookies.
// They tolerate several Set-Cookie lines per response and match attribute names
// case-insensitively.
package cookie
