package cookie

import (
	"net/http"
)

// ParseSetCookie parses one Set-Cookie header line. Attribute names are matched
// case-insensitively. A Max-Age of zero is reported as MaxAge < 0, meaning the
// cookie must be deleted now.
func ParseSetCookie(line string) (*http.Cookie, error) {
	c, err := http.ParseSetCookie(line)
	if err != nil {
		return nil, ErrInvalidFormat
	}
	return c, nil
}

// ParseSetCookies parses every Set-Cookie line of h, skipping malformed ones.
func ParseSetCookies(h http.Header) []*http.Cookie {
	lines := h.Values("Set-Cookie")
	cookies := make([]*http.Cookie, 0, len(lines))
	for _, line := range lines {
		c, err := ParseSetCookie(line)
		if err != nil {
			continue
		}
		cookies = append(cookies, c)
	}
	return cookies
}

// Find returns the last cookie named name in the Set-Cookie lines of h.
// Later directives override earlier ones, as browsers apply them in order.
func Find(h http.Header, name string) (*http.Cookie, bool) {
	var found *http.Cookie
	for _, c := range ParseSetCookies(h) {
		if c.Name == name {
			found = c
		}
	}
	return found, found != nil
}
