package cookie

import (
	"net/http"
	"strings"
)

// Config provides environment-based configuration for the session cookie serializer.
type Config struct {
	Name string `env:"SESSION_COOKIE_NAME" envDefault:"SESSION"`
	// Domain and DomainPattern are mutually exclusive. The pattern is matched
	// against the request host and its first capture group becomes the domain.
	Domain        string `env:"SESSION_COOKIE_DOMAIN" envDefault:""`
	DomainPattern string `env:"SESSION_COOKIE_DOMAIN_PATTERN" envDefault:""`
	Path          string `env:"SESSION_COOKIE_PATH" envDefault:"/"`
	// MaxAge in seconds. Negative means a session cookie without Max-Age.
	MaxAge int `env:"SESSION_COOKIE_MAX_AGE" envDefault:"-1"`
	// Secure is "auto" (follow the request scheme), "true" or "false".
	Secure   string `env:"SESSION_COOKIE_SECURE" envDefault:"auto"`
	HttpOnly bool   `env:"SESSION_COOKIE_HTTP_ONLY" envDefault:"true"`
	// SameSite is Strict, Lax or None. Empty omits the attribute.
	SameSite  string `env:"SESSION_COOKIE_SAME_SITE" envDefault:"Lax"`
	UseBase64 bool   `env:"SESSION_COOKIE_BASE64" envDefault:"true"`
	// JVMRoute is appended to the id so that sticky load balancers can route on it.
	JVMRoute string `env:"SESSION_COOKIE_ROUTE" envDefault:""`
	// Secrets is a comma-separated list of HMAC signing secrets. The first one
	// signs, all of them verify. Empty disables signing.
	Secrets string `env:"SESSION_COOKIE_SECRETS" envDefault:""`
}

// DefaultConfig returns a Config with secure defaults.
func DefaultConfig() Config {
	return Config{
		Name:      DefaultName,
		Path:      "/",
		MaxAge:    -1,
		Secure:    "auto",
		HttpOnly:  true,
		SameSite:  "Lax",
		UseBase64: true,
	}
}

// parseSecrets splits comma-separated secrets for key rotation support.
// Empty strings are filtered out to prevent cryptographic vulnerabilities.
func (c Config) parseSecrets() []string {
	if c.Secrets == "" {
		return nil
	}

	parts := strings.Split(c.Secrets, ",")
	secrets := make([]string, 0, len(parts))

	for _, s := range parts {
		s = strings.TrimSpace(s)
		if s != "" {
			secrets = append(secrets, s)
		}
	}

	return secrets
}

func parseSameSite(v string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return 0, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	}
	return 0, ErrInvalidSameSite
}

// parseSecure returns nil for "auto".
func parseSecure(v string) *bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		b := true
		return &b
	case "false", "0", "no", "off":
		b := false
		return &b
	}
	return nil
}
