package sessiontransport

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrymomot/extsession/core/cookie"
)

// Config selects and configures the session id resolvers.
type Config struct {
	// Resolvers is a comma-separated list tried in order: cookie, header, jwt.
	Resolvers string `env:"SESSION_ID_RESOLVERS" envDefault:"cookie"`
	// HeaderName is used by the header resolver.
	HeaderName string `env:"SESSION_HEADER_NAME" envDefault:"X-Auth-Token"`
	JWT        JWTConfig
}

// JWTConfig provides environment-based configuration for the JWT resolver.
type JWTConfig struct {
	// SecretKey is the JWT signing secret (required, no default)
	SecretKey string `env:"SESSION_JWT_SECRET" envDefault:""`

	// AccessTTL is the token lifetime
	AccessTTL time.Duration `env:"SESSION_JWT_ACCESS_TTL" envDefault:"15m"`

	// Issuer is the JWT issuer claim
	Issuer string `env:"SESSION_JWT_ISSUER" envDefault:"extsession"`
}

// DefaultConfig returns a Config that resolves ids from the session cookie only.
func DefaultConfig() Config {
	return Config{
		Resolvers:  "cookie",
		HeaderName: HeaderXAuthToken,
		JWT:        DefaultJWTConfig(),
	}
}

// DefaultJWTConfig returns a JWTConfig with sensible defaults.
// Note: SecretKey must be set explicitly - it has no default.
func DefaultJWTConfig() JWTConfig {
	return JWTConfig{
		AccessTTL: 15 * time.Minute,
		Issuer:    "extsession",
	}
}

// NewJWTFromConfig creates a JWT resolver from configuration.
func NewJWTFromConfig(cfg JWTConfig, opts ...JWTOption) (*JWTResolver, error) {
	opts = append([]JWTOption{WithJWTTTL(cfg.AccessTTL), WithJWTIssuer(cfg.Issuer)}, opts...)
	return NewJWT(cfg.SecretKey, opts...)
}

// NewFromConfig builds the configured resolver chain. The cookie serializer is
// required only when the cookie resolver is enabled.
func NewFromConfig(cfg Config, serializer *cookie.Serializer, opts ...JWTOption) (IDResolver, error) {
	var chain Composite
	for _, name := range strings.Split(cfg.Resolvers, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
			continue
		case "cookie":
			if serializer == nil {
				return nil, ErrMissingSerializer
			}
			chain = append(chain, NewCookie(serializer))
		case "header":
			chain = append(chain, NewHeader(cfg.HeaderName))
		case "jwt":
			res, err := NewJWTFromConfig(cfg.JWT, opts...)
			if err != nil {
				return nil, err
			}
			chain = append(chain, res)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownResolver, name)
		}
	}

	switch len(chain) {
	case 0:
		return nil, ErrNoResolvers
	case 1:
		return chain[0], nil
	}
	return chain, nil
}
