package cookie

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/dmitrymomot/extsession/core/logger"
)

const (
	// DefaultName is the default session cookie name.
	DefaultName = "SESSION"
	// MaxCookieSize is the maximum size for a cookie (4KB).
	MaxCookieSize = 4096
	// minSecretLength is the minimum signing secret length.
	minSecretLength = 32
	// rememberMeMaxAge keeps the cookie for as long as the session lives.
	rememberMeMaxAge = math.MaxInt32
)

// Serializer reads and writes the session id cookie.
type Serializer struct {
	name          string
	domain        string
	domainPattern *regexp.Regexp
	path          string
	maxAge        int
	secure        *bool
	httpOnly      bool
	sameSite      http.SameSite
	useBase64     bool
	jvmRoute      string
	secrets       []string

	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Serializer beyond its Config.
type Option func(*Serializer)

// WithClock overrides the time source used for the Expires attribute.
func WithClock(now func() time.Time) Option {
	return func(s *Serializer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for skipped cookie values.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Serializer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Serializer from configuration.
func New(cfg Config, opts ...Option) (*Serializer, error) {
	if cfg.Domain != "" && cfg.DomainPattern != "" {
		return nil, ErrDomainConflict
	}

	sameSite, err := parseSameSite(cfg.SameSite)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, cfg.SameSite)
	}

	secrets := cfg.parseSecrets()
	for i := range len(secrets) {
		if len(secrets[i]) < minSecretLength {
			return nil, fmt.Errorf("%w: secret %d has %d chars, need at least %d",
				ErrSecretTooShort, i, len(secrets[i]), minSecretLength)
		}
	}

	s := &Serializer{
		name:      cfg.Name,
		domain:    cfg.Domain,
		path:      cfg.Path,
		maxAge:    cfg.MaxAge,
		secure:    parseSecure(cfg.Secure),
		httpOnly:  cfg.HttpOnly,
		sameSite:  sameSite,
		useBase64: cfg.UseBase64,
		jvmRoute:  cfg.JVMRoute,
		secrets:   secrets,
		now:       time.Now,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if s.name == "" {
		s.name = DefaultName
	}
	if s.path == "" {
		s.path = "/"
	}
	if cfg.JVMRoute != "" && !strings.HasPrefix(cfg.JVMRoute, ".") {
		s.jvmRoute = "." + cfg.JVMRoute
	}
	if cfg.DomainPattern != "" {
		re, err := regexp.Compile(cfg.DomainPattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDomainPattern, err)
		}
		s.domainPattern = re
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Name returns the cookie name.
func (s *Serializer) Name() string {
	return s.name
}

// ReadCookieValues returns the decoded values of every cookie carrying the
// session cookie name. Values that fail to decode or verify are skipped.
func (s *Serializer) ReadCookieValues(r *http.Request) []string {
	var values []string
	for _, c := range r.CookiesNamed(s.name) {
		v, err := s.decode(c.Value)
		if err != nil {
			s.logger.DebugContext(r.Context(), "skipping session cookie",
				slog.String("cookie", s.name),
				logger.Error(err))
			continue
		}
		values = append(values, v)
	}
	return values
}

// WriteCookieValue adds a Set-Cookie header carrying value.
//
// A negative maxAge applies the configured default (or the remember-me age when
// the request is marked with WithRememberMe); zero clears the cookie. Writing the
// same value twice within one response is a no-op.
func (s *Serializer) WriteCookieValue(w http.ResponseWriter, r *http.Request, value string, maxAge int) error {
	encoded := ""
	if value != "" {
		encoded = s.encode(value)
		if err := validateValue(encoded); err != nil {
			return err
		}
	}

	if maxAge < 0 {
		if IsRememberMe(r.Context()) {
			maxAge = rememberMeMaxAge
		} else {
			maxAge = s.maxAge
		}
	}

	c := &http.Cookie{
		Name:     s.name,
		Value:    encoded,
		Path:     s.path,
		Secure:   s.isSecure(r),
		HttpOnly: s.httpOnly,
		SameSite: s.sameSite,
	}
	switch {
	case maxAge == 0:
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	case maxAge > 0:
		c.MaxAge = maxAge
		c.Expires = s.now().Add(time.Duration(maxAge) * time.Second)
	}

	if domain := s.domainFor(r); domain != "" {
		if err := validateDomain(domain); err != nil {
			return err
		}
		c.Domain = domain
	}
	if err := validatePath(c.Path); err != nil {
		return err
	}

	if s.alreadyWritten(w.Header(), c) {
		return nil
	}

	line := c.String()
	if len(line) > MaxCookieSize {
		return fmt.Errorf("%w: header of %d bytes exceeds %d", ErrInvalidValue, len(line), MaxCookieSize)
	}
	w.Header().Add("Set-Cookie", line)
	return nil
}

// alreadyWritten reports whether the response already carries the cookie with
// the same value and lifetime.
func (s *Serializer) alreadyWritten(h http.Header, c *http.Cookie) bool {
	return slices.ContainsFunc(ParseSetCookies(h), func(existing *http.Cookie) bool {
		return existing.Name == c.Name &&
			existing.Value == c.Value &&
			existing.Path == c.Path &&
			existing.MaxAge == c.MaxAge
	})
}

func (s *Serializer) isSecure(r *http.Request) bool {
	if s.secure != nil {
		return *s.secure
	}
	return r.TLS != nil
}

func (s *Serializer) domainFor(r *http.Request) string {
	if s.domain != "" {
		return s.domain
	}
	if s.domainPattern == nil {
		return ""
	}
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	m := s.domainPattern.FindStringSubmatch(host)
	if len(m) < 2 || len(m[0]) != len(host) {
		return ""
	}
	return m[1]
}

func (s *Serializer) encode(value string) string {
	v := value + s.jvmRoute
	if len(s.secrets) > 0 {
		v = s.sign(v)
	}
	if s.useBase64 {
		v = base64.StdEncoding.EncodeToString([]byte(v))
	}
	return v
}

func (s *Serializer) decode(raw string) (string, error) {
	v := raw
	if s.useBase64 {
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return "", ErrInvalidFormat
		}
		v = string(b)
	}
	if len(s.secrets) > 0 {
		verified, err := s.verify(v)
		if err != nil {
			return "", err
		}
		v = verified
	}
	if s.jvmRoute != "" {
		v = strings.TrimSuffix(v, s.jvmRoute)
	}
	if v == "" {
		return "", ErrInvalidFormat
	}
	return v, nil
}

// sign creates an HMAC signature for the value.
func (s *Serializer) sign(value string) string {
	mac := hmac.New(sha256.New, []byte(s.secrets[0]))
	mac.Write([]byte(value))
	signature := base64.URLEncoding.EncodeToString(mac.Sum(nil))
	return base64.URLEncoding.EncodeToString([]byte(value)) + "|" + signature
}

// verify checks the HMAC signature of a signed value.
func (s *Serializer) verify(signed string) (string, error) {
	encodedValue, signature, ok := strings.Cut(signed, "|")
	if !ok {
		return "", ErrInvalidFormat
	}

	value, err := base64.URLEncoding.DecodeString(encodedValue)
	if err != nil {
		return "", ErrInvalidFormat
	}

	// Try all secrets for key rotation support
	valid := slices.ContainsFunc(s.secrets, func(secret string) bool {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(value)
		expectedSig := base64.URLEncoding.EncodeToString(mac.Sum(nil))
		return subtle.ConstantTimeCompare([]byte(signature), []byte(expectedSig)) == 1
	})
	if !valid {
		return "", ErrInvalidSignature
	}
	return string(value), nil
}

type rememberMeCtx struct{}

// WithRememberMe marks the request so that the session cookie outlives the browser session.
func WithRememberMe(ctx context.Context) context.Context {
	return context.WithValue(ctx, rememberMeCtx{}, true)
}

// IsRememberMe reports whether WithRememberMe marked the context.
func IsRememberMe(ctx context.Context) bool {
	v, _ := ctx.Value(rememberMeCtx{}).(bool)
	return v
}
