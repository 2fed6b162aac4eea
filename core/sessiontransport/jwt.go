package sessiontransport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/extsession/core/logger"
)

// JWTResolver carries the session id inside a signed HS256 token.
// Supports optional token revocation through the Revoker interface.
type JWTResolver struct {
	key          []byte
	revoker      Revoker
	headerName   string
	bearerPrefix bool
	issuer       string
	audience     string
	ttl          time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// SessionClaims represents JWT claims for session tokens.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// JWTOption configures the JWT resolver.
type JWTOption func(*JWTResolver)

// WithJWTHeaderName sets a custom header name for JWT tokens.
// Default is "Authorization".
func WithJWTHeaderName(name string) JWTOption {
	return func(t *JWTResolver) {
		if name != "" {
			t.headerName = name
		}
	}
}

// WithJWTBearerPrefix controls whether to use "Bearer " prefix.
// Default is true.
func WithJWTBearerPrefix(usePrefix bool) JWTOption {
	return func(t *JWTResolver) {
		t.bearerPrefix = usePrefix
	}
}

// WithJWTIssuer sets the issuer claim for generated tokens.
func WithJWTIssuer(issuer string) JWTOption {
	return func(t *JWTResolver) {
		t.issuer = issuer
	}
}

// WithJWTAudience sets the audience claim for generated tokens.
func WithJWTAudience(audience string) JWTOption {
	return func(t *JWTResolver) {
		t.audience = audience
	}
}

// WithJWTTTL sets the token lifetime. Default is 15 minutes.
func WithJWTTTL(ttl time.Duration) JWTOption {
	return func(t *JWTResolver) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithJWTRevoker enables revocation of expired tokens.
func WithJWTRevoker(r Revoker) JWTOption {
	return func(t *JWTResolver) {
		if r != nil {
			t.revoker = r
		}
	}
}

// WithJWTClock overrides the time source for issued tokens.
func WithJWTClock(now func() time.Time) JWTOption {
	return func(t *JWTResolver) {
		if now != nil {
			t.now = now
		}
	}
}

// WithJWTLogger sets the logger used for rejected tokens.
func WithJWTLogger(logger *slog.Logger) JWTOption {
	return func(t *JWTResolver) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewJWT creates a JWT-based session id resolver.
func NewJWT(signingKey string, opts ...JWTOption) (*JWTResolver, error) {
	if signingKey == "" {
		return nil, ErrMissingSecret
	}

	t := &JWTResolver{
		key:          []byte(signingKey),
		revoker:      NoOpRevoker{},
		headerName:   "Authorization",
		bearerPrefix: true,
		ttl:          15 * time.Minute,
		now:          time.Now,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// ResolveSessionIDs implements IDResolver. Invalid, expired or revoked tokens yield no ids.
func (t *JWTResolver) ResolveSessionIDs(r *http.Request) []string {
	claims, err := t.extract(r)
	if err != nil {
		if !errors.Is(err, ErrNoToken) {
			t.logger.DebugContext(r.Context(), "rejecting session token", logger.Error(err))
		}
		return nil
	}
	return []string{claims.SessionID}
}

// SetSessionID issues a token for id and sets it on the response header.
func (t *JWTResolver) SetSessionID(w http.ResponseWriter, _ *http.Request, id string) error {
	token, err := t.Issue(id)
	if err != nil {
		return err
	}
	if t.bearerPrefix {
		token = "Bearer " + token
	}
	w.Header().Set(t.headerName, token)
	return nil
}

// NeedsRefresh implements Refresher. A valid request token with less than half
// of the configured lifetime left is due for re-issue.
func (t *JWTResolver) NeedsRefresh(r *http.Request) bool {
	claims, err := t.extract(r)
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Sub(t.now()) < t.ttl/2
}

// ExpireSession removes the token from the response and revokes the token of the request.
func (t *JWTResolver) ExpireSession(w http.ResponseWriter, r *http.Request) error {
	w.Header().Del(t.headerName)

	claims, err := t.extract(r)
	if err != nil || claims.ID == "" {
		return nil // Nothing valid to revoke
	}
	return t.revoker.Revoke(r.Context(), claims.ID)
}

// Issue signs a token carrying the session id.
func (t *JWTResolver) Issue(sessionID string) (string, error) {
	now := t.now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			Issuer:    t.issuer,
		},
		SessionID: sessionID,
	}
	if t.audience != "" {
		claims.Audience = jwt.ClaimStrings{t.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

func (t *JWTResolver) extract(r *http.Request) (*SessionClaims, error) {
	authHeader := r.Header.Get(t.headerName)
	if authHeader == "" {
		return nil, ErrNoToken
	}

	tokenString := authHeader
	if t.bearerPrefix {
		scheme, rest, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" {
			return nil, ErrInvalidToken
		}
		tokenString = strings.TrimSpace(rest)
	}
	if tokenString == "" {
		return nil, ErrNoToken
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	}
	if t.issuer != "" {
		options = append(options, jwt.WithIssuer(t.issuer))
	}
	if t.audience != "" {
		options = append(options, jwt.WithAudience(t.audience))
	}

	var claims SessionClaims
	_, err := jwt.NewParser(options...).ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return t.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.SessionID == "" {
		return nil, ErrInvalidToken
	}

	if claims.ID != "" {
		revoked, err := t.revoker.IsRevoked(r.Context(), claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrInvalidToken
		}
	}
	return &claims, nil
}
