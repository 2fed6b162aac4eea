package sessiontransport

import "errors"

var (
	// ErrNoToken is returned when no authentication token is present in the request
	ErrNoToken = errors.New("sessiontransport: no token")

	// ErrInvalidToken is returned when the token format or signature is invalid
	ErrInvalidToken = errors.New("sessiontransport: invalid token")

	// ErrMissingSecret is returned when a JWT resolver is configured without a signing key
	ErrMissingSecret = errors.New("sessiontransport: JWT secret key is required")

	// ErrMissingSerializer is returned when the cookie resolver is enabled without a cookie serializer
	ErrMissingSerializer = errors.New("sessiontransport: cookie resolver requires a serializer")

	// ErrUnknownResolver is returned for an unsupported resolver name
	ErrUnknownResolver = errors.New("sessiontransport: unknown resolver")

	// ErrNoResolvers is returned when the configuration enables no resolver
	ErrNoResolvers = errors.New("sessiontransport: no resolvers configured")
)
