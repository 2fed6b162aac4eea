package cookie

import "errors"

var (
	// ErrSecretTooShort indicates a signing secret below the minimum length.
	ErrSecretTooShort = errors.New("secret must be at least 32 characters long")

	// ErrInvalidSignature indicates cookie signature verification failed,
	// suggesting tampering or a rotated-out key.
	ErrInvalidSignature = errors.New("cookie signature verification failed")

	// ErrInvalidFormat indicates the cookie value could not be decoded.
	ErrInvalidFormat = errors.New("invalid cookie format")

	// ErrInvalidValue indicates a character not allowed in a cookie value.
	ErrInvalidValue = errors.New("invalid character in cookie value")

	// ErrInvalidDomain indicates a malformed cookie domain.
	ErrInvalidDomain = errors.New("invalid cookie domain")

	// ErrInvalidPath indicates a character not allowed in a cookie path.
	ErrInvalidPath = errors.New("invalid cookie path")

	// ErrInvalidSameSite indicates an unsupported SameSite value.
	ErrInvalidSameSite = errors.New("invalid SameSite value")

	// ErrDomainConflict is returned when both a domain and a domain pattern are configured.
	ErrDomainConflict = errors.New("cookie domain and domain pattern are mutually exclusive")

	// ErrInvalidDomainPattern indicates a domain pattern that does not compile.
	ErrInvalidDomainPattern = errors.New("invalid cookie domain pattern")
)
