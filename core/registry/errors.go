package registry

import "errors"

var (
	// ErrConcurrentSessionLimitExceeded is returned when a principal already holds
	// the maximum number of live sessions. It is distinct from bad credentials.
	ErrConcurrentSessionLimitExceeded = errors.New("maximum concurrent sessions exceeded")

	// ErrUnknownPolicy is returned for an unsupported concurrency policy name.
	ErrUnknownPolicy = errors.New("unknown concurrency policy")
)
