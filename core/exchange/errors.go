package exchange

import "errors"

var (
	// ErrNoSession is returned when no session is attached and creation was not requested.
	ErrNoSession = errors.New("exchange: no session")

	// ErrCommitted is returned when the session is accessed after the exchange was committed.
	ErrCommitted = errors.New("exchange: already committed")

	// ErrNoCoordinator is returned when the context carries no coordinator.
	ErrNoCoordinator = errors.New("exchange: no coordinator in context")

	// ErrInvalidConfig is returned for a Config missing required collaborators.
	ErrInvalidConfig = errors.New("exchange: invalid config")
)
