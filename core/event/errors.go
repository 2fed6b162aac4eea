package event

import "errors"

var (
	// ErrTransportClosed is returned when publishing through a closed transport.
	ErrTransportClosed = errors.New("event transport is closed")

	// ErrTransportNotBound is returned when a transport is used before a bus owns it.
	ErrTransportNotBound = errors.New("event transport is not bound to a bus")

	// ErrTransportRunning is returned when an async transport is started twice.
	ErrTransportRunning = errors.New("event transport already running")

	// ErrHandlerPanicked wraps a recovered handler panic.
	ErrHandlerPanicked = errors.New("event handler panicked")
)
