package event

import "context"

// Transport moves published events to the handlers registered on a Bus.
type Transport interface {
	// Dispatch delivers evt. Sync transports return handler errors,
	// async transports only report enqueue failures.
	Dispatch(ctx context.Context, evt SessionEvent) error

	// Bind installs the handler lookup. The owning Bus calls it once.
	Bind(lookup func(Kind) []Handler)

	// Close releases resources. It is idempotent.
	Close() error
}
