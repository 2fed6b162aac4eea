package event

import (
	"context"
	"errors"
	"sync"
)

// SyncTransport executes handlers in the publisher's goroutine.
// Events for a session are therefore observed in publish order.
//
// Use cases:
//   - Tests (deterministic execution)
//   - Single-instance applications where consumers are cheap
type SyncTransport struct {
	lookup func(Kind) []Handler
	once   sync.Once
}

// NewSyncTransport creates a synchronous transport.
func NewSyncTransport() *SyncTransport {
	return &SyncTransport{}
}

// Dispatch runs all handlers for the event kind and joins their errors.
// Panics are converted to errors.
func (t *SyncTransport) Dispatch(ctx context.Context, evt SessionEvent) error {
	if t.lookup == nil {
		return ErrTransportNotBound
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx = WithEvent(ctx, evt)
	var errs []error
	for _, h := range t.lookup(evt.Kind) {
		if err := safeHandle(ctx, h, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Bind implements Transport.
func (t *SyncTransport) Bind(lookup func(Kind) []Handler) {
	t.once.Do(func() {
		t.lookup = lookup
	})
}

// Close is a no-op.
func (t *SyncTransport) Close() error {
	return nil
}
