package event

import (
	"context"
	"fmt"
)

// Handler consumes session events. Handlers must be idempotent: feeds derived
// from backend notifications may deliver the same event more than once.
type Handler interface {
	Handle(ctx context.Context, evt SessionEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, evt SessionEvent) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, evt SessionEvent) error {
	return f(ctx, evt)
}

// Publisher emits session events. Repositories depend on this interface only.
type Publisher interface {
	Publish(ctx context.Context, evt SessionEvent) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, SessionEvent) error {
	return nil
}

// safeHandle runs the handler and converts a panic into an error.
func safeHandle(ctx context.Context, h Handler, evt SessionEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanicked, r)
		}
	}()
	return h.Handle(ctx, evt)
}
