package event

import "context"

type eventCtx struct{}

// WithEvent attaches the event being handled to the context.
func WithEvent(ctx context.Context, evt SessionEvent) context.Context {
	return context.WithValue(ctx, eventCtx{}, evt)
}

// FromContext returns the event being handled, if any.
func FromContext(ctx context.Context) (SessionEvent, bool) {
	evt, ok := ctx.Value(eventCtx{}).(SessionEvent)
	return evt, ok
}

// EventID extracts the id of the event being handled.
// Returns empty string if not present.
func EventID(ctx context.Context) string {
	if evt, ok := FromContext(ctx); ok {
		return evt.ID
	}
	return ""
}
