package exchange

import (
	"context"

	"github.com/dmitrymomot/extsession/core/session"
)

type coordinatorKey struct{}

// WithCoordinator returns a context carrying c.
func WithCoordinator(ctx context.Context, c *Coordinator) context.Context {
	return context.WithValue(ctx, coordinatorKey{}, c)
}

// FromContext returns the coordinator of the current exchange.
func FromContext(ctx context.Context) (*Coordinator, bool) {
	c, ok := ctx.Value(coordinatorKey{}).(*Coordinator)
	return c, ok && c != nil
}

// GetSession is a shortcut for FromContext(ctx) followed by Session(ctx, create).
func GetSession(ctx context.Context, create bool) (*session.Session, error) {
	c, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoCoordinator
	}
	return c.Session(ctx, create)
}
