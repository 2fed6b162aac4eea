package event

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/extsession/core/logger"
)

// Decorator wraps a Handler to add cross-cutting behavior.
type Decorator func(Handler) Handler

// Apply wraps h with decorators. The first decorator becomes the outermost wrapper.
//
// Execution order for Apply(h, a, b): a -> b -> h
func Apply(h Handler, decorators ...Decorator) Handler {
	for i := len(decorators) - 1; i >= 0; i-- {
		h = decorators[i](h)
	}
	return h
}

// Deduplicate drops terminal events (Deleted or Expired) already seen for the
// same session within window. Notification feeds are at-least-once; consumers
// that are not naturally idempotent wrap themselves with it.
func Deduplicate(window time.Duration) Decorator {
	return func(next Handler) Handler {
		d := &dedup{next: next, window: window, seen: make(map[string]time.Time)}
		return HandlerFunc(d.handle)
	}
}

type dedup struct {
	mu     sync.Mutex
	next   Handler
	window time.Duration
	seen   map[string]time.Time
}

func (d *dedup) handle(ctx context.Context, evt SessionEvent) error {
	if !evt.Kind.IsTerminal() {
		return d.next.Handle(ctx, evt)
	}

	now := time.Now()
	d.mu.Lock()
	for id, at := range d.seen {
		if now.Sub(at) > d.window {
			delete(d.seen, id)
		}
	}
	if _, dup := d.seen[evt.SessionID]; dup {
		d.mu.Unlock()
		return nil
	}
	d.seen[evt.SessionID] = now
	d.mu.Unlock()

	return d.next.Handle(ctx, evt)
}

// Logging logs every delivered event and handler failures.
func Logging(log *slog.Logger) Decorator {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, evt SessionEvent) error {
			start := time.Now()
			err := next.Handle(ctx, evt)
			attrs := []slog.Attr{
				logger.ID("event_id", evt.ID),
				logger.Event(evt.Kind.String()),
				logger.SessionID(evt.SessionID),
				logger.Duration(time.Since(start)),
			}
			if evt.Principal != "" {
				attrs = append(attrs, logger.Principal(evt.Principal))
			}
			if err != nil {
				attrs = append(attrs, logger.Error(err))
				log.LogAttrs(ctx, slog.LevelError, "session event handler failed", attrs...)
				return err
			}
			log.LogAttrs(ctx, slog.LevelDebug, "session event handled", attrs...)
			return nil
		})
	}
}
