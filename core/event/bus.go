package event

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/dmitrymomot/extsession/core/logger"
)

// Bus routes session events to subscribed handlers through a Transport.
// It implements Publisher so repositories can emit into it directly.
//
// Example:
//
//	bus := event.NewBus()
//	unsubscribe := bus.Subscribe(event.HandlerFunc(func(ctx context.Context, evt event.SessionEvent) error {
//	    return connections.CloseSession(evt.SessionID)
//	}), event.Deleted, event.Expired)
//	defer unsubscribe()
type Bus struct {
	mu        sync.RWMutex
	handlers  map[Kind][]*subscription
	nextID    uint64
	transport Transport
	logger    *slog.Logger
}

type subscription struct {
	id      uint64
	handler Handler
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithTransport sets the delivery transport. The default is a SyncTransport.
func WithTransport(t Transport) BusOption {
	return func(b *Bus) {
		if t != nil {
			b.transport = t
		}
	}
}

// WithBusLogger sets the logger used for publish failures.
func WithBusLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

var allKinds = []Kind{Created, Deleted, Expired, AttributeChanged}

// NewBus creates an event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		handlers:  make(map[Kind][]*subscription),
		transport: NewSyncTransport(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.transport.Bind(b.lookup)
	return b
}

// Subscribe registers h for the given kinds, or for every kind when none are given.
// The returned function removes the subscription.
func (b *Bus) Subscribe(h Handler, kinds ...Kind) func() {
	if len(kinds) == 0 {
		kinds = allKinds
	}

	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, handler: h}
	for _, k := range slices.Compact(slices.Sorted(slices.Values(kinds))) {
		b.handlers[k] = append(b.handlers[k], sub)
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for k, subs := range b.handlers {
				b.handlers[k] = slices.DeleteFunc(subs, func(s *subscription) bool {
					return s.id == sub.id
				})
			}
		})
	}
}

// Publish hands the event to the transport.
func (b *Bus) Publish(ctx context.Context, evt SessionEvent) error {
	if err := b.transport.Dispatch(ctx, evt); err != nil {
		b.logger.ErrorContext(ctx, "failed to publish session event",
			logger.ID("event_id", evt.ID),
			logger.Event(evt.Kind.String()),
			logger.SessionID(evt.SessionID),
			logger.Error(err))
		return err
	}
	return nil
}

// Close closes the underlying transport.
func (b *Bus) Close() error {
	return b.transport.Close()
}

func (b *Bus) lookup(k Kind) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := b.handlers[k]
	out := make([]Handler, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.handler)
	}
	return out
}
