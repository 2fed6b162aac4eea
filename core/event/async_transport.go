package event

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/dmitrymomot/extsession/core/logger"
)

// AsyncTransport queues events and delivers them from a single worker goroutine.
// Dispatch never blocks and never drops: the queue is unbounded, so lifecycle
// events survive bursts. The single worker keeps per-session ordering, so a
// Created is always handled before the Deleted or Expired of the same session.
type AsyncTransport struct {
	mu      sync.Mutex
	pending *queue.Queue
	signal  chan struct{}
	done    chan struct{}
	closed  bool
	running bool

	lookup          func(Kind) []Handler
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

type queued struct {
	ctx context.Context
	evt SessionEvent
}

// AsyncOption configures an AsyncTransport.
type AsyncOption func(*AsyncTransport)

// WithAsyncLogger sets the logger used for handler failures.
func WithAsyncLogger(logger *slog.Logger) AsyncOption {
	return func(t *AsyncTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithShutdownTimeout bounds how long Close waits for the queue to drain.
func WithShutdownTimeout(d time.Duration) AsyncOption {
	return func(t *AsyncTransport) {
		if d > 0 {
			t.shutdownTimeout = d
		}
	}
}

// NewAsyncTransport creates an asynchronous transport. Call Run to start delivery.
func NewAsyncTransport(opts ...AsyncOption) *AsyncTransport {
	t := &AsyncTransport{
		pending:         queue.New(),
		signal:          make(chan struct{}, 1),
		done:            make(chan struct{}),
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		shutdownTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Dispatch enqueues the event. The dispatch context's values are preserved
// for handlers but its cancellation is not, since delivery outlives the request.
func (t *AsyncTransport) Dispatch(ctx context.Context, evt SessionEvent) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.pending.Add(queued{ctx: context.WithoutCancel(ctx), evt: evt})
	t.mu.Unlock()

	t.notify()
	return nil
}

// Bind implements Transport.
func (t *AsyncTransport) Bind(lookup func(Kind) []Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lookup == nil {
		t.lookup = lookup
	}
}

// Run delivers events until ctx is cancelled or the transport is closed and drained.
// It is blocking; run it in its own goroutine or an errgroup.
func (t *AsyncTransport) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return ErrTransportRunning
	}
	if t.lookup == nil {
		t.mu.Unlock()
		return ErrTransportNotBound
	}
	t.running = true
	t.mu.Unlock()
	defer close(t.done)

	for {
		item, ok, closed := t.next()
		if ok {
			t.deliver(item)
			continue
		}
		if closed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.signal:
		}
	}
}

// Pending returns the number of queued events.
func (t *AsyncTransport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending.Length()
}

// Close stops accepting events and waits for queued ones to be delivered.
func (t *AsyncTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	running := t.running
	t.mu.Unlock()

	t.notify()
	if !running {
		return nil
	}

	select {
	case <-t.done:
		return nil
	case <-time.After(t.shutdownTimeout):
		return fmt.Errorf("event transport: shutdown timeout exceeded after %s", t.shutdownTimeout)
	}
}

func (t *AsyncTransport) next() (queued, bool, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending.Length() == 0 {
		return queued{}, false, t.closed
	}
	return t.pending.Remove().(queued), true, t.closed
}

func (t *AsyncTransport) notify() {
	select {
	case t.signal <- struct{}{}:
	default:
	}
}

func (t *AsyncTransport) deliver(item queued) {
	ctx := WithEvent(item.ctx, item.evt)
	for _, h := range t.lookup(item.evt.Kind) {
		start := time.Now()
		if err := safeHandle(ctx, h, item.evt); err != nil {
			t.logger.ErrorContext(ctx, "session event handler failed",
				logger.ID("event_id", item.evt.ID),
				logger.Event(item.evt.Kind.String()),
				logger.SessionID(item.evt.SessionID),
				logger.Elapsed(start),
				logger.Error(err))
		}
	}
}
