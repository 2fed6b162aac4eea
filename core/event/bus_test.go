package event_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dmitrymomot/extsession/core/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []event.SessionEvent
}

func (r *recorder) Handle(_ context.Context, evt event.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) kinds() []event.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func TestBus_Subscribe(t *testing.T) {
	t.Parallel()

	t.Run("delivers only subscribed kinds", func(t *testing.T) {
		t.Parallel()

		bus := event.NewBus()
		rec := &recorder{}
		bus.Subscribe(rec, event.Deleted, event.Expired)

		ctx := context.Background()
		require.NoError(t, bus.Publish(ctx, event.New(event.Created, "s1", "")))
		require.NoError(t, bus.Publish(ctx, event.New(event.Deleted, "s1", "")))
		require.NoError(t, bus.Publish(ctx, event.New(event.Expired, "s2", "bob")))

		assert.Equal(t, []event.Kind{event.Deleted, event.Expired}, rec.kinds())
	})

	t.Run("no kinds subscribes to everything", func(t *testing.T) {
		t.Parallel()

		bus := event.NewBus()
		rec := &recorder{}
		bus.Subscribe(rec)

		ctx := context.Background()
		for _, k := range []event.Kind{event.Created, event.AttributeChanged, event.Deleted, event.Expired} {
			require.NoError(t, bus.Publish(ctx, event.New(k, "s1", "")))
		}
		assert.Len(t, rec.kinds(), 4)
	})

	t.Run("duplicate kinds deliver once", func(t *testing.T) {
		t.Parallel()

		bus := event.NewBus()
		rec := &recorder{}
		bus.Subscribe(rec, event.Deleted, event.Deleted)

		require.NoError(t, bus.Publish(context.Background(), event.New(event.Deleted, "s1", "")))
		assert.Len(t, rec.kinds(), 1)
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		t.Parallel()

		bus := event.NewBus()
		rec := &recorder{}
		unsubscribe := bus.Subscribe(rec)

		ctx := context.Background()
		require.NoError(t, bus.Publish(ctx, event.New(event.Created, "s1", "")))
		unsubscribe()
		unsubscribe()
		require.NoError(t, bus.Publish(ctx, event.New(event.Deleted, "s1", "")))

		assert.Equal(t, []event.Kind{event.Created}, rec.kinds())
	})
}

func TestBus_Publish_Errors(t *testing.T) {
	t.Parallel()

	t.Run("handler error is returned by sync transport", func(t *testing.T) {
		t.Parallel()

		errBoom := errors.New("boom")
		bus := event.NewBus()
		bus.Subscribe(event.HandlerFunc(func(context.Context, event.SessionEvent) error {
			return errBoom
		}))
		rec := &recorder{}
		bus.Subscribe(rec)

		err := bus.Publish(context.Background(), event.New(event.Created, "s1", ""))
		require.ErrorIs(t, err, errBoom)
		assert.Len(t, rec.kinds(), 1, "other handlers still run")
	})

	t.Run("panic is recovered", func(t *testing.T) {
		t.Parallel()

		bus := event.NewBus()
		bus.Subscribe(event.HandlerFunc(func(context.Context, event.SessionEvent) error {
			panic("handler exploded")
		}))

		err := bus.Publish(context.Background(), event.New(event.Created, "s1", ""))
		require.ErrorIs(t, err, event.ErrHandlerPanicked)
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		bus := event.NewBus()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := bus.Publish(ctx, event.New(event.Created, "s1", ""))
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestSyncTransport_EventInContext(t *testing.T) {
	t.Parallel()

	bus := event.NewBus()
	var seen string
	bus.Subscribe(event.HandlerFunc(func(ctx context.Context, _ event.SessionEvent) error {
		seen = event.EventID(ctx)
		return nil
	}))

	evt := event.New(event.Created, "s1", "")
	require.NoError(t, bus.Publish(context.Background(), evt))
	assert.Equal(t, evt.ID, seen)
}

func TestSyncTransport_Unbound(t *testing.T) {
	t.Parallel()

	tr := event.NewSyncTransport()
	err := tr.Dispatch(context.Background(), event.New(event.Created, "s1", ""))
	require.ErrorIs(t, err, event.ErrTransportNotBound)
}

func TestKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "created", event.Created.String())
	assert.Equal(t, "attribute_changed", event.AttributeChanged.String())
	assert.Equal(t, "unknown", event.Kind(0).String())
	assert.True(t, event.Deleted.IsTerminal())
	assert.True(t, event.Expired.IsTerminal())
	assert.False(t, event.Created.IsTerminal())
	assert.False(t, event.AttributeChanged.IsTerminal())
}

func TestNew(t *testing.T) {
	t.Parallel()

	a := event.New(event.Expired, "s1", "bob")
	b := event.New(event.Expired, "s1", "bob")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "s1", a.SessionID)
	assert.Equal(t, "bob", a.Principal)
	assert.False(t, a.OccurredAt.IsZero())
}
