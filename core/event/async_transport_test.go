package event_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrymomot/extsession/core/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncTransport_Delivery(t *testing.T) {
	t.Parallel()

	t.Run("preserves publish order", func(t *testing.T) {
		t.Parallel()

		tr := event.NewAsyncTransport()
		bus := event.NewBus(event.WithTransport(tr))
		rec := &recorder{}
		bus.Subscribe(rec)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = tr.Run(ctx) }()

		for i := range 50 {
			kind := event.Created
			if i%2 == 1 {
				kind = event.Deleted
			}
			require.NoError(t, bus.Publish(context.Background(), event.New(kind, fmt.Sprintf("s%d", i/2), "")))
		}

		require.Eventually(t, func() bool {
			return len(rec.kinds()) == 50
		}, time.Second, 5*time.Millisecond)

		rec.mu.Lock()
		defer rec.mu.Unlock()
		for i := 0; i < 50; i += 2 {
			assert.Equal(t, event.Created, rec.events[i].Kind)
			assert.Equal(t, event.Deleted, rec.events[i+1].Kind)
			assert.Equal(t, rec.events[i].SessionID, rec.events[i+1].SessionID)
		}
	})

	t.Run("publish does not block without a worker", func(t *testing.T) {
		t.Parallel()

		tr := event.NewAsyncTransport()
		bus := event.NewBus(event.WithTransport(tr))
		bus.Subscribe(&recorder{})

		for i := range 1000 {
			require.NoError(t, bus.Publish(context.Background(), event.New(event.Created, fmt.Sprint(i), "")))
		}
		assert.Equal(t, 1000, tr.Pending())
	})

	t.Run("handler errors do not stop delivery", func(t *testing.T) {
		t.Parallel()

		tr := event.NewAsyncTransport()
		bus := event.NewBus(event.WithTransport(tr))
		bus.Subscribe(event.HandlerFunc(func(context.Context, event.SessionEvent) error {
			panic("boom")
		}))
		rec := &recorder{}
		bus.Subscribe(rec)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = tr.Run(ctx) }()

		require.NoError(t, bus.Publish(context.Background(), event.New(event.Created, "s1", "")))
		require.NoError(t, bus.Publish(context.Background(), event.New(event.Deleted, "s1", "")))

		require.Eventually(t, func() bool {
			return len(rec.kinds()) == 2
		}, time.Second, 5*time.Millisecond)
	})
}

func TestAsyncTransport_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("close drains the queue", func(t *testing.T) {
		t.Parallel()

		tr := event.NewAsyncTransport()
		bus := event.NewBus(event.WithTransport(tr))
		rec := &recorder{}
		bus.Subscribe(rec)

		for i := range 10 {
			require.NoError(t, bus.Publish(context.Background(), event.New(event.Created, fmt.Sprint(i), "")))
		}

		errCh := make(chan error, 1)
		go func() { errCh <- tr.Run(context.Background()) }()

		require.Eventually(t, func() bool {
			return tr.Pending() == 0
		}, time.Second, 5*time.Millisecond)

		require.NoError(t, bus.Close())
		require.NoError(t, <-errCh)
		assert.Len(t, rec.kinds(), 10)

		err := bus.Publish(context.Background(), event.New(event.Created, "late", ""))
		require.ErrorIs(t, err, event.ErrTransportClosed)
	})

	t.Run("run twice", func(t *testing.T) {
		t.Parallel()

		tr := event.NewAsyncTransport()
		event.NewBus(event.WithTransport(tr))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = tr.Run(ctx) }()

		require.NoError(t, tr.Dispatch(context.Background(), event.New(event.Created, "s1", "")))
		require.Eventually(t, func() bool {
			return tr.Pending() == 0
		}, time.Second, 5*time.Millisecond)

		require.ErrorIs(t, tr.Run(ctx), event.ErrTransportRunning)
	})

	t.Run("run unbound", func(t *testing.T) {
		t.Parallel()

		tr := event.NewAsyncTransport()
		require.ErrorIs(t, tr.Run(context.Background()), event.ErrTransportNotBound)
	})

	t.Run("run stops on context cancel", func(t *testing.T) {
		t.Parallel()

		tr := event.NewAsyncTransport()
		event.NewBus(event.WithTransport(tr))

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- tr.Run(ctx) }()
		cancel()

		select {
		case err := <-errCh:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("run did not return")
		}
	})

	t.Run("close without run", func(t *testing.T) {
		t.Parallel()

		tr := event.NewAsyncTransport()
		require.NoError(t, tr.Close())
		require.NoError(t, tr.Close())
	})
}
