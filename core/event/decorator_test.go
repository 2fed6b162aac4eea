package event_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dmitrymomot/extsession/core/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_Order(t *testing.T) {
	t.Parallel()

	var order []string
	mark := func(name string) event.Decorator {
		return func(next event.Handler) event.Handler {
			return event.HandlerFunc(func(ctx context.Context, evt event.SessionEvent) error {
				order = append(order, name)
				return next.Handle(ctx, evt)
			})
		}
	}

	h := event.Apply(event.HandlerFunc(func(context.Context, event.SessionEvent) error {
		order = append(order, "handler")
		return nil
	}), mark("a"), mark("b"))

	require.NoError(t, h.Handle(context.Background(), event.New(event.Created, "s1", "")))
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestDeduplicate(t *testing.T) {
	t.Parallel()

	t.Run("drops repeated terminal events", func(t *testing.T) {
		t.Parallel()

		rec := &recorder{}
		h := event.Apply(rec, event.Deduplicate(time.Minute))
		ctx := context.Background()

		require.NoError(t, h.Handle(ctx, event.New(event.Expired, "s1", "")))
		require.NoError(t, h.Handle(ctx, event.New(event.Deleted, "s1", "")))
		require.NoError(t, h.Handle(ctx, event.New(event.Expired, "s1", "")))
		require.NoError(t, h.Handle(ctx, event.New(event.Expired, "s2", "")))

		assert.Equal(t, []event.Kind{event.Expired, event.Expired}, rec.kinds())
	})

	t.Run("non terminal events pass through", func(t *testing.T) {
		t.Parallel()

		rec := &recorder{}
		h := event.Apply(rec, event.Deduplicate(time.Minute))
		ctx := context.Background()

		require.NoError(t, h.Handle(ctx, event.New(event.Created, "s1", "")))
		require.NoError(t, h.Handle(ctx, event.New(event.Created, "s1", "")))

		assert.Len(t, rec.kinds(), 2)
	})

	t.Run("window elapses", func(t *testing.T) {
		t.Parallel()

		rec := &recorder{}
		h := event.Apply(rec, event.Deduplicate(10*time.Millisecond))
		ctx := context.Background()

		require.NoError(t, h.Handle(ctx, event.New(event.Deleted, "s1", "")))
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, h.Handle(ctx, event.New(event.Deleted, "s1", "")))

		assert.Len(t, rec.kinds(), 2)
	})
}

func TestLogging(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	errBoom := errors.New("boom")
	h := event.Apply(event.HandlerFunc(func(_ context.Context, evt event.SessionEvent) error {
		if evt.Kind == event.Deleted {
			return errBoom
		}
		return nil
	}), event.Logging(logger))

	require.NoError(t, h.Handle(context.Background(), event.New(event.Created, "s1", "alice")))
	require.ErrorIs(t, h.Handle(context.Background(), event.New(event.Deleted, "s1", "")), errBoom)

	out := buf.String()
	assert.Contains(t, out, "session event handled")
	assert.Contains(t, out, "principal=alice")
	assert.Contains(t, out, "session event handler failed")
	assert.Contains(t, out, "error=boom")
}
