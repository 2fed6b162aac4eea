package janitor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/extsession/core/janitor"
	"github.com/dmitrymomot/extsession/core/session"
)

func TestJanitor_SweepAll(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	observed := map[string]int{}
	j := janitor.New(janitor.WithObserver(func(name string, n int) {
		mu.Lock()
		defer mu.Unlock()
		observed[name] += n
	}))

	require.NoError(t, j.Add("a", janitor.SweeperFunc(func(context.Context) (int, error) { return 2, nil })))
	require.NoError(t, j.Add("b", janitor.SweeperFunc(func(context.Context) (int, error) {
		return 1, errors.New("boom")
	})))
	require.ErrorIs(t, j.Add("a", janitor.SweeperFunc(nil)), janitor.ErrSweeperAlreadyRegistered)

	assert.Equal(t, 3, j.SweepAll(context.Background()))
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, observed)

	stats := j.Stats()
	assert.Equal(t, int64(2), stats.Sweeps)
	assert.Equal(t, int64(3), stats.Removed)
	assert.Equal(t, int64(1), stats.Failures)
	assert.False(t, stats.IsRunning)
}

func TestJanitor_RemovesExpiredSessions(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var offset atomic.Int64
	clock := func() time.Time { return now.Add(time.Duration(offset.Load())) }

	repo := session.NewMemoryRepository(session.WithClock(clock))
	for range 3 {
		s, err := repo.CreateSession(context.Background())
		require.NoError(t, err)
		require.NoError(t, repo.Save(context.Background(), s))
	}
	offset.Store(int64(time.Hour))

	j := janitor.New()
	require.NoError(t, j.Add("memory", repo))
	assert.Equal(t, 3, j.SweepAll(context.Background()))
	assert.Zero(t, repo.Len())
}

func TestJanitor_Run(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	j := janitor.New(janitor.WithInterval(10 * time.Millisecond))
	require.NoError(t, j.Add("count", janitor.SweeperFunc(func(context.Context) (int, error) {
		calls.Add(1)
		return 0, nil
	})))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx)() }()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	require.NoError(t, j.Healthcheck(context.Background()))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
	require.ErrorIs(t, j.Healthcheck(context.Background()), janitor.ErrNotRunning)
	require.ErrorIs(t, j.Stop(), janitor.ErrNotRunning)
}

func TestJanitor_StartWithoutSweepers(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, janitor.New().Start(context.Background()), janitor.ErrNoSweepers)
}
