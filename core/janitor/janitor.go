package janitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/extsession/core/logger"
)

var (
	ErrNoSweepers               = errors.New("janitor has no sweepers")
	ErrSweeperAlreadyRegistered = errors.New("sweeper already registered")
	ErrAlreadyStarted           = errors.New("janitor already started")
	ErrNotRunning               = errors.New("janitor is not running")
)

// Sweeper removes expired sessions from one backend and reports how many it removed.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SweeperFunc adapts a function to Sweeper.
type SweeperFunc func(ctx context.Context) (int, error)

// Sweep implements Sweeper.
func (f SweeperFunc) Sweep(ctx context.Context) (int, error) {
	return f(ctx)
}

// Config holds janitor settings.
type Config struct {
	Interval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`
	Timeout  time.Duration `env:"SESSION_SWEEP_TIMEOUT" envDefault:"30s"`
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithInterval sets the pause between sweeps.
func WithInterval(d time.Duration) Option {
	return func(j *Janitor) {
		if d > 0 {
			j.interval = d
		}
	}
}

// WithTimeout bounds a single sweep of one backend.
func WithTimeout(d time.Duration) Option {
	return func(j *Janitor) {
		if d > 0 {
			j.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Janitor) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// WithObserver is called after every sweep with the backend name and the
// number of removed sessions.
func WithObserver(fn func(name string, removed int)) Option {
	return func(j *Janitor) {
		if fn != nil {
			j.observe = fn
		}
	}
}

// Stats reports janitor activity.
type Stats struct {
	Sweeps    int64
	Removed   int64
	Failures  int64
	IsRunning bool
}

// Janitor runs registered sweepers on a fixed interval. It is the pull side
// of session expiration for backends without expiry notifications and the
// safety net for those that have them.
type Janitor struct {
	mu       sync.Mutex
	sweepers map[string]Sweeper
	cancel   context.CancelFunc

	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	observe  func(string, int)

	running  atomic.Bool
	sweeps   atomic.Int64
	removed  atomic.Int64
	failures atomic.Int64
}

// New creates a Janitor.
func New(opts ...Option) *Janitor {
	j := &Janitor{
		sweepers: make(map[string]Sweeper),
		interval: time.Minute,
		timeout:  30 * time.Second,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		observe:  func(string, int) {},
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// NewFromConfig creates a Janitor from configuration. Options override config values.
func NewFromConfig(cfg Config, opts ...Option) *Janitor {
	return New(append([]Option{WithInterval(cfg.Interval), WithTimeout(cfg.Timeout)}, opts...)...)
}

// Add registers a sweeper under name.
func (j *Janitor) Add(name string, s Sweeper) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.sweepers[name]; ok {
		return fmt.Errorf("%w: %s", ErrSweeperAlreadyRegistered, name)
	}
	j.sweepers[name] = s
	return nil
}

// Start sweeps immediately and then on every tick until ctx is cancelled.
// It blocks and returns ctx.Err().
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.cancel != nil {
		j.mu.Unlock()
		return ErrAlreadyStarted
	}
	if len(j.sweepers) == 0 {
		j.mu.Unlock()
		return ErrNoSweepers
	}
	ctx, j.cancel = context.WithCancel(ctx)
	j.mu.Unlock()

	j.running.Store(true)
	defer func() {
		j.running.Store(false)
		j.mu.Lock()
		j.cancel = nil
		j.mu.Unlock()
	}()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.InfoContext(ctx, "janitor started", slog.Duration("interval", j.interval))

	j.SweepAll(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.InfoContext(context.Background(), "janitor stopping")
			return ctx.Err()
		case <-ticker.C:
			j.SweepAll(ctx)
		}
	}
}

// Stop cancels a running janitor.
func (j *Janitor) Stop() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel == nil {
		return ErrNotRunning
	}
	j.cancel()
	return nil
}

// Run returns a function for errgroup that runs the janitor until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) func() error {
	return func() error {
		err := j.Start(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}
}

// SweepAll runs every sweeper once, in name order, and returns the total
// number of removed sessions. Failures are logged and do not stop the round.
func (j *Janitor) SweepAll(ctx context.Context) int {
	j.mu.Lock()
	names := make([]string, 0, len(j.sweepers))
	for name := range j.sweepers {
		names = append(names, name)
	}
	sweepers := make(map[string]Sweeper, len(j.sweepers))
	for name, s := range j.sweepers {
		sweepers[name] = s
	}
	j.mu.Unlock()
	slices.Sort(names)

	total := 0
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		total += j.sweep(ctx, name, sweepers[name])
	}
	return total
}

func (j *Janitor) sweep(ctx context.Context, name string, s Sweeper) int {
	sweepCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.Sweep(sweepCtx)
	j.sweeps.Add(1)
	j.removed.Add(int64(n))
	j.observe(name, n)

	if err != nil {
		j.failures.Add(1)
		j.logger.ErrorContext(ctx, "session sweep failed",
			logger.Backend(name),
			logger.Count("removed", n),
			logger.Error(err))
		return n
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "expired sessions removed",
			logger.Backend(name),
			logger.Count("removed", n),
			logger.Elapsed(start))
	}
	return n
}

// Stats returns activity counters.
func (j *Janitor) Stats() Stats {
	return Stats{
		Sweeps:    j.sweeps.Load(),
		Removed:   j.removed.Load(),
		Failures:  j.failures.Load(),
		IsRunning: j.running.Load(),
	}
}

// Healthcheck fails when the janitor is not running.
func (j *Janitor) Healthcheck(context.Context) error {
	if !j.running.Load() {
		return ErrNotRunning
	}
	return nil
}
