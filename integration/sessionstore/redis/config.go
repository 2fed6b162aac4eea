package redis

import (
	"io"
	"log/slog"
	"time"

	"github.com/dmitrymomot/extsession/core/event"
	"github.com/dmitrymomot/extsession/core/session"
)

// Config controls the key layout and background work of the Redis repository.
type Config struct {
	// Namespace prefixes every key written by the repository.
	Namespace string `env:"SESSION_REDIS_NAMESPACE" envDefault:"extsession"`
	// ConfigureNotifications enables expired key events with CONFIG SET on Listen.
	// Disable it on managed services that forbid CONFIG and enable the events there.
	ConfigureNotifications bool `env:"SESSION_REDIS_CONFIGURE_NOTIFICATIONS" envDefault:"true"`
	// ScanBatchSize is the COUNT hint for sweeps.
	ScanBatchSize int64 `env:"SESSION_REDIS_SCAN_BATCH_SIZE" envDefault:"1000"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Namespace:              "extsession",
		ConfigureNotifications: true,
		ScanBatchSize:          1000,
	}
}

// Option configures a Repository.
type Option func(*Repository)

// WithMaxInactiveInterval sets the inactivity window of created sessions.
func WithMaxInactiveInterval(d time.Duration) Option {
	return func(r *Repository) {
		r.maxInactive = d
	}
}

// WithPrincipalResolver sets the principal index resolver.
func WithPrincipalResolver(resolver session.PrincipalResolver) Option {
	return func(r *Repository) {
		if resolver != nil {
			r.resolver = resolver
		}
	}
}

// WithCodec sets the attribute codec. Defaults to session.JSONCodec.
func WithCodec(codec session.AttributeCodec) Option {
	return func(r *Repository) {
		if codec != nil {
			r.codec = codec
		}
	}
}

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(p event.Publisher) Option {
	return func(r *Repository) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithIDGenerator overrides session id allocation.
func WithIDGenerator(gen session.IDGenerator) Option {
	return func(r *Repository) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
