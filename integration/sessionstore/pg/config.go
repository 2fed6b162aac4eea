package pg

import (
	"io"
	"log/slog"
	"time"

	"github.com/dmitrymomot/extsession/core/event"
	"github.com/dmitrymomot/extsession/core/session"
)

// Config controls schema bookkeeping and sweeping.
type Config struct {
	MigrationsTable string `env:"SESSION_PG_MIGRATIONS_TABLE" envDefault:"session_schema_migrations"`
	SweepBatchSize  int    `env:"SESSION_PG_SWEEP_BATCH_SIZE" envDefault:"500"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MigrationsTable: "session_schema_migrations",
		SweepBatchSize:  500,
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

// WithCodec sets the attribute codec.
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
