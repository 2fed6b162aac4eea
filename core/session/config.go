package session

import (
	"log/slog"
	"time"
)

// Config holds repository defaults shared by every backend.
type Config struct {
	// MaxInactiveInterval is applied to sessions created by the repository.
	// A negative value creates sessions that never expire.
	MaxInactiveInterval time.Duration `env:"SESSION_MAX_INACTIVE_INTERVAL" envDefault:"30m"`

	// PrincipalStrategy selects how the principal index value is resolved.
	PrincipalStrategy PrincipalStrategy `env:"SESSION_PRINCIPAL_STRATEGY" envDefault:"chain"`

	// FlushMode selects when changes reach the backend: on_save or immediate.
	FlushMode FlushMode `env:"SESSION_FLUSH_MODE" envDefault:"on_save"`
}

// DefaultConfig returns the default repository configuration.
func DefaultConfig() Config {
	return Config{
		MaxInactiveInterval: DefaultMaxInactiveInterval,
		PrincipalStrategy:   StrategyChain,
		FlushMode:           FlushOnSave,
	}
}

// Resolver builds the principal resolver selected by the configuration.
func (c Config) Resolver() (PrincipalResolver, error) {
	return NewPrincipalResolver(c.PrincipalStrategy)
}

// Wrap applies the configured flush mode to repo.
func (c Config) Wrap(repo IndexedRepository, log *slog.Logger) (IndexedRepository, error) {
	mode, err := ParseFlushMode(string(c.FlushMode))
	if err != nil {
		return nil, err
	}
	return WithFlushMode(repo, mode, log), nil
}
