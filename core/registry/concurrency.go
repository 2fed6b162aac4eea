package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrymomot/extsession/core/logger"
)

// Policy decides what happens when a principal reaches the session limit.
type Policy string

const (
	// RejectNew denies the new login. This is the default.
	RejectNew Policy = "reject_new"
	// EvictOldest expires the least recently used sessions to make room.
	EvictOldest Policy = "evict_oldest"
)

// ParsePolicy converts a configuration value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case RejectNew, EvictOldest:
		return p, nil
	case "":
		return RejectNew, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// ConcurrencyConfig configures concurrent session control.
type ConcurrencyConfig struct {
	// MaxSessions caps live sessions per principal. Zero or negative means unlimited.
	MaxSessions int    `env:"SESSION_MAX_CONCURRENT" envDefault:"0"`
	Policy      string `env:"SESSION_CONCURRENCY_POLICY" envDefault:"reject_new"`
}

// ConcurrencyControl admits or rejects logins based on the registry.
type ConcurrencyControl struct {
	registry    *Registry
	maxSessions int
	policy      Policy
}

// NewConcurrencyControl creates a concurrency control over reg.
func NewConcurrencyControl(reg *Registry, maxSessions int, policy Policy) *ConcurrencyControl {
	if policy == "" {
		policy = RejectNew
	}
	return &ConcurrencyControl{registry: reg, maxSessions: maxSessions, policy: policy}
}

// NewConcurrencyControlFromConfig creates a concurrency control from configuration.
func NewConcurrencyControlFromConfig(reg *Registry, cfg ConcurrencyConfig) (*ConcurrencyControl, error) {
	policy, err := ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	return NewConcurrencyControl(reg, cfg.MaxSessions, policy), nil
}

// Admit must be called before a login binds principal to the session currentID.
// currentID may be empty; a session is never counted against itself.
// Under RejectNew it returns ErrConcurrentSessionLimitExceeded once the limit is reached.
func (c *ConcurrencyControl) Admit(ctx context.Context, principal, currentID string) error {
	if c.maxSessions <= 0 || principal == "" {
		return nil
	}

	infos, err := c.registry.GetAllSessions(ctx, principal, false)
	if err != nil {
		return err
	}

	others := make([]SessionInformation, 0, len(infos))
	for _, info := range infos {
		if info.SessionID != currentID {
			others = append(others, info)
		}
	}
	if len(others) < c.maxSessions {
		return nil
	}

	if c.policy != EvictOldest {
		c.registry.logger.InfoContext(ctx, "login rejected by concurrent session limit",
			logger.Principal(principal),
			logger.Count("sessions", len(others)),
			logger.Count("max_sessions", c.maxSessions))
		return ErrConcurrentSessionLimitExceeded
	}

	// others is ordered oldest first; keep room for the new one.
	excess := len(others) - c.maxSessions + 1
	for _, info := range others[:excess] {
		if err := c.registry.ExpireNow(ctx, info.SessionID); err != nil {
			return err
		}
	}
	return nil
}
