package sessiontransport

import (
	"context"
	"sync"
	"time"
)

// Revoker handles JWT token revocation and blacklisting using JWT IDs (jti claims).
// Implementations can use Redis, databases, or in-memory storage.
type Revoker interface {
	// IsRevoked checks if a JWT ID has been revoked.
	// Returns true if the JWT ID is in the revocation list.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// Revoke marks a JWT ID as revoked.
	// The JWT ID should remain revoked until the token's natural expiration.
	Revoke(ctx context.Context, jti string) error
}

// NoOpRevoker is a no-op implementation that never revokes tokens.
// Use this when token revocation is not required.
type NoOpRevoker struct{}

// IsRevoked always returns false - no JWT IDs are considered revoked.
func (NoOpRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return false, nil
}

// Revoke is a no-op - does nothing and returns nil.
func (NoOpRevoker) Revoke(ctx context.Context, jti string) error {
	return nil
}

// MemoryRevoker keeps revoked JWT IDs in process memory for a fixed retention,
// which should be at least the token lifetime.
type MemoryRevoker struct {
	mu        sync.Mutex
	revoked   map[string]time.Time
	retention time.Duration
}

// NewMemoryRevoker creates an in-memory revoker.
func NewMemoryRevoker(retention time.Duration) *MemoryRevoker {
	return &MemoryRevoker{revoked: make(map[string]time.Time), retention: retention}
}

// IsRevoked implements Revoker.
func (m *MemoryRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.revoked[jti]
	if !ok {
		return false, nil
	}
	if time.Now().After(until) {
		delete(m.revoked, jti)
		return false, nil
	}
	return true, nil
}

// Revoke implements Revoker.
func (m *MemoryRevoker) Revoke(_ context.Context, jti string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = time.Now().Add(m.retention)
	return nil
}
