package session

import "time"

// NoTTL is returned by BackendTTL for sessions that never expire.
// Backends must persist such records without an expiry.
const NoTTL time.Duration = -1

// IsExpiredAt reports whether the session is expired at now.
func (s *Session) IsExpiredAt(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return isExpired(s.maxInactiveInterval, s.lastAccessedTime, now)
}

// TTLRemaining returns the time left before the session expires.
// The result is meaningless for sessions that never expire.
func (s *Session) TTLRemaining(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxInactiveInterval - now.Sub(s.lastAccessedTime)
}

// ExpiresAt returns the instant the session expires and false for sessions
// that never expire.
func (s *Session) ExpiresAt() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.maxInactiveInterval < 0 {
		return time.Time{}, false
	}
	return s.lastAccessedTime.Add(s.maxInactiveInterval), true
}

// BackendTTL computes the TTL a backend should store, rounded up to a whole
// number of unit. It returns NoTTL for sessions that never expire and
// ErrExpired when nothing is left, so a zero or negative TTL is never written.
func (s *Session) BackendTTL(now time.Time, unit time.Duration) (time.Duration, error) {
	s.mu.RLock()
	interval := s.maxInactiveInterval
	last := s.lastAccessedTime
	s.mu.RUnlock()

	if interval < 0 {
		return NoTTL, nil
	}
	remaining := interval - now.Sub(last)
	if remaining <= 0 {
		return 0, ErrExpired
	}
	return CeilTTL(remaining, unit), nil
}

// CeilTTL rounds d up to the next whole multiple of unit.
func CeilTTL(d, unit time.Duration) time.Duration {
	if unit <= 0 {
		return d
	}
	if r := d % unit; r != 0 {
		d += unit - r
	}
	return d
}

func isExpired(interval time.Duration, lastAccessed, now time.Time) bool {
	return interval >= 0 && now.Sub(lastAccessed) >= interval
}
