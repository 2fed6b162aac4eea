package session

import (
	"maps"
	"slices"
	"sync"
	"time"
)

const (
	// DefaultMaxInactiveInterval is applied when neither the session nor the repository overrides it.
	DefaultMaxInactiveInterval = 30 * time.Minute

	// NeverExpire marks a session that must not expire through inactivity.
	NeverExpire time.Duration = -1
)

// Session is an externally stored unit of per-user state keyed by an opaque id.
// A Session is owned by a single exchange at a time; the mutex only protects
// against handlers sharing it across goroutines inside that exchange.
type Session struct {
	mu sync.RWMutex

	id                  string
	creationTime        time.Time
	lastAccessedTime    time.Time
	maxInactiveInterval time.Duration
	attributes          map[string]any

	// delta holds the names of attributes mutated since the last save.
	delta           map[string]struct{}
	metadataChanged bool
	isNew           bool
	invalidated     bool

	// persistedPrincipal is the principal index value recorded by the last save.
	persistedPrincipal string

	// flush is called after attribute and inactivity window changes in FlushImmediate mode.
	flush func(*Session)
}

// New creates an unsaved session. It is not visible to lookups until saved.
func New(id string, maxInactive time.Duration, now time.Time) *Session {
	return &Session{
		id:                  id,
		creationTime:        now,
		lastAccessedTime:    now,
		maxInactiveInterval: normalizeInterval(maxInactive),
		attributes:          make(map[string]any),
		delta:               make(map[string]struct{}),
		metadataChanged:     true,
		isNew:               true,
	}
}

// Restore rebuilds a persisted session. Backends use it when decoding records;
// the result carries no pending changes.
func Restore(id string, creation, lastAccessed time.Time, maxInactive time.Duration, attrs map[string]any, principal string) *Session {
	if attrs == nil {
		attrs = make(map[string]any)
	}
	if lastAccessed.Before(creation) {
		lastAccessed = creation
	}
	return &Session{
		id:                  id,
		creationTime:        creation,
		lastAccessedTime:    lastAccessed,
		maxInactiveInterval: normalizeInterval(maxInactive),
		attributes:          attrs,
		delta:               make(map[string]struct{}),
		persistedPrincipal:  principal,
	}
}

// NewFrom creates an unsaved session with a fresh id that copies the attributes
// and max inactive interval of src. Used for session id rotation.
func NewFrom(id string, src *Session, now time.Time) *Session {
	src.mu.RLock()
	defer src.mu.RUnlock()

	s := New(id, src.maxInactiveInterval, now)
	for name, value := range src.attributes {
		s.attributes[name] = value
		s.delta[name] = struct{}{}
	}
	return s
}

func normalizeInterval(d time.Duration) time.Duration {
	if d < 0 {
		return NeverExpire
	}
	return d
}

// ID returns the session identifier.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// CreationTime returns when the session was created.
func (s *Session) CreationTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creationTime
}

// LastAccessedTime returns the last time the session was attached to a request.
func (s *Session) LastAccessedTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAccessedTime
}

// SetLastAccessedTime records an access. Values before the creation time are clamped.
func (s *Session) SetLastAccessedTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Before(s.creationTime) {
		t = s.creationTime
	}
	s.lastAccessedTime = t
	s.metadataChanged = true
}

// MaxInactiveInterval returns the inactivity window, or NeverExpire.
func (s *Session) MaxInactiveInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxInactiveInterval
}

// SetMaxInactiveInterval overrides the inactivity window for this session.
// Negative values mean the session never expires.
func (s *Session) SetMaxInactiveInterval(d time.Duration) {
	s.mu.Lock()
	s.maxInactiveInterval = normalizeInterval(d)
	s.metadataChanged = true
	flush := s.flush
	s.mu.Unlock()

	if flush != nil {
		flush(s)
	}
}

// Attribute returns the value stored under name.
func (s *Session) Attribute(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.mustBeValid()
	v, ok := s.attributes[name]
	return v, ok
}

// SetAttribute stores value under name. A nil value removes the attribute.
func (s *Session) SetAttribute(name string, value any) {
	s.mu.Lock()
	if s.invalidated {
		s.mu.Unlock()
		panic(ErrInvalidatedSession)
	}
	if value == nil {
		delete(s.attributes, name)
	} else {
		s.attributes[name] = value
	}
	s.delta[name] = struct{}{}
	flush := s.flush
	s.mu.Unlock()

	if flush != nil {
		flush(s)
	}
}

// RemoveAttribute deletes the attribute stored under name.
func (s *Session) RemoveAttribute(name string) {
	s.SetAttribute(name, nil)
}

// AttributeNames returns the sorted attribute names.
func (s *Session) AttributeNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.mustBeValid()
	return slices.Sorted(maps.Keys(s.attributes))
}

// Attributes returns a shallow copy of the attribute map.
func (s *Session) Attributes() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.attributes)
}

// IsNew reports whether the session has never been saved.
func (s *Session) IsNew() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isNew
}

// IsChanged reports whether anything was mutated since the last save.
func (s *Session) IsChanged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isNew || s.metadataChanged || len(s.delta) > 0
}

// Delta describes the pending changes of a session.
type Delta struct {
	// Set holds attributes written since the last save.
	Set map[string]any
	// Removed lists attributes deleted since the last save.
	Removed []string
	// Metadata is true when timestamps or the inactivity window changed.
	Metadata bool
}

// IsEmpty reports whether the delta carries no changes.
func (d Delta) IsEmpty() bool {
	return !d.Metadata && len(d.Set) == 0 && len(d.Removed) == 0
}

// Delta returns the changes since the last save. A new session reports all
// of its attributes as set.
func (s *Session) Delta() Delta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := Delta{Set: make(map[string]any), Metadata: s.metadataChanged || s.isNew}
	if s.isNew {
		maps.Copy(d.Set, s.attributes)
		return d
	}
	for name := range s.delta {
		if v, ok := s.attributes[name]; ok {
			d.Set[name] = v
		} else {
			d.Removed = append(d.Removed, name)
		}
	}
	slices.Sort(d.Removed)
	return d
}

// PersistedPrincipal returns the principal index value recorded by the last save.
func (s *Session) PersistedPrincipal() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistedPrincipal
}

// MarkSaved clears pending changes after a successful save and records the
// principal index value that is now durable.
func (s *Session) MarkSaved(principal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.delta)
	s.metadataChanged = false
	s.isNew = false
	s.persistedPrincipal = principal
}

// BindFlush registers fn to run after every attribute or inactivity window
// change, outside the session lock. Repositories in FlushImmediate mode bind a
// save here. A nil fn unbinds. Clones do not inherit the binding.
func (s *Session) BindFlush(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flush = fn
}

// Invalidate flags the in-memory object as dead. Deleting the stored record is
// the caller's job; any later attribute access panics with ErrInvalidatedSession.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = true
}

// IsInvalidated reports whether Invalidate was called.
func (s *Session) IsInvalidated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.invalidated
}

// Clone returns an independent copy, including pending changes.
// Attribute values are copied shallowly.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Session{
		id:                  s.id,
		creationTime:        s.creationTime,
		lastAccessedTime:    s.lastAccessedTime,
		maxInactiveInterval: s.maxInactiveInterval,
		attributes:          maps.Clone(s.attributes),
		delta:               maps.Clone(s.delta),
		metadataChanged:     s.metadataChanged,
		isNew:               s.isNew,
		invalidated:         s.invalidated,
		persistedPrincipal:  s.persistedPrincipal,
	}
}

func (s *Session) mustBeValid() {
	if s.invalidated {
		panic(ErrInvalidatedSession)
	}
}
