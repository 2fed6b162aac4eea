package session

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/extsession/core/event"
	"github.com/dmitrymomot/extsession/core/logger"
)

// MemoryRepository keeps sessions in process memory. It is the reference
// IndexedRepository: suitable for tests and single-instance deployments.
// Expired sessions are removed lazily on lookup and by Sweep.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	index    map[string]map[string]struct{}

	maxInactive time.Duration
	flushMode   FlushMode
	resolver    PrincipalResolver
	publisher   event.Publisher
	newID       IDGenerator
	now         func() time.Time
	logger      *slog.Logger
}

// MemoryOption configures a MemoryRepository.
type MemoryOption func(*MemoryRepository)

// WithMaxInactiveInterval sets the inactivity window of created sessions.
func WithMaxInactiveInterval(d time.Duration) MemoryOption {
	return func(r *MemoryRepository) {
		r.maxInactive = d
	}
}

// WithImmediateFlush makes sessions handed out by the repository save
// themselves after every attribute or inactivity window change.
func WithImmediateFlush() MemoryOption {
	return func(r *MemoryRepository) {
		r.flushMode = FlushImmediate
	}
}

// WithPrincipalResolver sets the principal index resolver.
func WithPrincipalResolver(resolver PrincipalResolver) MemoryOption {
	return func(r *MemoryRepository) {
		if resolver != nil {
			r.resolver = resolver
		}
	}
}

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(p event.Publisher) MemoryOption {
	return func(r *MemoryRepository) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithIDGenerator overrides session id allocation.
func WithIDGenerator(gen IDGenerator) MemoryOption {
	return func(r *MemoryRepository) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// WithClock overrides the time source. Tests use it to advance time.
func WithClock(now func() time.Time) MemoryOption {
	return func(r *MemoryRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger used for event publishing failures.
func WithLogger(logger *slog.Logger) MemoryOption {
	return func(r *MemoryRepository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository(opts ...MemoryOption) *MemoryRepository {
	r := &MemoryRepository{
		sessions:    make(map[string]*Session),
		index:       make(map[string]map[string]struct{}),
		maxInactive: DefaultMaxInactiveInterval,
		flushMode:   FlushOnSave,
		resolver:    DefaultPrincipalResolver(),
		publisher:   event.NopPublisher{},
		newID:       UUIDGenerator,
		now:         time.Now,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateSession implements Repository.
func (r *MemoryRepository) CreateSession(ctx context.Context) (*Session, error) {
	id, err := r.newID()
	if err != nil {
		return nil, err
	}
	s := New(id, r.maxInactive, r.now())
	r.bindFlush(ctx, s)
	return s, nil
}

// Save implements Repository. Only the pending delta is applied to the stored
// record, so concurrent exchanges touching different attributes do not undo
// each other's writes.
func (r *MemoryRepository) Save(ctx context.Context, s *Session) error {
	if s.IsInvalidated() {
		return ErrInvalidatedSession
	}
	if s.IsExpiredAt(r.now()) {
		return ErrExpired
	}

	id := s.ID()
	change := ResolveIndexChange(s, r.resolver)
	delta := s.Delta()
	isNew := s.IsNew()

	r.mu.Lock()
	stored, exists := r.sessions[id]
	if exists {
		// The stored record may carry a principal written by another exchange.
		change.Old = stored.PersistedPrincipal()
	}
	if exists && !isNew {
		applyDelta(stored, s, delta)
	} else {
		stored = s.Clone()
		r.sessions[id] = stored
	}
	stored.MarkSaved(change.New)
	r.moveIndex(id, change)
	r.mu.Unlock()

	s.MarkSaved(change.New)

	switch {
	case isNew:
		r.publish(ctx, event.Created, id, change.New)
	case len(delta.Set) > 0 || len(delta.Removed) > 0:
		r.publish(ctx, event.AttributeChanged, id, change.New)
	}
	return nil
}

// FindByID implements Repository. A found-but-expired session is deleted and
// reported as ErrNotFound.
func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	r.mu.RLock()
	stored, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	if stored.IsExpiredAt(r.now()) {
		r.remove(ctx, id, event.Expired)
		return nil, ErrNotFound
	}
	s := stored.Clone()
	r.bindFlush(ctx, s)
	return s, nil
}

func (r *MemoryRepository) bindFlush(ctx context.Context, s *Session) {
	if r.flushMode == FlushImmediate {
		bindImmediateFlush(ctx, s, r, r.logger)
	}
}

// Delete implements Repository.
func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.remove(ctx, id, event.Deleted)
	return nil
}

// FindByIndexNameAndIndexValue implements IndexedRepository.
func (r *MemoryRepository) FindByIndexNameAndIndexValue(ctx context.Context, name, value string) (map[string]*Session, error) {
	result := make(map[string]*Session)
	if name != PrincipalIndexName || value == "" {
		return result, nil
	}

	r.mu.RLock()
	ids := slices.Collect(maps.Keys(r.index[value]))
	r.mu.RUnlock()

	for _, id := range ids {
		s, err := r.FindByID(ctx, id)
		if err != nil {
			continue
		}
		if s.PersistedPrincipal() != value {
			r.mu.Lock()
			// A save may have moved the session back since it was read.
			if cur, ok := r.sessions[id]; !ok || cur.PersistedPrincipal() != value {
				r.unindex(value, id)
			}
			r.mu.Unlock()
			continue
		}
		result[id] = s
	}
	return result, nil
}

// Sweep removes every expired session and publishes an Expired event for each.
// It returns the number of removed sessions.
func (r *MemoryRepository) Sweep(ctx context.Context) (int, error) {
	now := r.now()

	r.mu.RLock()
	var expired []string
	for id, s := range r.sessions {
		if s.IsExpiredAt(now) {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	removed := 0
	for _, id := range expired {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if r.remove(ctx, id, event.Expired) {
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions, expired ones included.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *MemoryRepository) remove(ctx context.Context, id string, kind event.Kind) bool {
	r.mu.Lock()
	stored, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if kind == event.Expired && !stored.IsExpiredAt(r.now()) {
		// Refreshed by a concurrent save after the expiry check.
		r.mu.Unlock()
		return false
	}
	principal := stored.PersistedPrincipal()
	delete(r.sessions, id)
	r.unindex(principal, id)
	r.mu.Unlock()

	r.publish(ctx, kind, id, principal)
	return true
}

// moveIndex must be called with mu held.
func (r *MemoryRepository) moveIndex(id string, change IndexChange) {
	if change.Old != "" && change.Old != change.New {
		r.unindex(change.Old, id)
	}
	if change.New == "" {
		return
	}
	ids, ok := r.index[change.New]
	if !ok {
		ids = make(map[string]struct{})
		r.index[change.New] = ids
	}
	ids[id] = struct{}{}
}

// unindex must be called with mu held.
func (r *MemoryRepository) unindex(value, id string) {
	if value == "" {
		return
	}
	ids, ok := r.index[value]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(r.index, value)
	}
}

func (r *MemoryRepository) publish(ctx context.Context, kind event.Kind, id, principal string) {
	if err := r.publisher.Publish(ctx, event.New(kind, id, principal)); err != nil {
		r.logger.WarnContext(ctx, "failed to publish session event",
			logger.Event(kind.String()),
			logger.SessionID(id),
			logger.Error(err))
	}
}

// applyDelta writes the pending changes of src into dst.
func applyDelta(dst, src *Session, d Delta) {
	src.mu.RLock()
	lastAccessed := src.lastAccessedTime
	interval := src.maxInactiveInterval
	src.mu.RUnlock()

	dst.mu.Lock()
	defer dst.mu.Unlock()
	for name, value := range d.Set {
		dst.attributes[name] = value
	}
	for _, name := range d.Removed {
		delete(dst.attributes, name)
	}
	if d.Metadata {
		if lastAccessed.After(dst.lastAccessedTime) {
			dst.lastAccessedTime = lastAccessed
		}
		dst.maxInactiveInterval = interval
	}
}
