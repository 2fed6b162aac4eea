package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrymomot/extsession/core/logger"
	"github.com/dmitrymomot/extsession/core/session"
	"github.com/dmitrymomot/extsession/core/sessiontransport"
)

// State is the position of an exchange in the commit protocol.
type State uint8

const (
	NoSessionTouched State = iota
	SessionLoadedOrCreated
	Committed
)

func (s State) String() string {
	switch s {
	case NoSessionTouched:
		return "no_session_touched"
	case SessionLoadedOrCreated:
		return "session_loaded_or_created"
	case Committed:
		return "committed"
	default:
		return "unknown"
	}
}

// Coordinator owns the session of one request/response exchange. It loads or
// creates the session lazily, hands out the same object for the rest of the
// exchange and persists it exactly once on Commit.
//
// A Coordinator is safe for use by goroutines spawned from the handler.
type Coordinator struct {
	repo     session.Repository
	resolver sessiontransport.IDResolver
	tolerate bool
	onError  func(http.ResponseWriter, *http.Request, error)
	now      func() time.Time
	logger   *slog.Logger

	w *commitWriter
	r *http.Request

	mu    sync.Mutex
	state State

	current *session.Session

	requestedResolved bool
	requestedIDs      []string
	requestedID       string

	requestedLoaded  bool
	requestedSession *session.Session
	unavailable      bool

	invalidated bool

	commitErr error
}

// New creates the coordinator for one exchange and returns the response writer
// the handler must use. The first WriteHeader, Write, Flush or Hijack on that
// writer commits the exchange before any byte reaches the client. When that
// commit fails, cfg.OnCommitError renders the response and whatever the handler
// writes afterwards is discarded; Write and Hijack return the commit error.
//
// cfg must pass Validate.
func New(w http.ResponseWriter, r *http.Request, cfg Config) (*Coordinator, http.ResponseWriter) {
	c := &Coordinator{
		repo:     cfg.Repository,
		resolver: cfg.Resolver,
		tolerate: cfg.TolerateUnavailable,
		onError:  cfg.OnCommitError,
		now:      cfg.Clock,
		logger:   cfg.Logger,
		r:        r,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.onError == nil {
		c.onError = DefaultCommitErrorHandler
	}

	c.w = newCommitWriter(w, func() error {
		ctx := r.Context()
		if ctx.Err() != nil {
			ctx = context.WithoutCancel(ctx)
		}
		c.commitOnce(ctx)
		err := c.result()
		if err != nil {
			c.logger.ErrorContext(ctx, "session commit on response failed", logger.Error(err))
			c.onError(w, r, err)
		}
		return err
	})
	return c, c.w
}

// DefaultCommitErrorHandler answers 500 Internal Server Error.
func DefaultCommitErrorHandler(w http.ResponseWriter, _ *http.Request, _ error) {
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// State returns the current protocol state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the session attached to the exchange. The requested session
// is loaded on first call and its last access time is refreshed once. When no
// session resolves, a new one is created if create is true; otherwise
// ErrNoSession is returned.
func (c *Coordinator) Session(ctx context.Context, create bool) (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionLocked(ctx, create)
}

func (c *Coordinator) sessionLocked(ctx context.Context, create bool) (*session.Session, error) {
	if c.state == Committed {
		return nil, ErrCommitted
	}
	if c.current != nil {
		return c.current, nil
	}

	if !c.invalidated {
		requested, err := c.loadRequestedLocked(ctx)
		if err != nil {
			return nil, err
		}
		if requested != nil {
			requested.SetLastAccessedTime(c.now())
			c.attachLocked(requested)
			return requested, nil
		}
	}

	if !create {
		return nil, ErrNoSession
	}
	if c.unavailable {
		return nil, session.ErrRepositoryUnavailable
	}

	s, err := c.repo.CreateSession(ctx)
	if err != nil {
		return nil, err
	}
	c.attachLocked(s)
	c.logger.DebugContext(ctx, "session created", logger.SessionID(s.ID()))
	return s, nil
}

func (c *Coordinator) attachLocked(s *session.Session) {
	c.current = s
	c.state = SessionLoadedOrCreated
}

// loadRequestedLocked looks up the candidate ids of the request once per exchange.
func (c *Coordinator) loadRequestedLocked(ctx context.Context) (*session.Session, error) {
	if c.requestedLoaded {
		return c.requestedSession, nil
	}
	c.resolveRequestedLocked()

	for _, id := range c.requestedIDs {
		s, err := c.repo.FindByID(ctx, id)
		switch {
		case err == nil:
			c.requestedID = id
			c.requestedSession = s
			c.requestedLoaded = true
			return s, nil
		case errors.Is(err, session.ErrNotFound):
			continue
		case errors.Is(err, session.ErrRepositoryUnavailable) && c.tolerate:
			c.logger.WarnContext(ctx, "session repository unavailable, continuing without session",
				logger.SessionID(id), logger.Error(err))
			c.unavailable = true
			c.requestedLoaded = true
			return nil, nil
		default:
			return nil, err
		}
	}

	c.requestedLoaded = true
	return nil, nil
}

func (c *Coordinator) resolveRequestedLocked() {
	if c.requestedResolved {
		return
	}
	c.requestedResolved = true
	c.requestedIDs = c.resolver.ResolveSessionIDs(c.r)
	if len(c.requestedIDs) > 0 {
		c.requestedID = c.requestedIDs[0]
	}
}

// RequestedSessionID returns the session id the client sent. When several
// candidates were sent it is the first one, or the one that resolved once the
// session was loaded.
func (c *Coordinator) RequestedSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolveRequestedLocked()
	return c.requestedID
}

// IsRequestedSessionIDValid reports whether the id the client sent refers to a live session.
func (c *Coordinator) IsRequestedSessionIDValid(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invalidated {
		return false, nil
	}
	s, err := c.loadRequestedLocked(ctx)
	if err != nil {
		return false, err
	}
	return s != nil, nil
}

// Invalidate deletes the attached session (loading the requested one first)
// and schedules the client id to be cleared. The session object must not be
// used afterwards. A later Session(ctx, true) starts a fresh session.
func (c *Coordinator) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.sessionLocked(ctx, false)
	if err != nil {
		return err
	}

	if err := c.repo.Delete(ctx, s.ID()); err != nil {
		return err
	}
	s.Invalidate()
	c.current = nil
	c.invalidated = true
	c.logger.DebugContext(ctx, "session invalidated", logger.SessionID(s.ID()))
	return nil
}

// ChangeSessionID moves the attached session to a fresh id. The old id is
// deleted and the new id is sent to the client on commit. The previous
// session object is invalidated; use the one returned by Session afterwards.
func (c *Coordinator) ChangeSessionID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, err := c.sessionLocked(ctx, false)
	if err != nil {
		return "", err
	}

	fresh, err := c.repo.CreateSession(ctx)
	if err != nil {
		return "", err
	}
	rotated := session.NewFrom(fresh.ID(), old, c.now())

	if !old.IsNew() {
		if err := c.repo.Delete(ctx, old.ID()); err != nil {
			return "", err
		}
	}
	old.Invalidate()

	c.attachLocked(rotated)
	c.logger.DebugContext(ctx, "session id changed",
		logger.SessionID(rotated.ID()), logger.ID("previous_session_id", old.ID()))
	return rotated.ID(), nil
}

// Commit persists the attached session and writes the id back to the client
// when it changed. Only the first call does work; later calls return its result.
func (c *Coordinator) Commit(ctx context.Context) error {
	c.w.once.Do(func() { c.commitOnce(ctx) })
	return c.result()
}

func (c *Coordinator) result() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commitErr
}

func (c *Coordinator) commitOnce(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Committed {
		return
	}
	c.state = Committed
	c.commitErr = c.commitLocked(ctx)
}

func (c *Coordinator) commitLocked(ctx context.Context) error {
	s := c.current
	if s == nil {
		if c.shouldClearClientLocked() {
			if err := c.resolver.ExpireSession(c.w.ResponseWriter, c.r); err != nil {
				return fmt.Errorf("expire client session id: %w", err)
			}
		}
		return nil
	}

	if err := c.repo.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if c.requestedSession == nil || s.ID() != c.requestedID || c.needsRefreshLocked() {
		if err := c.resolver.SetSessionID(c.w.ResponseWriter, c.r, s.ID()); err != nil {
			return fmt.Errorf("write session id: %w", err)
		}
	}
	return nil
}

// needsRefreshLocked reports whether the resolver wants the unchanged id of a
// loaded session re-sent, as with expiring bearer tokens.
func (c *Coordinator) needsRefreshLocked() bool {
	rf, ok := c.resolver.(sessiontransport.Refresher)
	return ok && rf.NeedsRefresh(c.r)
}

// shouldClearClientLocked reports whether the client holds an id that is known
// not to resolve. Ids are only checked when the exchange looked them up.
func (c *Coordinator) shouldClearClientLocked() bool {
	if c.invalidated {
		return true
	}
	if c.unavailable || !c.requestedLoaded {
		return false
	}
	return c.requestedSession == nil && len(c.requestedIDs) > 0
}

// Written reports whether response headers were sent.
func (c *Coordinator) Written() bool {
	return c.w.Written()
}
