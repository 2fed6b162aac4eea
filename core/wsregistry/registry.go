package wsregistry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/extsession/core/event"
	"github.com/dmitrymomot/extsession/core/logger"
)

// ErrEmptySessionID is returned when a connection is registered without a session id.
var ErrEmptySessionID = errors.New("websocket connection has no session id")

// DefaultCloseReason is sent in the close frame when a session ends.
const DefaultCloseReason = "session ended"

// Conn is the part of *websocket.Conn the registry uses.
type Conn interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Registry tracks open websocket connections per HTTP session and closes
// them with a policy violation status once the session is deleted or expires.
type Registry struct {
	mu    sync.Mutex
	conns map[string]map[Conn]struct{}

	writeTimeout time.Duration
	reason       string
	logger       *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithWriteTimeout bounds the close frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

// WithCloseReason sets the reason text of the close frame.
func WithCloseReason(reason string) Option {
	return func(r *Registry) {
		r.reason = reason
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		conns:        make(map[string]map[Conn]struct{}),
		writeTimeout: time.Second,
		reason:       DefaultCloseReason,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers c under sessionID. The returned function unregisters it and
// is safe to call more than once.
func (r *Registry) Add(sessionID string, c Conn) (func(), error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	r.mu.Lock()
	set, ok := r.conns[sessionID]
	if !ok {
		set = make(map[Conn]struct{})
		r.conns[sessionID] = set
	}
	set[c] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(sessionID, c) })
	}, nil
}

// Upgrade upgrades the request to a websocket connection and registers it
// under sessionID. Call the returned function when the connection is done.
func (r *Registry) Upgrade(u *websocket.Upgrader, w http.ResponseWriter, req *http.Request, sessionID string) (*websocket.Conn, func(), error) {
	if sessionID == "" {
		return nil, nil, ErrEmptySessionID
	}
	conn, err := u.Upgrade(w, req, nil)
	if err != nil {
		return nil, nil, err
	}
	remove, err := r.Add(sessionID, conn)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, remove, nil
}

// Count returns the number of connections registered under sessionID.
func (r *Registry) Count(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[sessionID])
}

// CloseSession closes every connection of sessionID with close code 1008
// and returns how many were closed.
func (r *Registry) CloseSession(ctx context.Context, sessionID string) int {
	r.mu.Lock()
	set := r.conns[sessionID]
	delete(r.conns, sessionID)
	r.mu.Unlock()

	if len(set) == 0 {
		return 0
	}

	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, r.reason)
	for c := range set {
		deadline := time.Now().Add(r.writeTimeout)
		if err := c.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			r.logger.DebugContext(ctx, "failed to send websocket close frame",
				logger.SessionID(sessionID),
				logger.Error(err))
		}
		if err := c.Close(); err != nil {
			r.logger.DebugContext(ctx, "failed to close websocket connection",
				logger.SessionID(sessionID),
				logger.Error(err))
		}
	}
	r.logger.InfoContext(ctx, "closed websocket connections of ended session",
		logger.SessionID(sessionID),
		logger.Count("connections", len(set)))
	return len(set)
}

// Handler closes the connections of sessions that end. Subscribe it to the
// event bus; other kinds are ignored.
func (r *Registry) Handler() event.Handler {
	return event.HandlerFunc(func(ctx context.Context, evt event.SessionEvent) error {
		if evt.Kind.IsTerminal() {
			r.CloseSession(ctx, evt.SessionID)
		}
		return nil
	})
}

func (r *Registry) remove(sessionID string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[sessionID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, sessionID)
	}
}
