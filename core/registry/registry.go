package registry

import (
	"cmp"
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/dmitrymomot/extsession/core/event"
	"github.com/dmitrymomot/extsession/core/logger"
	"github.com/dmitrymomot/extsession/core/session"
)

// ExpiredAttribute marks a session forcibly expired by the registry.
const ExpiredAttribute = "registry.expired"

// SessionInformation is a read-only view of a session used for administration
// and concurrency control. It is never a source of truth.
type SessionInformation struct {
	SessionID   string
	Principal   string
	LastRequest time.Time
	Expired     bool
}

// Registry derives concurrent session accounting from an indexed repository.
type Registry struct {
	repo     session.IndexedRepository
	resolver session.PrincipalResolver
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithPrincipalResolver sets the resolver used to build SessionInformation.
// It must match the resolver of the repository.
func WithPrincipalResolver(r session.PrincipalResolver) Option {
	return func(reg *Registry) {
		if r != nil {
			reg.resolver = r
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(reg *Registry) {
		if logger != nil {
			reg.logger = logger
		}
	}
}

// New creates a registry over repo.
func New(repo session.IndexedRepository, opts ...Option) *Registry {
	reg := &Registry{
		repo:     repo,
		resolver: session.DefaultPrincipalResolver(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(reg)
	}
	return reg
}

// GetSessionInformation returns the view of a live session, or session.ErrNotFound.
func (r *Registry) GetSessionInformation(ctx context.Context, id string) (*SessionInformation, error) {
	s, err := r.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.information(s), nil
}

// GetAllSessions lists the sessions of principal ordered by last request, oldest first.
// Sessions marked expired are skipped unless includeExpired is set.
func (r *Registry) GetAllSessions(ctx context.Context, principal string, includeExpired bool) ([]SessionInformation, error) {
	sessions, err := session.FindByPrincipal(ctx, r.repo, principal)
	if err != nil {
		return nil, err
	}

	infos := make([]SessionInformation, 0, len(sessions))
	for _, s := range sessions {
		info := r.information(s)
		if info.Expired && !includeExpired {
			continue
		}
		infos = append(infos, *info)
	}
	slices.SortFunc(infos, func(a, b SessionInformation) int {
		return cmp.Or(a.LastRequest.Compare(b.LastRequest), cmp.Compare(a.SessionID, b.SessionID))
	})
	return infos, nil
}

// ExpireNow marks the session expired, saves the marker and deletes the session.
// Expiry is authoritative: the delete happens even when the marker cannot be
// saved because the session timed out meanwhile. Unknown ids are a no-op.
func (r *Registry) ExpireNow(ctx context.Context, id string) error {
	s, err := r.repo.FindByID(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	s.SetAttribute(ExpiredAttribute, true)
	if err := r.repo.Save(ctx, s); err != nil && !errors.Is(err, session.ErrExpired) {
		return err
	}
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "session expired by registry",
		logger.SessionID(id),
		logger.Principal(r.resolver.ResolvePrincipal(s)))
	return nil
}

// Handler returns an event handler that logs terminal session events. The
// registry keeps no state of its own, so nothing needs to be evicted.
func (r *Registry) Handler() event.Handler {
	return event.HandlerFunc(func(ctx context.Context, evt event.SessionEvent) error {
		if !evt.Kind.IsTerminal() {
			return nil
		}
		r.logger.DebugContext(ctx, "session ended",
			logger.Event(evt.Kind.String()),
			logger.SessionID(evt.SessionID),
			logger.Principal(evt.Principal))
		return nil
	})
}

func (r *Registry) information(s *session.Session) *SessionInformation {
	expired, _ := session.Attr[bool](s, ExpiredAttribute)
	return &SessionInformation{
		SessionID:   s.ID(),
		Principal:   r.resolver.ResolvePrincipal(s),
		LastRequest: s.LastAccessedTime(),
		Expired:     expired,
	}
}
