package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dmitrymomot/extsession/core/logger"
)

// FlushMode selects when session changes reach the repository.
type FlushMode string

const (
	// FlushOnSave writes changes when the session is saved, normally once per exchange at commit.
	FlushOnSave FlushMode = "on_save"
	// FlushImmediate saves the session after every attribute or inactivity window change,
	// so concurrent exchanges see writes before the current one commits.
	FlushImmediate FlushMode = "immediate"
)

// ParseFlushMode validates a configured flush mode. An empty value means FlushOnSave.
func ParseFlushMode(s string) (FlushMode, error) {
	switch FlushMode(strings.ToLower(s)) {
	case FlushOnSave, "":
		return FlushOnSave, nil
	case FlushImmediate:
		return FlushImmediate, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFlushMode, s)
}

// FlushingRepository binds an immediate save to every session handed out by
// CreateSession and FindByID. Failed flushes are logged and the changes stay
// pending, so the next Save (usually the commit) writes them again.
type FlushingRepository struct {
	IndexedRepository
	logger *slog.Logger
}

// WithFlushMode applies mode to repo. FlushOnSave returns repo unchanged.
func WithFlushMode(repo IndexedRepository, mode FlushMode, log *slog.Logger) IndexedRepository {
	if mode != FlushImmediate {
		return repo
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FlushingRepository{IndexedRepository: repo, logger: log}
}

// CreateSession implements Repository.
func (r *FlushingRepository) CreateSession(ctx context.Context) (*Session, error) {
	s, err := r.IndexedRepository.CreateSession(ctx)
	if err != nil {
		return nil, err
	}
	bindImmediateFlush(ctx, s, r.IndexedRepository, r.logger)
	return s, nil
}

// FindByID implements Repository.
func (r *FlushingRepository) FindByID(ctx context.Context, id string) (*Session, error) {
	s, err := r.IndexedRepository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	bindImmediateFlush(ctx, s, r.IndexedRepository, r.logger)
	return s, nil
}

func bindImmediateFlush(ctx context.Context, s *Session, repo Repository, log *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	s.BindFlush(func(s *Session) {
		if err := repo.Save(ctx, s); err != nil {
			log.WarnContext(ctx, "immediate session flush failed",
				logger.SessionID(s.ID()), logger.Error(err))
		}
	})
}
