package metrics

import (
	"context"
	"time"

	"github.com/dmitrymomot/extsession/core/session"
)

// Repository records operation counts and latencies of a session repository.
type Repository struct {
	next    session.IndexedRepository
	metrics *Metrics
}

// InstrumentRepository wraps repo.
func InstrumentRepository(repo session.IndexedRepository, m *Metrics) *Repository {
	return &Repository{next: repo, metrics: m}
}

// CreateSession implements session.Repository.
func (r *Repository) CreateSession(ctx context.Context) (*session.Session, error) {
	start := time.Now()
	s, err := r.next.CreateSession(ctx)
	r.metrics.observe("create", start, err)
	return s, err
}

// Save implements session.Repository.
func (r *Repository) Save(ctx context.Context, s *session.Session) error {
	start := time.Now()
	err := r.next.Save(ctx, s)
	r.metrics.observe("save", start, err)
	return err
}

// FindByID implements session.Repository.
func (r *Repository) FindByID(ctx context.Context, id string) (*session.Session, error) {
	start := time.Now()
	s, err := r.next.FindByID(ctx, id)
	r.metrics.observe("find", start, err)
	return s, err
}

// Delete implements session.Repository.
func (r *Repository) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := r.next.Delete(ctx, id)
	r.metrics.observe("delete", start, err)
	return err
}

// FindByIndexNameAndIndexValue implements session.IndexedRepository.
func (r *Repository) FindByIndexNameAndIndexValue(ctx context.Context, name, value string) (map[string]*session.Session, error) {
	start := time.Now()
	found, err := r.next.FindByIndexNameAndIndexValue(ctx, name, value)
	r.metrics.observe("find_by_index", start, err)
	return found, err
}
