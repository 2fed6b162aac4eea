package pg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/extsession/core/event"
	"github.com/dmitrymomot/extsession/core/logger"
	"github.com/dmitrymomot/extsession/core/session"
	"github.com/dmitrymomot/extsession/integration/database/pg"
)

const (
	updateSessionSQL = `UPDATE sessions
SET last_access_time = $2, max_inactive_interval = $3, expiry_time = $4, principal_name = $5
WHERE id = $1`

	upsertSessionSQL = `INSERT INTO sessions
(id, creation_time, last_access_time, max_inactive_interval, expiry_time, principal_name)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
creation_time = EXCLUDED.creation_time,
last_access_time = EXCLUDED.last_access_time,
max_inactive_interval = EXCLUDED.max_inactive_interval,
expiry_time = EXCLUDED.expiry_time,
principal_name = EXCLUDED.principal_name`

	clearAttributesSQL = `DELETE FROM session_attributes WHERE session_id = $1`

	upsertAttributeSQL = `INSERT INTO session_attributes (session_id, name, value)
VALUES ($1, $2, $3)
ON CONFLICT (session_id, name) DO UPDATE SET value = EXCLUDED.value`

	deleteAttributesSQL = `DELETE FROM session_attributes WHERE session_id = $1 AND name = ANY($2)`

	selectSessionSQL = `SELECT s.creation_time, s.last_access_time, s.max_inactive_interval,
COALESCE(s.principal_name, ''), a.name, a.value
FROM sessions s
LEFT JOIN session_attributes a ON a.session_id = s.id
WHERE s.id = $1`

	selectByPrincipalSQL = `SELECT id FROM sessions WHERE principal_name = $1`

	deleteSessionSQL = `DELETE FROM sessions WHERE id = $1 RETURNING COALESCE(principal_name, '')`

	deleteExpiredSessionSQL = `DELETE FROM sessions
WHERE id = $1 AND expiry_time <= $2
RETURNING COALESCE(principal_name, '')`

	sweepSQL = `DELETE FROM sessions WHERE id IN (
SELECT id FROM sessions WHERE expiry_time <= $1 LIMIT $2 FOR UPDATE SKIP LOCKED
) RETURNING id, COALESCE(principal_name, '')`
)

// DB is the subset of pgxpool.Pool and pgx.Tx the repository needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

// Repository stores sessions in the sessions and session_attributes tables.
// Operations join a transaction carried by the context (see pg.WithTx).
type Repository struct {
	pool DB
	cfg  Config

	maxInactive time.Duration
	resolver    session.PrincipalResolver
	codec       session.AttributeCodec
	publisher   event.Publisher
	newID       session.IDGenerator
	now         func() time.Time
	logger      *slog.Logger
}

var _ session.IndexedRepository = (*Repository)(nil)

// New creates a repository. Run Migrate before first use.
func New(pool DB, cfg Config, opts ...Option) *Repository {
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = DefaultConfig().SweepBatchSize
	}
	r := &Repository{
		pool:        pool,
		cfg:         cfg,
		maxInactive: session.DefaultMaxInactiveInterval,
		resolver:    session.DefaultPrincipalResolver(),
		codec:       session.JSONCodec{},
		publisher:   event.NopPublisher{},
		newID:       session.UUIDGenerator,
		now:         time.Now,
		logger:      discardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) db(ctx context.Context) DB {
	if tx, ok := pg.TxFromContext(ctx); ok {
		return tx
	}
	return r.pool
}

// CreateSession implements session.Repository.
func (r *Repository) CreateSession(_ context.Context) (*session.Session, error) {
	id, err := r.newID()
	if err != nil {
		return nil, err
	}
	return session.New(id, r.maxInactive, r.now()), nil
}

// Save implements session.Repository. Existing rows receive only the pending
// delta; new or vanished sessions are written in full.
func (r *Repository) Save(ctx context.Context, s *session.Session) error {
	if s.IsInvalidated() {
		return session.ErrInvalidatedSession
	}
	if s.IsExpiredAt(r.now()) {
		return session.ErrExpired
	}

	id := s.ID()
	isNew := s.IsNew()
	delta := s.Delta()
	change := session.ResolveIndexChange(s, r.resolver)

	set, err := r.encodeAttrs(delta.Set)
	if err != nil {
		return err
	}
	all := set
	if !isNew {
		if all, err = r.encodeAttrs(s.Attributes()); err != nil {
			return err
		}
	}

	expiry := expiryTime(s)
	interval := encodeInterval(s.MaxInactiveInterval())
	principal := nullable(change.New)

	err = pgx.BeginFunc(ctx, r.db(ctx), func(tx pgx.Tx) error {
		if !isNew {
			tag, err := tx.Exec(ctx, updateSessionSQL, id, s.LastAccessedTime(), interval, expiry, principal)
			if err != nil {
				return err
			}
			if tag.RowsAffected() > 0 {
				return r.applyDelta(ctx, tx, id, set, delta.Removed)
			}
		}

		if _, err := tx.Exec(ctx, upsertSessionSQL, id, s.CreationTime(), s.LastAccessedTime(), interval, expiry, principal); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, clearAttributesSQL, id); err != nil {
			return err
		}
		return r.applyDelta(ctx, tx, id, all, nil)
	})
	if err != nil {
		return session.Unavailable(fmt.Errorf("save session: %w", err))
	}

	s.MarkSaved(change.New)

	switch {
	case isNew:
		r.publish(ctx, event.Created, id, change.New)
	case len(delta.Set) > 0 || len(delta.Removed) > 0:
		r.publish(ctx, event.AttributeChanged, id, change.New)
	}
	return nil
}

func (r *Repository) applyDelta(ctx context.Context, tx pgx.Tx, id string, set map[string][]byte, removed []string) error {
	if len(set) == 0 && len(removed) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for name, value := range set {
		batch.Queue(upsertAttributeSQL, id, name, value)
	}
	if len(removed) > 0 {
		batch.Queue(deleteAttributesSQL, id, removed)
	}
	return tx.SendBatch(ctx, batch).Close()
}

// FindByID implements session.Repository. A found-but-expired session is
// removed and reported as session.ErrNotFound.
func (r *Repository) FindByID(ctx context.Context, id string) (*session.Session, error) {
	if id == "" {
		return nil, session.ErrNotFound
	}

	rows, err := r.db(ctx).Query(ctx, selectSessionSQL, id)
	if err != nil {
		return nil, session.Unavailable(err)
	}
	defer rows.Close()

	var (
		found                  bool
		creation, lastAccessed time.Time
		interval               int64
		principal              string
		attrs                  = make(map[string]any)
	)
	for rows.Next() {
		var (
			name  *string
			value []byte
		)
		if err := rows.Scan(&creation, &lastAccessed, &interval, &principal, &name, &value); err != nil {
			return nil, session.Unavailable(err)
		}
		found = true
		if name == nil {
			continue
		}
		v, err := r.codec.Decode(value)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", *name, err)
		}
		attrs[*name] = v
	}
	if err := rows.Err(); err != nil {
		return nil, session.Unavailable(err)
	}
	if !found {
		return nil, session.ErrNotFound
	}

	s := session.Restore(id, creation, lastAccessed, decodeInterval(interval), attrs, principal)
	if s.IsExpiredAt(r.now()) {
		if _, err := r.remove(ctx, id, event.Expired); err != nil {
			r.logger.WarnContext(ctx, "failed to remove expired session",
				logger.SessionID(id),
				logger.Error(err))
		}
		return nil, session.ErrNotFound
	}
	return s, nil
}

// Delete implements session.Repository.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := r.remove(ctx, id, event.Deleted); err != nil {
		return session.Unavailable(err)
	}
	return nil
}

// FindByIndexNameAndIndexValue implements session.IndexedRepository.
func (r *Repository) FindByIndexNameAndIndexValue(ctx context.Context, name, value string) (map[string]*session.Session, error) {
	result := make(map[string]*session.Session)
	if name != session.PrincipalIndexName || value == "" {
		return result, nil
	}

	rows, err := r.db(ctx).Query(ctx, selectByPrincipalSQL, value)
	if err != nil {
		return nil, session.Unavailable(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, session.Unavailable(err)
	}

	for _, id := range ids {
		s, err := r.FindByID(ctx, id)
		switch {
		case errors.Is(err, session.ErrNotFound):
			continue
		case err != nil:
			return nil, err
		}
		result[id] = s
	}
	return result, nil
}

// Sweep deletes expired sessions in batches and publishes an Expired event
// for each. Concurrent sweepers skip rows locked by one another.
func (r *Repository) Sweep(ctx context.Context) (int, error) {
	removed := 0
	for {
		rows, err := r.db(ctx).Query(ctx, sweepSQL, r.now(), r.cfg.SweepBatchSize)
		if err != nil {
			return removed, session.Unavailable(err)
		}
		type row struct {
			ID        string
			Principal string
		}
		batch, err := pgx.CollectRows(rows, func(rows pgx.CollectableRow) (row, error) {
			var out row
			err := rows.Scan(&out.ID, &out.Principal)
			return out, err
		})
		if err != nil {
			return removed, session.Unavailable(err)
		}

		for _, deleted := range batch {
			r.publish(ctx, event.Expired, deleted.ID, deleted.Principal)
		}
		removed += len(batch)
		if len(batch) < r.cfg.SweepBatchSize {
			return removed, nil
		}
		if err := ctx.Err(); err != nil {
			return removed, err
		}
	}
}

// remove deletes a session row. For event.Expired only a row that is still
// expired is deleted, so a concurrent refresh wins.
func (r *Repository) remove(ctx context.Context, id string, kind event.Kind) (bool, error) {
	var row pgx.Row
	if kind == event.Expired {
		row = r.db(ctx).QueryRow(ctx, deleteExpiredSessionSQL, id, r.now())
	} else {
		row = r.db(ctx).QueryRow(ctx, deleteSessionSQL, id)
	}

	var principal string
	if err := row.Scan(&principal); err != nil {
		if pg.IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	r.publish(ctx, kind, id, principal)
	return true, nil
}

func (r *Repository) publish(ctx context.Context, kind event.Kind, id, principal string) {
	if err := r.publisher.Publish(ctx, event.New(kind, id, principal)); err != nil {
		r.logger.WarnContext(ctx, "failed to publish session event",
			logger.Event(kind.String()),
			logger.SessionID(id),
			logger.Error(err))
	}
}

func (r *Repository) encodeAttrs(attrs map[string]any) (map[string][]byte, error) {
	out := make(map[string][]byte, len(attrs))
	for name, value := range attrs {
		data, err := r.codec.Encode(value)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = data
	}
	return out, nil
}

func expiryTime(s *session.Session) *time.Time {
	at, ok := s.ExpiresAt()
	if !ok {
		return nil
	}
	return &at
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func encodeInterval(d time.Duration) int64 {
	if d < 0 {
		return -1
	}
	return d.Milliseconds()
}

func decodeInterval(ms int64) time.Duration {
	if ms < 0 {
		return session.NeverExpire
	}
	return time.Duration(ms) * time.Millisecond
}
