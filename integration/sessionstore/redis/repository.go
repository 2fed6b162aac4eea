package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/extsession/core/event"
	"github.com/dmitrymomot/extsession/core/logger"
	"github.com/dmitrymomot/extsession/core/session"
)

const (
	fieldCreation     = "creationTime"
	fieldLastAccessed = "lastAccessedTime"
	fieldInterval     = "maxInactiveInterval"
	fieldPrincipal    = "principal"
	attrPrefix        = "attr:"

	// expiryGrace keeps the hash readable after its shadow key expires so the
	// expiration handler can still resolve the principal.
	expiryGrace = 5 * time.Minute

	maxWatchRetries = 5
)

// removeScript deletes a session hash, its shadow key and its principal index
// entry in one step. With a non-empty ARGV[3] (current time in ms) the record
// is removed only if it is still expired, which guards against a concurrent
// save refreshing it.
var removeScript = redis.NewScript(`
local interval = redis.call('HGET', KEYS[1], 'maxInactiveInterval')
if ARGV[3] ~= '' then
  if not interval then return {0, ''} end
  local last = tonumber(redis.call('HGET', KEYS[1], 'lastAccessedTime') or '0')
  interval = tonumber(interval)
  if interval < 0 or tonumber(ARGV[3]) - last < interval then return {0, ''} end
end
local principal = redis.call('HGET', KEYS[1], 'principal')
local existed = redis.call('DEL', KEYS[1])
redis.call('DEL', KEYS[2])
if principal and principal ~= '' then
  redis.call('SREM', ARGV[1] .. principal, ARGV[2])
else
  principal = ''
end
return {existed, principal}
`)

// repairIndexScript drops index members whose session hash no longer carries
// the indexed principal. The check and the SREM run atomically, so a save that
// moved a session back under the principal in the meantime keeps its entry.
// KEYS[1] is the index set, KEYS[2..] the session hashes matching ARGV[2..].
var repairIndexScript = redis.NewScript(`
local removed = 0
for i = 2, #KEYS do
  local principal = redis.call('HGET', KEYS[i], 'principal')
  if principal ~= ARGV[1] then
    removed = removed + redis.call('SREM', KEYS[1], ARGV[i])
  end
end
return removed
`)

// Repository stores sessions in Redis hashes.
//
// Layout, for namespace ns:
//
//	ns:sessions:<id>            hash with metadata and attr:<name> fields
//	ns:sessions:expires:<id>    shadow key whose TTL marks the expiry instant
//	ns:index:principal:<value>  set of session ids
//
// The hash outlives the shadow key by a grace period, so expired key events
// can still be turned into Expired events carrying the principal.
type Repository struct {
	client    redis.UniversalClient
	cfg       Config
	namespace string

	maxInactive time.Duration
	resolver    session.PrincipalResolver
	codec       session.AttributeCodec
	publisher   event.Publisher
	newID       session.IDGenerator
	now         func() time.Time
	logger      *slog.Logger
}

var _ session.IndexedRepository = (*Repository)(nil)

// New creates a Redis-backed repository.
func New(client redis.UniversalClient, cfg Config, opts ...Option) *Repository {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultConfig().Namespace
	}
	if cfg.ScanBatchSize <= 0 {
		cfg.ScanBatchSize = DefaultConfig().ScanBatchSize
	}
	r := &Repository{
		client:      client,
		cfg:         cfg,
		namespace:   strings.TrimSuffix(cfg.Namespace, ":"),
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

// CreateSession implements session.Repository. Nothing is written until Save.
func (r *Repository) CreateSession(_ context.Context) (*session.Session, error) {
	id, err := r.newID()
	if err != nil {
		return nil, err
	}
	return session.New(id, r.maxInactive, r.now()), nil
}

// Save implements session.Repository. Existing records receive only the
// pending delta; new or vanished records are written in full.
func (r *Repository) Save(ctx context.Context, s *session.Session) error {
	if s.IsInvalidated() {
		return session.ErrInvalidatedSession
	}
	now := r.now()
	ttl, err := s.BackendTTL(now, time.Second)
	if err != nil {
		return err
	}

	id := s.ID()
	isNew := s.IsNew()
	delta := s.Delta()
	change := session.ResolveIndexChange(s, r.resolver)

	full, err := r.encodeAll(s)
	if err != nil {
		return err
	}
	set, err := r.encodeAttrs(delta.Set)
	if err != nil {
		return err
	}

	key := r.sessionKey(id)
	write := func(tx *redis.Tx) error {
		stored, err := tx.HGet(ctx, key, fieldPrincipal).Result()
		exists := err == nil
		if errors.Is(err, redis.Nil) {
			exists, err = r.exists(ctx, tx, key)
		}
		if err != nil {
			return err
		}
		old := change.Old
		if exists {
			old = stored
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if isNew || !exists {
				pipe.Del(ctx, key)
				pipe.HSet(ctx, key, full)
			} else {
				if len(set) > 0 {
					pipe.HSet(ctx, key, set)
				}
				for _, name := range delta.Removed {
					pipe.HDel(ctx, key, attrPrefix+name)
				}
				pipe.HSet(ctx, key,
					fieldLastAccessed, s.LastAccessedTime().UnixMilli(),
					fieldInterval, encodeInterval(s.MaxInactiveInterval()),
				)
			}

			if change.New == "" {
				pipe.HDel(ctx, key, fieldPrincipal)
			} else {
				pipe.HSet(ctx, key, fieldPrincipal, change.New)
			}
			if old != "" && old != change.New {
				pipe.SRem(ctx, r.indexKey(old), id)
			}
			if change.New != "" {
				pipe.SAdd(ctx, r.indexKey(change.New), id)
			}

			if ttl == session.NoTTL {
				pipe.Persist(ctx, key)
				pipe.Del(ctx, r.expiresKey(id))
			} else {
				pipe.Set(ctx, r.expiresKey(id), "", ttl)
				pipe.Expire(ctx, key, ttl+expiryGrace)
			}
			return nil
		})
		return err
	}

	if err := r.watch(ctx, write, key); err != nil {
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

// FindByID implements session.Repository. A found-but-expired session is
// removed and reported as session.ErrNotFound.
func (r *Repository) FindByID(ctx context.Context, id string) (*session.Session, error) {
	if id == "" {
		return nil, session.ErrNotFound
	}

	fields, err := r.client.HGetAll(ctx, r.sessionKey(id)).Result()
	if err != nil {
		return nil, session.Unavailable(err)
	}
	if len(fields) == 0 {
		return nil, session.ErrNotFound
	}

	s, err := r.decode(id, fields)
	if err != nil {
		return nil, err
	}
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
// Index members whose session is gone or re-indexed are dropped from the set.
func (r *Repository) FindByIndexNameAndIndexValue(ctx context.Context, name, value string) (map[string]*session.Session, error) {
	result := make(map[string]*session.Session)
	if name != session.PrincipalIndexName || value == "" {
		return result, nil
	}

	idxKey := r.indexKey(value)
	ids, err := r.client.SMembers(ctx, idxKey).Result()
	if err != nil {
		return nil, session.Unavailable(err)
	}

	keys := []string{idxKey}
	args := []any{value}
	for _, id := range ids {
		s, err := r.FindByID(ctx, id)
		switch {
		case errors.Is(err, session.ErrNotFound):
		case err != nil:
			return nil, err
		case s.PersistedPrincipal() == value:
			result[id] = s
			continue
		}
		keys = append(keys, r.sessionKey(id))
		args = append(args, id)
	}

	if len(keys) > 1 {
		if err := repairIndexScript.Run(ctx, r.client, keys, args...).Err(); err != nil {
			r.logger.WarnContext(ctx, "failed to repair principal index",
				logger.Principal(value),
				logger.Error(err))
		}
	}
	return result, nil
}

// remove deletes a session record. For event.Expired it deletes only a record
// that is still expired at the current time. It reports whether a record was
// removed and publishes the matching event.
func (r *Repository) remove(ctx context.Context, id string, kind event.Kind) (bool, error) {
	onlyExpired := ""
	if kind == event.Expired {
		onlyExpired = strconv.FormatInt(r.now().UnixMilli(), 10)
	}

	res, err := removeScript.Run(ctx, r.client,
		[]string{r.sessionKey(id), r.expiresKey(id)},
		r.indexPrefix(), id, onlyExpired,
	).Slice()
	if err != nil {
		return false, err
	}
	if len(res) != 2 {
		return false, fmt.Errorf("unexpected remove script reply: %v", res)
	}

	existed, _ := res[0].(int64)
	if existed == 0 {
		return false, nil
	}
	principal, _ := res[1].(string)
	r.publish(ctx, kind, id, principal)
	return true, nil
}

func (r *Repository) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	var err error
	for range maxWatchRetries {
		err = r.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (r *Repository) exists(ctx context.Context, tx *redis.Tx, key string) (bool, error) {
	n, err := tx.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repository) publish(ctx context.Context, kind event.Kind, id, principal string) {
	if err := r.publisher.Publish(ctx, event.New(kind, id, principal)); err != nil {
		r.logger.WarnContext(ctx, "failed to publish session event",
			logger.Event(kind.String()),
			logger.SessionID(id),
			logger.Error(err))
	}
}

func (r *Repository) encodeAll(s *session.Session) (map[string]any, error) {
	fields, err := r.encodeAttrs(s.Attributes())
	if err != nil {
		return nil, err
	}
	fields[fieldCreation] = s.CreationTime().UnixMilli()
	fields[fieldLastAccessed] = s.LastAccessedTime().UnixMilli()
	fields[fieldInterval] = encodeInterval(s.MaxInactiveInterval())
	return fields, nil
}

func (r *Repository) encodeAttrs(attrs map[string]any) (map[string]any, error) {
	fields := make(map[string]any, len(attrs)+3)
	for name, value := range attrs {
		data, err := r.codec.Encode(value)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		fields[attrPrefix+name] = string(data)
	}
	return fields, nil
}

func (r *Repository) decode(id string, fields map[string]string) (*session.Session, error) {
	creation, err := parseMillis(fields[fieldCreation])
	if err != nil {
		return nil, fmt.Errorf("%w: session %s: creation time: %v", session.ErrCodec, id, err)
	}
	lastAccessed, err := parseMillis(fields[fieldLastAccessed])
	if err != nil {
		return nil, fmt.Errorf("%w: session %s: last accessed time: %v", session.ErrCodec, id, err)
	}
	interval, err := decodeInterval(fields[fieldInterval])
	if err != nil {
		return nil, fmt.Errorf("%w: session %s: max inactive interval: %v", session.ErrCodec, id, err)
	}

	attrs := make(map[string]any)
	for field, raw := range fields {
		name, ok := strings.CutPrefix(field, attrPrefix)
		if !ok {
			continue
		}
		v, err := r.codec.Decode([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		attrs[name] = v
	}

	return session.Restore(id, creation, lastAccessed, interval, attrs, fields[fieldPrincipal]), nil
}

func (r *Repository) sessionKey(id string) string {
	return r.namespace + ":sessions:" + id
}

func (r *Repository) expiresKey(id string) string {
	return r.expiresPrefix() + id
}

func (r *Repository) expiresPrefix() string {
	return r.namespace + ":sessions:expires:"
}

func (r *Repository) indexPrefix() string {
	return r.namespace + ":index:" + session.PrincipalIndexName + ":"
}

func (r *Repository) indexKey(value string) string {
	return r.indexPrefix() + value
}

// encodeInterval stores the window in milliseconds, -1 for never.
func encodeInterval(d time.Duration) int64 {
	if d < 0 {
		return -1
	}
	return d.Milliseconds()
}

func decodeInterval(raw string) (time.Duration, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if ms < 0 {
		return session.NeverExpire, nil
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
