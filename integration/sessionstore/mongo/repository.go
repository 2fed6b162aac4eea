package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/extsession/core/event"
	"github.com/dmitrymomot/extsession/core/logger"
	"github.com/dmitrymomot/extsession/core/session"
)

// Repository stores one document per session in a MongoDB collection.
type Repository struct {
	coll *mongo.Collection
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

// New creates a repository on the configured collection of db.
func New(db *mongo.Database, cfg Config, opts ...Option) *Repository {
	if cfg.Collection == "" {
		cfg.Collection = DefaultConfig().Collection
	}
	r := &Repository{
		coll:        db.Collection(cfg.Collection),
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

// EnsureIndexes creates the principal index and the TTL index on expireAt.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	ttl := int32(max(r.cfg.ExpiryGrace, 0) / time.Second)
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "principal", Value: 1}}},
		{
			Keys:    bson.D{{Key: "expireAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(ttl),
		},
	})
	if err != nil {
		return session.Unavailable(fmt.Errorf("create indexes: %w", err))
	}
	return nil
}

// CreateSession implements session.Repository.
func (r *Repository) CreateSession(_ context.Context) (*session.Session, error) {
	id, err := r.newID()
	if err != nil {
		return nil, err
	}
	return session.New(id, r.maxInactive, r.now()), nil
}

// Save implements session.Repository. Existing documents receive only the
// pending delta; new or vanished ones are replaced in full.
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

	written := false
	if !isNew {
		update, err := r.deltaUpdate(s, delta, change.New)
		if err != nil {
			return err
		}
		res, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
		if err != nil {
			return session.Unavailable(fmt.Errorf("update session: %w", err))
		}
		written = res.MatchedCount > 0
	}

	if !written {
		doc, err := toDocument(s, change.New, r.codec)
		if err != nil {
			return err
		}
		_, err = r.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: id}}, doc,
			options.Replace().SetUpsert(true))
		if err != nil {
			return session.Unavailable(fmt.Errorf("replace session: %w", err))
		}
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

func (r *Repository) deltaUpdate(s *session.Session, delta session.Delta, principal string) (bson.D, error) {
	set := bson.D{
		{Key: "accessed", Value: s.LastAccessedTime()},
		{Key: "interval", Value: encodeInterval(s.MaxInactiveInterval())},
	}
	unset := bson.D{}

	if at := expireAt(s); at != nil {
		set = append(set, bson.E{Key: "expireAt", Value: *at})
	} else {
		unset = append(unset, bson.E{Key: "expireAt", Value: ""})
	}
	if principal != "" {
		set = append(set, bson.E{Key: "principal", Value: principal})
	} else {
		unset = append(unset, bson.E{Key: "principal", Value: ""})
	}

	attrs, err := encodeAttrs(delta.Set, r.codec)
	if err != nil {
		return nil, err
	}
	for field, data := range attrs {
		set = append(set, bson.E{Key: "attrs." + field, Value: data})
	}
	for _, name := range delta.Removed {
		unset = append(unset, bson.E{Key: "attrs." + fieldName(name), Value: ""})
	}

	update := bson.D{{Key: "$set", Value: set}}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}
	return update, nil
}

// FindByID implements session.Repository. A found-but-expired session is
// removed and reported as session.ErrNotFound.
func (r *Repository) FindByID(ctx context.Context, id string) (*session.Session, error) {
	if id == "" {
		return nil, session.ErrNotFound
	}

	var doc document
	err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, session.Unavailable(err)
	}
	return r.live(ctx, doc)
}

// live decodes doc and removes it instead when it has expired.
func (r *Repository) live(ctx context.Context, doc document) (*session.Session, error) {
	s, err := fromDocument(doc, r.codec)
	if err != nil {
		return nil, err
	}
	if s.IsExpiredAt(r.now()) {
		if _, err := r.remove(ctx, doc.ID, event.Expired); err != nil {
			r.logger.WarnContext(ctx, "failed to remove expired session",
				logger.SessionID(doc.ID),
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

	cur, err := r.coll.Find(ctx, bson.D{{Key: "principal", Value: value}})
	if err != nil {
		return nil, session.Unavailable(err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, session.Unavailable(err)
	}

	for _, doc := range docs {
		s, err := r.live(ctx, doc)
		switch {
		case errors.Is(err, session.ErrNotFound):
			continue
		case err != nil:
			return nil, err
		}
		result[doc.ID] = s
	}
	return result, nil
}

// Sweep removes every expired session and publishes an Expired event for each.
func (r *Repository) Sweep(ctx context.Context) (int, error) {
	cur, err := r.coll.Find(ctx,
		bson.D{{Key: "expireAt", Value: bson.D{{Key: "$lte", Value: r.now()}}}},
		options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return 0, session.Unavailable(err)
	}
	var ids []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &ids); err != nil {
		return 0, session.Unavailable(err)
	}

	removed := 0
	for _, doc := range ids {
		ok, err := r.remove(ctx, doc.ID, event.Expired)
		if err != nil {
			return removed, session.Unavailable(err)
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// remove deletes a session document. For event.Expired only a document that
// is still expired is deleted, so a concurrent refresh wins.
func (r *Repository) remove(ctx context.Context, id string, kind event.Kind) (bool, error) {
	filter := bson.D{{Key: "_id", Value: id}}
	if kind == event.Expired {
		filter = append(filter, bson.E{Key: "expireAt", Value: bson.D{{Key: "$lte", Value: r.now()}}})
	}

	var doc struct {
		Principal string `bson:"principal"`
	}
	err := r.coll.FindOneAndDelete(ctx, filter,
		options.FindOneAndDelete().SetProjection(bson.D{{Key: "principal", Value: 1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	r.publish(ctx, kind, id, doc.Principal)
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
