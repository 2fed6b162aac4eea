// Package mongo implements session.IndexedRepository on MongoDB.
//
// Each session is one document keyed by its id. Attributes are stored as
// codec-encoded binary values under an attrs sub-document, the principal index
// value is a plain indexed field, and expireAt carries the expiry instant.
// Updates of existing sessions touch only changed fields.
//
// Expiration is pull driven: FindByID removes expired documents lazily and
// Sweep removes the rest, publishing Expired events. A TTL index on expireAt
// with a grace delay drops anything the sweeper never reached.
//
//	db, err := mongodb.NewWithDatabase(ctx, cfg, "app")
//	if err != nil {
//		return err
//	}
//	repo := mongo.New(db, mongo.DefaultConfig(), mongo.WithPublisher(bus))
//	if err := repo.EnsureIndexes(ctx); err != nil {
//		return err
//	}
package mongo
