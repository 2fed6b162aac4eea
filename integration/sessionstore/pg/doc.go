// Package pg implements session.IndexedRepository on PostgreSQL.
//
// Sessions live in two tables: sessions holds one row of metadata per session
// with its principal index value and expiry time, session_attributes holds
// one row per attribute with the codec-encoded value. The schema ships as
// embedded goose migrations applied by Migrate.
//
// Saves of existing sessions update the metadata row and upsert or delete only
// the changed attribute rows, so concurrent requests touching different
// attributes do not overwrite each other. When the context carries a
// transaction (pg.WithTx) every statement runs inside it.
//
// Expiration is pull driven: FindByID removes expired rows lazily and Sweep
// deletes the rest in batches, publishing an Expired event per session.
//
//	pool, err := pgdb.Connect(ctx, pgCfg)
//	if err != nil {
//		return err
//	}
//	if err := pg.Migrate(ctx, pool, pg.DefaultConfig(), log); err != nil {
//		return err
//	}
//	repo := pg.New(pool, pg.DefaultConfig(), pg.WithPublisher(bus))
package pg
