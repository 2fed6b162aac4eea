// Package pg manages PostgreSQL pools built on pgx, schema migrations run by
// goose, and transaction propagation through context.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.MigrateFS(ctx, pool, migrations, "session_schema_migrations", log); err != nil {
//		return err
//	}
//
// Connect retries the initial ping with exponential backoff. Migrate reads
// migrations from cfg.MigrationsPath; MigrateFS takes any fs.FS so packages
// can embed their own schema. goose runs on database/sql through the pgx
// stdlib adapter, sharing the pool.
//
// # Transactions
//
// WithTx attaches a pgx.Tx to a context and TxFromContext retrieves it, so
// repositories join a transaction opened by the caller:
//
//	tx, err := pool.Begin(ctx)
//	if err != nil {
//		return err
//	}
//	defer tx.Rollback(ctx)
//
//	ctx = pg.WithTx(ctx, tx)
//	if err := sessions.Save(ctx, s); err != nil {
//		return err
//	}
//	return tx.Commit(ctx)
//
// # Errors
//
// IsNotFoundError, IsDuplicateKeyError, IsForeignKeyViolationError and
// IsTxClosedError classify driver errors.
package pg
