// Package mongo opens MongoDB clients with retry and exposes a health probe.
//
//	var cfg mongo.Config
//	config.MustLoad(&cfg)
//
//	db, err := mongo.NewWithDatabase(ctx, cfg, "app")
//	if err != nil {
//		return err
//	}
//	defer db.Client().Disconnect(ctx)
//
// New retries connection and the initial ping, which absorbs Atlas cold
// starts and brief network interruptions during deploys.
package mongo
