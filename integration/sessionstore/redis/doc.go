// Package redis implements session.IndexedRepository on Redis.
//
// Each session is a hash holding its timestamps, inactivity window, principal
// index value and JSON encoded attributes. A separate shadow key carries the
// expiry TTL; its expiration drives Expired events through Listen, and Sweep
// catches whatever the notification feed missed. Saves run inside WATCH/MULTI
// so the principal index moves together with the record.
//
// Basic usage:
//
//	client, err := redisdb.Connect(ctx, redisdb.Config{ConnectionURL: "redis://localhost:6379/0"})
//	if err != nil {
//		return err
//	}
//	repo := redis.New(client, redis.DefaultConfig(),
//		redis.WithPublisher(bus),
//		redis.WithLogger(log),
//	)
//	go repo.Listen(ctx)
//
// Every key of one session lives under the same namespace but not the same
// hash slot, so Redis Cluster deployments need a single-shard setup.
package redis
