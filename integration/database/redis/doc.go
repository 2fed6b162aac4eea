// Package redis opens go-redis clients with retry and exposes a health probe.
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	mux.Handle("GET /health/ready", healthcheck.Handler(log, redis.Healthcheck(client)))
//
// Connect accepts redis:// and rediss:// URLs and retries the initial ping
// with exponential backoff (RetryAttempts, RetryInterval) within ConnectTimeout.
//
// Errors are sentinel values checked with errors.Is:
// ErrEmptyConnectionURL, ErrFailedToParseRedisConnString, ErrRedisNotReady
// and ErrHealthcheckFailed.
package redis
