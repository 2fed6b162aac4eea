package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/extsession/core/config"
	"github.com/dmitrymomot/extsession/core/event"
	"github.com/dmitrymomot/extsession/core/healthcheck"
	"github.com/dmitrymomot/extsession/core/session"
	mongodb "github.com/dmitrymomot/extsession/integration/database/mongo"
	pgdb "github.com/dmitrymomot/extsession/integration/database/pg"
	redisdb "github.com/dmitrymomot/extsession/integration/database/redis"
	mongostore "github.com/dmitrymomot/extsession/integration/sessionstore/mongo"
	pgstore "github.com/dmitrymomot/extsession/integration/sessionstore/pg"
	redisstore "github.com/dmitrymomot/extsession/integration/sessionstore/redis"
)

var errUnknownBackend = errors.New("unknown session backend")

// sweepingRepository is what every backend adapter provides.
type sweepingRepository interface {
	session.IndexedRepository
	Sweep(ctx context.Context) (int, error)
}

type backend struct {
	repo        sweepingRepository
	healthcheck healthcheck.Check
	listen      func(ctx context.Context) error
	close       func()
}

type backendDeps struct {
	publisher event.Publisher
	resolver  session.PrincipalResolver
	interval  time.Duration
	logger    *slog.Logger
}

type mongoConfig struct {
	Client   mongodb.Config
	Database string `env:"MONGODB_DATABASE" envDefault:"extsession"`
	Store    mongostore.Config
}

type pgConfig struct {
	Pool  pgdb.Config
	Store pgstore.Config
}

type redisConfig struct {
	Client redisdb.Config
	Store  redisstore.Config
}

// openBackend connects to the named backend. Backend settings are loaded only
// for the selected backend so the others' required variables may stay unset.
func openBackend(ctx context.Context, name string, deps backendDeps) (*backend, error) {
	switch name {
	case "redis":
		var cfg redisConfig
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		client, err := redisdb.Connect(ctx, cfg.Client)
		if err != nil {
			return nil, err
		}
		repo := redisstore.New(client, cfg.Store,
			redisstore.WithPublisher(deps.publisher),
			redisstore.WithPrincipalResolver(deps.resolver),
			redisstore.WithMaxInactiveInterval(deps.interval),
			redisstore.WithLogger(deps.logger))
		return &backend{
			repo:        repo,
			healthcheck: redisdb.Healthcheck(client),
			listen:      repo.Listen,
			close:       func() { _ = client.Close() },
		}, nil

	case "mongo":
		var cfg mongoConfig
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		db, err := mongodb.NewWithDatabase(ctx, cfg.Client, cfg.Database)
		if err != nil {
			return nil, err
		}
		repo := mongostore.New(db, cfg.Store,
			mongostore.WithPublisher(deps.publisher),
			mongostore.WithPrincipalResolver(deps.resolver),
			mongostore.WithMaxInactiveInterval(deps.interval),
			mongostore.WithLogger(deps.logger))
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = db.Client().Disconnect(context.Background())
			return nil, err
		}
		return &backend{
			repo:        repo,
			healthcheck: mongodb.Healthcheck(db.Client()),
			close:       func() { _ = db.Client().Disconnect(context.Background()) },
		}, nil

	case "pg", "postgres":
		var cfg pgConfig
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		pool, err := pgdb.Connect(ctx, cfg.Pool)
		if err != nil {
			return nil, err
		}
		if err := pgstore.Migrate(ctx, pool, cfg.Store, deps.logger); err != nil {
			pool.Close()
			return nil, err
		}
		repo := pgstore.New(pool, cfg.Store,
			pgstore.WithPublisher(deps.publisher),
			pgstore.WithPrincipalResolver(deps.resolver),
			pgstore.WithMaxInactiveInterval(deps.interval),
			pgstore.WithLogger(deps.logger))
		return &backend{
			repo:        repo,
			healthcheck: pgdb.Healthcheck(pool),
			close:       pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", errUnknownBackend, name)
}
