// Command session-janitor runs the background side of externally stored
// sessions: it turns backend expirations into session events, sweeps expired
// sessions, exposes health and Prometheus metrics, and serves a small admin
// API over the session registry.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/extsession/core/config"
	"github.com/dmitrymomot/extsession/core/event"
	"github.com/dmitrymomot/extsession/core/healthcheck"
	"github.com/dmitrymomot/extsession/core/janitor"
	"github.com/dmitrymomot/extsession/core/logger"
	"github.com/dmitrymomot/extsession/core/metrics"
	"github.com/dmitrymomot/extsession/core/registry"
	"github.com/dmitrymomot/extsession/core/server"
	"github.com/dmitrymomot/extsession/core/session"
	"github.com/dmitrymomot/extsession/middleware"
)

const serviceName = "session-janitor"

type appConfig struct {
	Env              string        `env:"APP_ENV" envDefault:"development"`
	Backend          string        `env:"SESSION_BACKEND" envDefault:"redis"`
	MetricsNamespace string        `env:"METRICS_NAMESPACE" envDefault:"extsession"`
	AdminAPI         bool          `env:"ADMIN_API_ENABLED" envDefault:"true"`
	DedupWindow      time.Duration `env:"EVENT_DEDUP_WINDOW" envDefault:"1m"`

	Server  server.Config
	Janitor janitor.Config
	Session session.Config
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.FromEnv(cfg.Env, serviceName,
		logger.WithContextExtractors(middleware.RequestIDExtractor))
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("session janitor stopped", logger.Error(err))
		os.Exit(1)
	}
	log.Info("session janitor stopped")
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	resolver, err := cfg.Session.Resolver()
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry, cfg.MetricsNamespace)

	transport := event.NewAsyncTransport(event.WithAsyncLogger(log))
	bus := event.NewBus(event.WithTransport(transport), event.WithBusLogger(log))

	b, err := openBackend(ctx, cfg.Backend, backendDeps{
		publisher: bus,
		resolver:  resolver,
		interval:  cfg.Session.MaxInactiveInterval,
		logger:    log,
	})
	if err != nil {
		return err
	}
	defer b.close()

	repo, err := cfg.Session.Wrap(metrics.InstrumentRepository(b.repo, m), log)
	if err != nil {
		return err
	}
	sessions := registry.New(repo,
		registry.WithPrincipalResolver(resolver),
		registry.WithLogger(log.With(logger.Component("registry"))))

	bus.Subscribe(event.Apply(sessions.Handler(), event.Deduplicate(cfg.DedupWindow), event.Logging(log)),
		event.Deleted, event.Expired)
	bus.Subscribe(m.EventHandler())

	j := janitor.NewFromConfig(cfg.Janitor,
		janitor.WithLogger(log.With(logger.Component("janitor"))),
		janitor.WithObserver(m.ObserveSweep))
	if err := j.Add(cfg.Backend, b.repo); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /health/live", healthcheck.Handler(log))
	mux.Handle("GET /health/ready", healthcheck.Handler(log, b.healthcheck, j.Healthcheck))
	mux.Handle("GET /metrics", m.Handler())
	if cfg.AdminAPI {
		newAdminAPI(sessions, log).register(mux)
	}

	srv, err := server.NewFromConfig(cfg.Server, server.WithLogger(log))
	if err != nil {
		return err
	}
	handler := middleware.Chain(mux,
		middleware.RequestID(),
		middleware.Logging(log),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return transport.Run(context.WithoutCancel(ctx))
	})
	g.Go(func() error {
		<-ctx.Done()
		return transport.Close()
	})
	g.Go(j.Run(ctx))
	g.Go(srv.Run(ctx, handler))
	if b.listen != nil {
		g.Go(func() error { return b.listen(ctx) })
	}

	log.InfoContext(ctx, "session janitor started",
		logger.Backend(cfg.Backend),
		slog.String("addr", cfg.Server.Addr))
	return g.Wait()
}
