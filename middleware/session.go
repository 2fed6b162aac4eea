package middleware

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/extsession/core/exchange"
	"github.com/dmitrymomot/extsession/core/logger"
)

// SessionConfig configures the session middleware.
type SessionConfig struct {
	exchange.Config

	// Skip defines a function to skip middleware execution for specific requests
	Skip func(r *http.Request) bool
	// ErrorHandler renders commit failures, both when the handler returns
	// without writing and when its first write triggers the commit.
	// Default: 500 Internal Server Error.
	ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)
}

// Session attaches an exchange.Coordinator to every request and commits the
// session when the handler returns, unless the response already did.
//
// The middleware:
//   - Exposes the coordinator through exchange.FromContext and exchange.GetSession
//   - Commits after a handler panic and re-panics afterwards
//   - Commits with a detached context when the client went away, logging failures
//   - Passes commit errors to ErrorHandler, discarding the handler's response
//     when its first write triggered the failed commit
//
// Usage:
//
//	mux.Handle("/", middleware.Session(middleware.SessionConfig{
//		Config: exchange.Config{
//			Repository: repo,
//			Resolver:   sessiontransport.NewCookie(serializer),
//			Logger:     log,
//		},
//	})(app))
//
// Panics when the exchange configuration is invalid.
func Session(cfg SessionConfig) Middleware {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("session middleware: %v", err))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = exchange.DefaultCommitErrorHandler
	}
	if cfg.OnCommitError == nil {
		cfg.OnCommitError = cfg.ErrorHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			c, cw := exchange.New(w, r, cfg.Config)
			r = r.WithContext(exchange.WithCoordinator(r.Context(), c))

			panicked := true
			defer func() {
				if !panicked {
					return
				}
				// Persist what the handler did before the panic, then let
				// the server's recovery handle it.
				if err := c.Commit(context.WithoutCancel(r.Context())); err != nil {
					cfg.Logger.ErrorContext(r.Context(), "session commit after panic failed", logger.Error(err))
				}
			}()

			next.ServeHTTP(cw, r)
			panicked = false

			ctx := r.Context()
			aborted := ctx.Err() != nil
			if aborted {
				ctx = context.WithoutCancel(ctx)
			}

			written := c.Written()
			err := c.Commit(ctx)
			switch {
			case err == nil:
			case aborted && !written:
				cfg.Logger.WarnContext(ctx, "best-effort session commit of aborted request failed", logger.Error(err))
			case written:
				// Rendered by ErrorHandler from the response hook.
			default:
				cfg.Logger.ErrorContext(ctx, "session commit failed", logger.Error(err))
				cfg.ErrorHandler(w, r, err)
			}
		})
	}
}
