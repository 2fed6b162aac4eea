package healthcheck

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/extsession/core/logger"
)

// Check reports whether a dependency is usable.
type Check func(context.Context) error

// Handler serves as a liveness probe when no checks are given ("ALIVE") and
// as a readiness probe otherwise ("READY", or 503 when any check fails).
//
//	mux.Handle("GET /health/live", healthcheck.Handler(log))
//	mux.Handle("GET /health/ready", healthcheck.Handler(log,
//		redis.Healthcheck(client),
//		pg.Healthcheck(pool),
//	))
func Handler(log *slog.Logger, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = logger.Nop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if len(checks) == 0 {
			writeText(w, http.StatusOK, "ALIVE")
			return
		}

		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				log.ErrorContext(r.Context(), "readiness check failed", logger.Error(err))
				writeText(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable))
				return
			}
		}

		writeText(w, http.StatusOK, "READY")
	}
}

// NoContent answers 204 without touching dependencies.
func NoContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
