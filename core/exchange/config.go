package exchange

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/extsession/core/session"
	"github.com/dmitrymomot/extsession/core/sessiontransport"
)

// Config wires a Coordinator to its collaborators.
type Config struct {
	// Repository stores sessions (required).
	Repository session.Repository
	// Resolver carries the session id between client and server (required).
	Resolver sessiontransport.IDResolver
	// TolerateUnavailable treats an unavailable repository as "no session" on
	// read paths. The client id is kept so the session is found again once the
	// backend recovers.
	TolerateUnavailable bool `env:"SESSION_TOLERATE_UNAVAILABLE" envDefault:"false"`
	// OnCommitError renders the response when the commit triggered by the
	// handler's first write fails. Defaults to DefaultCommitErrorHandler.
	OnCommitError func(w http.ResponseWriter, r *http.Request, err error)
	// Logger defaults to a discarding logger.
	Logger *slog.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Validate reports missing collaborators.
func (c Config) Validate() error {
	if c.Repository == nil {
		return fmt.Errorf("%w: repository is required", ErrInvalidConfig)
	}
	if c.Resolver == nil {
		return fmt.Errorf("%w: id resolver is required", ErrInvalidConfig)
	}
	return nil
}
