// Package logger builds slog loggers and provides attribute helpers shared by
// the session packages.
//
// # Creating Loggers
//
//	log := logger.New(
//		logger.WithProduction("session-janitor"),
//		logger.WithContextValue("request_id", requestIDKey{}),
//	)
//
//	// Preset chosen from APP_ENV
//	log := logger.FromEnv(os.Getenv("APP_ENV"), "session-janitor")
//
// Components in this module accept a *slog.Logger option and default to Nop().
//
// # Attribute Helpers
//
// Helpers return an empty slog.Attr for empty input, so they can be passed
// unconditionally:
//
//	log.ErrorContext(ctx, "failed to save session",
//		logger.SessionID(s.ID()),
//		logger.Principal(principal),
//		logger.Component("exchange"),
//		logger.Error(err),
//	)
//
// # Context Extractors
//
// WithContextExtractors and WithContextValue decorate the handler so that
// request-scoped values are added to every record logged with that context.
package logger
