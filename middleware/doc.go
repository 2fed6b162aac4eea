// Package middleware provides net/http middleware for session-backed services.
//
// All middleware share the Middleware type and compose with Chain:
//
//	h := middleware.Chain(app,
//		middleware.RequestID(),
//		middleware.Logging(log),
//		middleware.Session(middleware.SessionConfig{Config: exchangeCfg}),
//	)
//
// # Session
//
// Session attaches an exchange.Coordinator to the request context and commits
// it after the handler. Handlers use exchange.GetSession to reach the session:
//
//	func cart(w http.ResponseWriter, r *http.Request) {
//		s, err := exchange.GetSession(r.Context(), true)
//		if err != nil {
//			http.Error(w, err.Error(), http.StatusServiceUnavailable)
//			return
//		}
//		items, _ := session.Attr[[]string](s, "cart")
//		// ...
//	}
//
// # Request ID and Logging
//
// RequestID stores a per-request id in the context and the X-Request-ID
// response header. Logging writes one structured record per request and picks
// up the request id when RequestID runs first.
package middleware
