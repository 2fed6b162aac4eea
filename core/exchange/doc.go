// Package exchange implements the per-request session commit protocol.
//
// A Coordinator is created for every request/response exchange. It resolves
// the requested session id through a sessiontransport.IDResolver, loads the
// session from a session.Repository on first use and caches it for the rest
// of the exchange. The session is saved exactly once, either when the handler
// finishes or when the response headers are about to be sent, whichever
// comes first:
//
//	NoSessionTouched -> SessionLoadedOrCreated -> Committed
//
// The wrapped http.ResponseWriter returned by New provides the on-commit hook,
// so cookies and headers carrying the session id are set before any byte of
// the body is written. If that commit fails, Config.OnCommitError renders the
// response instead and the handler's own output is discarded.
//
// Handlers reach the coordinator through the request context:
//
//	s, err := exchange.GetSession(r.Context(), true)
//	if err != nil {
//		return err
//	}
//	s.SetAttribute("cart", items)
//
// On login, rotate the id to prevent session fixation:
//
//	c, _ := exchange.FromContext(r.Context())
//	if _, err := c.ChangeSessionID(r.Context()); err != nil {
//		return err
//	}
//
// The middleware package wires the coordinator into an http.Handler chain.
package exchange
