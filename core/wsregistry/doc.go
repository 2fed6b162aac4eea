// Package wsregistry closes websocket connections that belong to a session
// once that session is deleted or expires.
//
// Register each upgraded connection under the HTTP session id that opened it
// and subscribe the registry to the session event bus:
//
//	conns := wsregistry.New(wsregistry.WithLogger(log))
//	bus.Subscribe(conns.Handler(), event.Deleted, event.Expired)
//
//	func serveWS(w http.ResponseWriter, r *http.Request) {
//		s, err := exchange.GetSession(r.Context(), false)
//		if err != nil {
//			http.Error(w, "no session", http.StatusUnauthorized)
//			return
//		}
//		conn, done, err := conns.Upgrade(&upgrader, w, r, s.ID())
//		if err != nil {
//			return
//		}
//		defer done()
//		defer conn.Close()
//		// read loop
//	}
//
// Closed connections receive close code 1008 (policy violation).
package wsregistry
