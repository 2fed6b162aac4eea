// Package registry answers "which sessions does this principal hold" and enforces
// a cap on concurrent sessions per principal.
//
// The registry has no storage of its own. Every query goes through the principal
// index of a session.IndexedRepository and resolves principals with the same
// resolver the repository uses, so views can never disagree with stored sessions.
//
// # Usage
//
//	reg := registry.New(repo, registry.WithLogger(logger))
//	control := registry.NewConcurrencyControl(reg, 1, registry.RejectNew)
//
//	// Before binding a principal to the current session at login:
//	if err := control.Admit(ctx, username, sess.ID()); err != nil {
//		if errors.Is(err, registry.ErrConcurrentSessionLimitExceeded) {
//			http.Error(w, "too many active sessions", http.StatusConflict)
//			return
//		}
//		return err
//	}
//
// ExpireNow marks a session with ExpiredAttribute, saves it and deletes it, so the
// repository publishes a Deleted event that downstream consumers act upon.
package registry
