// Package session defines externally stored, expiring, indexable sessions and the
// repository contract their storage backends implement.
//
// # Core Components
//
//   - Session: id, timestamps, inactivity window and an attribute map with change tracking
//   - Repository / IndexedRepository: the backend contract (create, save, find, delete, index lookup)
//   - PrincipalResolver: derives the principal index value from session attributes
//   - MemoryRepository: in-process reference implementation
//
// # Expiration
//
// A session expires when it has not been accessed for MaxInactiveInterval:
//
//	expired := interval >= 0 && now.Sub(lastAccessed) >= interval
//
// Backends convert the remainder to their TTL unit with BackendTTL, which rounds up
// and refuses to produce a zero or negative TTL. Saving an expired session fails with
// ErrExpired and writes nothing.
//
// # Basic Usage
//
//	repo := session.NewMemoryRepository(session.WithPublisher(bus))
//
//	s, err := repo.CreateSession(ctx)
//	if err != nil {
//		return err
//	}
//	s.SetAttribute(session.PrincipalIndexName, "alice")
//	if err := repo.Save(ctx, s); err != nil {
//		return err
//	}
//
//	sessions, err := session.FindByPrincipal(ctx, repo, "alice")
//
// Attribute values read back from a byte-oriented backend are generic JSON values.
// Use Attr to convert them:
//
//	cart, ok := session.Attr[Cart](s, "cart")
//
// # Principal Index
//
// On every save the repository re-resolves the principal and moves the session between
// index entries in the same atomic unit as the record write. The default resolver reads
// the "principal" attribute and falls back to a SecurityContext stored under
// SecurityContextAttribute.
//
// # Errors
//
//   - ErrNotFound: unknown or expired id (absence, not failure)
//   - ErrExpired: save attempted after the inactivity window elapsed
//   - ErrRepositoryUnavailable: backend I/O failure
//   - ErrInvalidatedSession: attribute access after Invalidate (panics)
package session
