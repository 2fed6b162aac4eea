package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// PrincipalIndexName is the index holding sessions by principal name.
const PrincipalIndexName = "principal"

// Repository persists sessions. Implementations must be safe for concurrent use.
type Repository interface {
	// CreateSession allocates an unsaved session with a fresh id and the
	// repository's default inactivity window.
	CreateSession(ctx context.Context) (*Session, error)
	// Save makes the session and its index entries durable. It fails with
	// ErrExpired when the inactivity window already elapsed.
	Save(ctx context.Context, s *Session) error
	// FindByID returns ErrNotFound for unknown or expired ids.
	FindByID(ctx context.Context, id string) (*Session, error)
	// Delete removes the session and its index entries. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
}

// IndexedRepository is a Repository that can look sessions up by an index value.
type IndexedRepository interface {
	Repository
	// FindByIndexNameAndIndexValue returns live sessions keyed by id.
	// Unknown index names yield an empty map.
	FindByIndexNameAndIndexValue(ctx context.Context, name, value string) (map[string]*Session, error)
}

// FindByPrincipal is a shortcut for the principal index lookup.
func FindByPrincipal(ctx context.Context, repo IndexedRepository, principal string) (map[string]*Session, error) {
	return repo.FindByIndexNameAndIndexValue(ctx, PrincipalIndexName, principal)
}

// IDGenerator allocates session identifiers.
type IDGenerator func() (string, error)

// UUIDGenerator returns random (version 4) UUID strings.
func UUIDGenerator() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIDGeneration, err)
	}
	return id.String(), nil
}

// Unavailable wraps a backend failure with ErrRepositoryUnavailable.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
}

// IndexChange describes how a save moves a session between principal index entries.
type IndexChange struct {
	Old string
	New string
}

// Changed reports whether the index entry must be rewritten.
func (c IndexChange) Changed() bool {
	return c.Old != c.New
}

// ResolveIndexChange compares the persisted principal with the current resolution.
// A new session has no old entry to remove.
func ResolveIndexChange(s *Session, resolver PrincipalResolver) IndexChange {
	change := IndexChange{New: resolver.ResolvePrincipal(s)}
	if !s.IsNew() {
		change.Old = s.PersistedPrincipal()
	}
	return change
}
