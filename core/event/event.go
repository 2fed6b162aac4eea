package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies a session lifecycle transition.
type Kind uint8

const (
	// Created is published when a session is saved for the first time.
	Created Kind = iota + 1
	// Deleted is published when a session is removed explicitly.
	Deleted
	// Expired is published when a session is removed because its inactivity window elapsed.
	Expired
	// AttributeChanged is published by backends that report attribute updates.
	AttributeChanged
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	case Expired:
		return "expired"
	case AttributeChanged:
		return "attribute_changed"
	}
	return "unknown"
}

// IsTerminal reports whether the kind ends a session's life.
// Cleanup consumers treat Deleted and Expired the same way.
func (k Kind) IsTerminal() bool {
	return k == Deleted || k == Expired
}

// SessionEvent is a session lifecycle notification.
type SessionEvent struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	SessionID  string    `json:"session_id"`
	Principal  string    `json:"principal,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New creates a SessionEvent with a generated id and the current time.
func New(kind Kind, sessionID, principal string) SessionEvent {
	return SessionEvent{
		ID:         uuid.New().String(),
		Kind:       kind,
		SessionID:  sessionID,
		Principal:  principal,
		OccurredAt: time.Now(),
	}
}
