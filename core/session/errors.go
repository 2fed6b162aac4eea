package session

import "errors"

var (
	// ErrNotFound is returned when a session id is unknown or its session has expired.
	// It signals absence, not a failure.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned when saving a session whose inactivity window already elapsed.
	ErrExpired = errors.New("session has expired")
	// ErrRepositoryUnavailable wraps backend I/O failures.
	ErrRepositoryUnavailable = errors.New("session repository unavailable")
	// ErrInvalidatedSession is raised when a session object is used after invalidation.
	ErrInvalidatedSession = errors.New("session has been invalidated")
	// ErrEmptyID is returned when an operation receives an empty session id.
	ErrEmptyID = errors.New("session id is empty")
	// ErrIDGeneration is returned when a new session id cannot be allocated.
	ErrIDGeneration = errors.New("failed to generate session id")
	// ErrCodec is returned when an attribute cannot be encoded or decoded.
	ErrCodec = errors.New("session attribute codec failure")
	// ErrUnknownStrategy is returned for an unsupported principal strategy name.
	ErrUnknownStrategy = errors.New("unknown principal strategy")
	// ErrUnknownFlushMode is returned for an unsupported flush mode name.
	ErrUnknownFlushMode = errors.New("unknown flush mode")
)
