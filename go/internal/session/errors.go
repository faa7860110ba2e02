package session

import "errors"

var (
	// ErrNotFound is returned by a Repository when no record exists.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidID is returned for empty session identifiers.
	ErrInvalidID = errors.New("invalid session id")
)
