package codes

import "errors"

var (
	// ErrMalformedCode is returned for codes that cannot be session identifiers.
	ErrMalformedCode = errors.New("malformed session code")
	// ErrInvalidCode is returned when a well-formed code is not a known subscriber.
	ErrInvalidCode = errors.New("invalid session code")
)
