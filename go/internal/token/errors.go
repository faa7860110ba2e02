package token

import "errors"

var (
	// ErrTokenUnknown is returned when no binding exists for a token.
	ErrTokenUnknown = errors.New("token unknown")
	// ErrTokenExpired is returned when a token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidBinding is returned when issuing a token without a full (session, name, role) triple.
	ErrInvalidBinding = errors.New("token binding requires session, name and role")
)
