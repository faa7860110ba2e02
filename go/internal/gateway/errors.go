package gateway

import "errors"

var (
	// ErrRoleConflict is returned when a session already has a live host.
	ErrRoleConflict = errors.New("host already present")
	// ErrDisplayOccupied is returned when a session's display slot is taken.
	ErrDisplayOccupied = errors.New("display slot occupied")
	// ErrNameTaken is returned when a live contestant already uses the name.
	ErrNameTaken = errors.New("name already taken")
	// ErrAlreadyRegistered is returned when a connection tries to join under a second identity.
	ErrAlreadyRegistered = errors.New("connection already joined")

	errMalformed   = errors.New("malformed message")
	errNotVerified = errors.New("session code not verified")
	errUnknownType = errors.New("unknown message type")
)
