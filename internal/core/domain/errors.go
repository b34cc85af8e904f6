package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session id does not resolve in the
	// state store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidRequest is returned for requests missing required fields.
	ErrInvalidRequest = errors.New("invalid classification request")
)
