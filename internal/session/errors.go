package session

import "errors"

var (
	// ErrSessionNotFound is returned when no session matches the id
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionEnded is returned for operations on a terminal session
	ErrSessionEnded = errors.New("session already ended")

	// ErrSubmissionInFlight rejects a second submission while one is
	// pending; at most one scoring call may be in flight per session
	ErrSubmissionInFlight = errors.New("another submission is in flight")
)
