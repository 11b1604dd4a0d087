package core

import "errors"

var (
	// ErrNotConverged is returned when the assistant keeps requesting tools
	// past the configured round limit.
	ErrNotConverged = errors.New("assistant failed to converge")

	// ErrInvalidInput marks errors caused by caller-supplied data.
	ErrInvalidInput = errors.New("invalid input")

	ErrSessionNotFound = errors.New("chat session not found")
)
