package events

import "errors"

var (
	// ErrNilHandler is returned by Subscribe when no handler is provided.
	ErrNilHandler = errors.New("subscription handler must not be nil")
)
