package hal

import "errors"

var (
	ErrNilBackend   = errors.New("backend must not be nil")
	ErrUnknownLED   = errors.New("unknown LED")
	ErrDisplayRange = errors.New("display value out of range")
	ErrNotOpen      = errors.New("backend not open")
)
