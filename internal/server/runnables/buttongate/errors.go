package buttongate

import "errors"

var (
	// ErrNilLEDs is returned by NewRunner when no LED state source is provided.
	ErrNilLEDs = errors.New("led state source cannot be nil")

	// ErrNilBus is returned by NewRunner when no bus is provided.
	ErrNilBus = errors.New("bus cannot be nil")
)
