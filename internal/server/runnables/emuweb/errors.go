package emuweb

import "errors"

var (
	// ErrNilDevice is returned by NewRunner when no virtual device is provided.
	ErrNilDevice = errors.New("virtual device cannot be nil")

	// ErrNilController is returned by NewRunner when no HAL controller is provided.
	ErrNilController = errors.New("hal controller cannot be nil")

	// ErrNilBus is returned by NewRunner when no bus is provided.
	ErrNilBus = errors.New("bus cannot be nil")
)
