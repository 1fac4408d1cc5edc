package switchmon

import "errors"

// ErrNilHardware is returned by NewRunner when no hardware is provided.
var ErrNilHardware = errors.New("hardware cannot be nil")
