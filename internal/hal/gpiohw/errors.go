package gpiohw

import "errors"

var (
	ErrMissingPin   = errors.New("missing pin assignment")
	ErrDuplicatePin = errors.New("pin assigned twice")
	ErrUnknownPin   = errors.New("no such pin")
)
