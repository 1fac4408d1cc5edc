// Package hal defines the hardware abstraction layer: a raw Backend contract
// implemented by the GPIO, emulator, and mock backends, and the Controller
// that wraps one backend and publishes the canonical hardware events. Upper
// layers only ever talk to the Controller, so event payloads are built in a
// single place and the three backends stay observationally identical.
package hal

import (
	"context"
	"time"
)

// BackendKind selects which hardware backend the process runs against.
// Chosen at startup and immutable for the process lifetime.
type BackendKind string

const (
	BackendGPIO     BackendKind = "gpio"
	BackendEmulator BackendKind = "emulator"
	BackendMock     BackendKind = "mock"
)

// Valid reports whether the kind is one of the three known backends.
func (k BackendKind) Valid() bool {
	switch k {
	case BackendGPIO, BackendEmulator, BackendMock:
		return true
	}
	return false
}

// ButtonID identifies one of the five physical buttons.
type ButtonID string

const (
	ButtonRed    ButtonID = "red"
	ButtonYellow ButtonID = "yellow"
	ButtonGreen  ButtonID = "green"
	ButtonBlue   ButtonID = "blue"
	ButtonGo     ButtonID = "go"
)

// ColorButtons lists the four LED-paired buttons, excluding Go.
var ColorButtons = []ButtonID{ButtonRed, ButtonYellow, ButtonGreen, ButtonBlue}

// Valid reports whether the id names a known button.
func (b ButtonID) Valid() bool {
	switch b {
	case ButtonRed, ButtonYellow, ButtonGreen, ButtonBlue, ButtonGo:
		return true
	}
	return false
}

// LEDID identifies one of the four color LEDs, paired 1:1 with the button of
// the same color.
type LEDID string

const (
	LEDRed    LEDID = "red"
	LEDYellow LEDID = "yellow"
	LEDGreen  LEDID = "green"
	LEDBlue   LEDID = "blue"
)

// AllLEDs lists every LED in a stable order.
var AllLEDs = []LEDID{LEDRed, LEDYellow, LEDGreen, LEDBlue}

// Valid reports whether the id names a known LED.
func (l LEDID) Valid() bool {
	switch l {
	case LEDRed, LEDYellow, LEDGreen, LEDBlue:
		return true
	}
	return false
}

// LEDState is the last commanded state of one LED. Brightness is in [0,1];
// backends without brightness control treat >=0.5 as on.
type LEDState struct {
	On         bool    `json:"on"`
	Brightness float64 `json:"brightness"`
}

// ButtonEdge is a raw, ungated transition reported by a backend. Debouncing
// below the coalescing window happens at the source; gating happens above.
type ButtonEdge struct {
	Button  ButtonID
	Pressed bool
	At      time.Time
}

// TextOptions describes a screen text draw.
type TextOptions struct {
	Content    string
	FontSize   int
	Color      string
	Background string
	Align      string
}

// Capabilities advertises optional backend features.
type Capabilities struct {
	Images     bool
	Brightness bool
}

// ScreenSize is the drawable area in pixels.
type ScreenSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Backend is the raw device contract. Implementations do pin or in-memory
// I/O only; they never publish events and never apply policy.
type Backend interface {
	Kind() BackendKind

	// Open acquires hardware handles. Close releases them; it is safe to
	// call Close on a backend that failed to open.
	Open(ctx context.Context) error
	Close() error

	// ReadSwitches samples all 8 switch bits atomically and returns the
	// assembled value in [0,255].
	ReadSwitches() (int, error)

	WriteLED(id LEDID, state LEDState) error

	// WriteDisplay writes the 7-segment display; nil blanks it.
	WriteDisplay(value *int) error

	DrawText(opts TextOptions) error
	ClearScreen(background string) error

	// Edges streams raw button transitions. The channel is owned by the
	// backend and closed by Close.
	Edges() <-chan ButtonEdge

	Capabilities() Capabilities
	ScreenSize() ScreenSize
}

// Publisher is the slice of the event bus the HAL needs.
type Publisher interface {
	Publish(eventType string, payload map[string]any, source string)
}
