// Package virtual implements the two in-memory hardware backends: the mock
// used by tests and the emulator driven by the web debug surface. Both share
// one implementation, so their observable behavior is identical by
// construction; only the reported backend kind differs.
package virtual

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atlanticdynamic/boss/internal/hal"
)

// edgeBuffer is the capacity of the raw edge channel. Synthetic edges arrive
// at human speed; the buffer only papers over scheduling jitter.
const edgeBuffer = 64

// Device is an in-memory hal.Backend.
type Device struct {
	kind hal.BackendKind
	size hal.ScreenSize

	mu       sync.Mutex
	open     bool
	switches int
	pressed  map[hal.ButtonID]bool
	leds     map[hal.LEDID]hal.LEDState
	display  *int
	edges    chan hal.ButtonEdge
}

// NewMock creates the in-memory backend used by tests.
func NewMock(size hal.ScreenSize) *Device {
	return newDevice(hal.BackendMock, size)
}

// NewEmulator creates the backend driven by the web debug surface.
func NewEmulator(size hal.ScreenSize) *Device {
	return newDevice(hal.BackendEmulator, size)
}

func newDevice(kind hal.BackendKind, size hal.ScreenSize) *Device {
	if size.Width <= 0 || size.Height <= 0 {
		size = hal.ScreenSize{Width: 800, Height: 480}
	}
	return &Device{
		kind:    kind,
		size:    size,
		pressed: make(map[hal.ButtonID]bool),
		leds:    make(map[hal.LEDID]hal.LEDState),
	}
}

// Kind implements hal.Backend.
func (d *Device) Kind() hal.BackendKind {
	return d.kind
}

// Open implements hal.Backend.
func (d *Device) Open(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return nil
	}
	d.edges = make(chan hal.ButtonEdge, edgeBuffer)
	d.open = true
	return nil
}

// Close implements hal.Backend.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil
	}
	d.open = false
	close(d.edges)
	return nil
}

// ReadSwitches implements hal.Backend.
func (d *Device) ReadSwitches() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return 0, hal.ErrNotOpen
	}
	return d.switches, nil
}

// SetSwitches injects a new 8-bit switch value, as if the user flipped the
// toggles.
func (d *Device) SetSwitches(value int) error {
	if value < 0 || value > 255 {
		return fmt.Errorf("switch value %d out of range [0,255]", value)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return hal.ErrNotOpen
	}
	d.switches = value
	return nil
}

// PressButton injects a press edge. A press on an already-held button is
// ignored, matching contact behavior on the real board.
func (d *Device) PressButton(id hal.ButtonID) error {
	return d.injectEdge(id, true)
}

// ReleaseButton injects a release edge.
func (d *Device) ReleaseButton(id hal.ButtonID) error {
	return d.injectEdge(id, false)
}

func (d *Device) injectEdge(id hal.ButtonID, pressed bool) error {
	if !id.Valid() {
		return fmt.Errorf("unknown button %q", id)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return hal.ErrNotOpen
	}
	if d.pressed[id] == pressed {
		return nil
	}
	d.pressed[id] = pressed

	edge := hal.ButtonEdge{Button: id, Pressed: pressed, At: time.Now()}
	select {
	case d.edges <- edge:
	default:
		// Nothing is pumping edges; shed rather than block the injector.
	}
	return nil
}

// WriteLED implements hal.Backend.
func (d *Device) WriteLED(id hal.LEDID, state hal.LEDState) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return hal.ErrNotOpen
	}
	d.leds[id] = state
	return nil
}

// LED returns the last written state of one LED.
func (d *Device) LED(id hal.LEDID) hal.LEDState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.leds[id]
}

// WriteDisplay implements hal.Backend.
func (d *Device) WriteDisplay(value *int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return hal.ErrNotOpen
	}
	if value == nil {
		d.display = nil
	} else {
		v := *value
		d.display = &v
	}
	return nil
}

// Display returns the last written display value, nil when blanked.
func (d *Device) Display() *int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.display == nil {
		return nil
	}
	v := *d.display
	return &v
}

// DrawText implements hal.Backend. The virtual screen only records state;
// rendering happens in the browser control panel.
func (d *Device) DrawText(_ hal.TextOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return hal.ErrNotOpen
	}
	return nil
}

// ClearScreen implements hal.Backend.
func (d *Device) ClearScreen(_ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return hal.ErrNotOpen
	}
	return nil
}

// Edges implements hal.Backend.
func (d *Device) Edges() <-chan hal.ButtonEdge {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.edges
}

// Capabilities implements hal.Backend.
func (d *Device) Capabilities() hal.Capabilities {
	return hal.Capabilities{Images: false, Brightness: true}
}

// ScreenSize implements hal.Backend.
func (d *Device) ScreenSize() hal.ScreenSize {
	return d.size
}

var _ hal.Backend = (*Device)(nil)
