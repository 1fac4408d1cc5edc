// Package gpiohw implements the real-hardware backend on periph.io. The
// eight switches are read through a 3-to-8 multiplexer: three select lines
// are strobed through channels 0..7 and the shared input line is sampled for
// each, assembling one bit of the value per channel. Buttons are active-low
// with internal pull-ups; each has an edge goroutine that coalesces contact
// bounce at the source.
package gpiohw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/atlanticdynamic/boss/internal/hal"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// muxSettle is the delay between driving the select lines and sampling the
// input, per the multiplexer's propagation figure with margin.
const muxSettle = 10 * time.Microsecond

// bounceWindow drops button transitions shorter than this at the source.
const bounceWindow = 20 * time.Millisecond

// edgeBuffer bounds the raw edge channel shared by all button goroutines.
const edgeBuffer = 64

// PinConfig names every pin the board uses, using periph pin names
// ("GPIO17" etc.) from the hardware section of the config file.
type PinConfig struct {
	Buttons   map[hal.ButtonID]string
	LEDs      map[hal.LEDID]string
	MuxSelect [3]string
	MuxInput  string
	// DisplayCLK and DisplayDIO drive the TM1637 7-segment module.
	DisplayCLK string
	DisplayDIO string
}

// Validate checks that every required pin is named and no pin is assigned twice.
func (p PinConfig) Validate() error {
	var errz []error
	seen := map[string]string{}
	claim := func(role, name string) {
		if name == "" {
			errz = append(errz, fmt.Errorf("%w: %s", ErrMissingPin, role))
			return
		}
		if prev, dup := seen[name]; dup {
			errz = append(errz, fmt.Errorf("%w: %s used by %s and %s", ErrDuplicatePin, name, prev, role))
			return
		}
		seen[name] = role
	}

	for _, id := range append([]hal.ButtonID{hal.ButtonGo}, hal.ColorButtons...) {
		claim("button "+string(id), p.Buttons[id])
	}
	for _, id := range hal.AllLEDs {
		claim("led "+string(id), p.LEDs[id])
	}
	for i, name := range p.MuxSelect {
		claim(fmt.Sprintf("mux select %d", i), name)
	}
	claim("mux input", p.MuxInput)
	claim("display clk", p.DisplayCLK)
	claim("display dio", p.DisplayDIO)
	return errors.Join(errz...)
}

// Backend drives the real board.
type Backend struct {
	pins   PinConfig
	size   hal.ScreenSize
	logger *slog.Logger

	// screenOut receives rendered screen text. On the device this is the
	// console tied to the HDMI output.
	screenOut io.Writer

	mu      sync.Mutex
	open    bool
	buttons map[hal.ButtonID]gpio.PinIO
	leds    map[hal.LEDID]gpio.PinIO
	selects [3]gpio.PinIO
	muxIn   gpio.PinIO
	display *tm1637

	edges     chan hal.ButtonEdge
	edgeWG    sync.WaitGroup
	edgeCtx   context.Context
	edgeStop  context.CancelFunc
	muxLocked sync.Mutex
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogHandler sets a custom log handler for the Backend.
func WithLogHandler(handler slog.Handler) Option {
	return func(b *Backend) {
		b.logger = slog.New(handler).WithGroup("hal.gpiohw")
	}
}

// WithScreenWriter redirects screen text output, used by tests.
func WithScreenWriter(w io.Writer) Option {
	return func(b *Backend) {
		b.screenOut = w
	}
}

// New creates the GPIO backend. Pins are not acquired until Open.
func New(pins PinConfig, size hal.ScreenSize, opts ...Option) (*Backend, error) {
	if err := pins.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pin config: %w", err)
	}
	b := &Backend{
		pins:      pins,
		size:      size,
		logger:    slog.Default().WithGroup("hal.gpiohw"),
		screenOut: os.Stdout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Kind implements hal.Backend.
func (b *Backend) Kind() hal.BackendKind {
	return hal.BackendGPIO
}

// Open initializes the periph host and acquires every pin.
func (b *Backend) Open(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return nil
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init failed: %w", err)
	}

	byName := func(name string) (gpio.PinIO, error) {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPin, name)
		}
		return p, nil
	}

	b.buttons = make(map[hal.ButtonID]gpio.PinIO, len(b.pins.Buttons))
	for id, name := range b.pins.Buttons {
		p, err := byName(name)
		if err != nil {
			return err
		}
		if err := p.In(gpio.PullUp, gpio.BothEdges); err != nil {
			return fmt.Errorf("failed to configure button pin %s: %w", name, err)
		}
		b.buttons[id] = p
	}

	b.leds = make(map[hal.LEDID]gpio.PinIO, len(b.pins.LEDs))
	for id, name := range b.pins.LEDs {
		p, err := byName(name)
		if err != nil {
			return err
		}
		if err := p.Out(gpio.Low); err != nil {
			return fmt.Errorf("failed to configure led pin %s: %w", name, err)
		}
		b.leds[id] = p
	}

	for i, name := range b.pins.MuxSelect {
		p, err := byName(name)
		if err != nil {
			return err
		}
		if err := p.Out(gpio.Low); err != nil {
			return fmt.Errorf("failed to configure mux select pin %s: %w", name, err)
		}
		b.selects[i] = p
	}

	muxIn, err := byName(b.pins.MuxInput)
	if err != nil {
		return err
	}
	if err := muxIn.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return fmt.Errorf("failed to configure mux input pin: %w", err)
	}
	b.muxIn = muxIn

	clk, err := byName(b.pins.DisplayCLK)
	if err != nil {
		return err
	}
	dio, err := byName(b.pins.DisplayDIO)
	if err != nil {
		return err
	}
	b.display = newTM1637(clk, dio)
	if err := b.display.init(); err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}

	b.edges = make(chan hal.ButtonEdge, edgeBuffer)
	b.edgeCtx, b.edgeStop = context.WithCancel(ctx)
	for id, pin := range b.buttons {
		b.edgeWG.Add(1)
		go b.watchButton(id, pin)
	}

	b.open = true
	b.logger.Info("GPIO backend open", "buttons", len(b.buttons), "leds", len(b.leds))
	return nil
}

// Close releases pins and stops the edge goroutines.
func (b *Backend) Close() error {
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		return nil
	}
	b.open = false
	b.edgeStop()
	b.mu.Unlock()

	// Halt() unblocks WaitForEdge so the watchers can observe cancellation.
	for _, pin := range b.buttons {
		_ = pin.Halt()
	}
	b.edgeWG.Wait()
	close(b.edges)

	for _, pin := range b.leds {
		_ = pin.Out(gpio.Low)
	}
	if b.display != nil {
		_ = b.display.blank()
	}
	return nil
}

// watchButton converts pin edges into ButtonEdge values, dropping transitions
// shorter than the bounce window.
func (b *Backend) watchButton(id hal.ButtonID, pin gpio.PinIO) {
	defer b.edgeWG.Done()

	// Pull-up wiring: pressed reads Low.
	last := pin.Read() == gpio.Low
	lastAt := time.Now()

	for {
		if b.edgeCtx.Err() != nil {
			return
		}
		if !pin.WaitForEdge(time.Second) {
			continue
		}
		pressed := pin.Read() == gpio.Low
		now := time.Now()
		if pressed == last {
			continue
		}
		if now.Sub(lastAt) < bounceWindow {
			continue
		}
		last = pressed
		lastAt = now

		select {
		case b.edges <- hal.ButtonEdge{Button: id, Pressed: pressed, At: now}:
		default:
			b.logger.Warn("Edge buffer full, dropping edge", "button", id)
		}
	}
}

// ReadSwitches strobes the mux select lines through channels 0..7 and samples
// the shared input for each, assembling bit i from channel i.
func (b *Backend) ReadSwitches() (int, error) {
	b.mu.Lock()
	if !b.open {
		b.mu.Unlock()
		return 0, hal.ErrNotOpen
	}
	b.mu.Unlock()

	b.muxLocked.Lock()
	defer b.muxLocked.Unlock()

	value := 0
	for ch := 0; ch < 8; ch++ {
		for bit := 0; bit < 3; bit++ {
			level := gpio.Low
			if ch>>bit&1 == 1 {
				level = gpio.High
			}
			if err := b.selects[bit].Out(level); err != nil {
				return 0, fmt.Errorf("failed to drive mux select %d: %w", bit, err)
			}
		}
		time.Sleep(muxSettle)
		if b.muxIn.Read() == gpio.High {
			value |= 1 << ch
		}
	}
	return value, nil
}

// WriteLED implements hal.Backend. Without PWM the brightness is a simple
// threshold: anything at or above half is full on.
func (b *Backend) WriteLED(id hal.LEDID, state hal.LEDState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return hal.ErrNotOpen
	}
	pin, ok := b.leds[id]
	if !ok {
		return fmt.Errorf("%w: %q", hal.ErrUnknownLED, id)
	}
	level := gpio.Low
	if state.On && state.Brightness >= 0.5 {
		level = gpio.High
	}
	return pin.Out(level)
}

// WriteDisplay implements hal.Backend.
func (b *Backend) WriteDisplay(value *int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return hal.ErrNotOpen
	}
	if value == nil {
		return b.display.blank()
	}
	return b.display.showNumber(*value)
}

// DrawText implements hal.Backend. The HDMI screen is driven through the
// console; this clears and rewrites it with the requested content.
func (b *Backend) DrawText(opts hal.TextOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return hal.ErrNotOpen
	}
	_, err := fmt.Fprintf(b.screenOut, "\033[2J\033[H%s\n", opts.Content)
	return err
}

// ClearScreen implements hal.Backend.
func (b *Backend) ClearScreen(_ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return hal.ErrNotOpen
	}
	_, err := fmt.Fprint(b.screenOut, "\033[2J\033[H")
	return err
}

// Edges implements hal.Backend.
func (b *Backend) Edges() <-chan hal.ButtonEdge {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.edges
}

// Capabilities implements hal.Backend. No PWM wiring, so no brightness; no
// image rendering on the console screen.
func (b *Backend) Capabilities() hal.Capabilities {
	return hal.Capabilities{Images: false, Brightness: false}
}

// ScreenSize implements hal.Backend.
func (b *Backend) ScreenSize() hal.ScreenSize {
	return b.size
}

var _ hal.Backend = (*Backend)(nil)
