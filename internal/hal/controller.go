package hal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/atlanticdynamic/boss/internal/events"
	"github.com/atlanticdynamic/boss/internal/server/finitestate"
	"github.com/robbyt/go-supervisor/supervisor"
)

var (
	_ supervisor.Runnable  = (*Controller)(nil)
	_ supervisor.Stateable = (*Controller)(nil)
)

// Controller mediates all hardware access. It serializes writes to the
// backend, tracks the last commanded LED/display/screen state, and publishes
// the canonical output events. Raw button edges from the backend are pumped
// onto the bus for the gate to pick up.
type Controller struct {
	backend Backend
	bus     Publisher
	source  string

	// writeMu serializes backend writes so LED commands from one caller are
	// applied in call order.
	writeMu sync.Mutex

	// ledState holds an immutable map snapshot, readable without locking.
	ledState atomic.Pointer[map[LEDID]LEDState]

	// display holds the last written display value; nil means blanked.
	display atomic.Pointer[displayValue]

	// screen holds the last screen content descriptor.
	screen atomic.Pointer[ScreenContent]

	logger *slog.Logger
	fsm    finitestate.Machine

	parentCtx context.Context
	runCancel context.CancelFunc
}

type displayValue struct {
	value *int
}

// ScreenContent is the last thing drawn to the main screen, kept for debug
// snapshots.
type ScreenContent struct {
	ContentType string         `json:"content_type"`
	Content     string         `json:"content"`
	Options     map[string]any `json:"options"`
}

// NewController wraps a backend. The bus may be nil only in tests that do
// not observe events.
func NewController(backend Backend, bus Publisher, opts ...ControllerOption) (*Controller, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	c := &Controller{
		backend:   backend,
		bus:       bus,
		source:    "hal:" + string(backend.Kind()),
		logger:    slog.Default().WithGroup("hal.Controller"),
		parentCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}

	initial := make(map[LEDID]LEDState, len(AllLEDs))
	for _, id := range AllLEDs {
		initial[id] = LEDState{}
	}
	c.ledState.Store(&initial)
	c.display.Store(&displayValue{})
	c.screen.Store(&ScreenContent{ContentType: events.ScreenContentClear, Options: map[string]any{}})

	fsm, err := finitestate.New(c.logger.WithGroup("fsm").Handler())
	if err != nil {
		return nil, fmt.Errorf("failed to create state machine: %w", err)
	}
	c.fsm = fsm
	return c, nil
}

// String implements the supervisor.Runnable interface.
func (c *Controller) String() string {
	return fmt.Sprintf("hal.Controller[%s]", c.backend.Kind())
}

// Run opens the backend and pumps raw button edges onto the bus until the
// context is canceled.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.fsm.Transition(finitestate.StatusBooting); err != nil {
		return fmt.Errorf("failed to transition to booting state: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.runCancel = cancel

	if err := c.backend.Open(runCtx); err != nil {
		if stateErr := c.fsm.Transition(finitestate.StatusError); stateErr != nil {
			c.logger.Error("Failed to transition to error state", "error", stateErr)
		}
		return fmt.Errorf("failed to open %s backend: %w", c.backend.Kind(), err)
	}

	if err := c.fsm.Transition(finitestate.StatusRunning); err != nil {
		return fmt.Errorf("failed to transition to running state: %w", err)
	}
	c.logger.Info("Hardware backend open", "kind", c.backend.Kind())

	edges := c.backend.Edges()
pump:
	for {
		select {
		case edge, ok := <-edges:
			if !ok {
				break pump
			}
			c.publishEdge(edge)
		case <-runCtx.Done():
			break pump
		case <-c.parentCtx.Done():
			break pump
		}
	}

	if c.fsm.GetState() != finitestate.StatusStopping {
		if err := c.fsm.Transition(finitestate.StatusStopping); err != nil {
			c.logger.Error("Failed to transition to stopping state", "error", err)
		}
	}

	if err := c.backend.Close(); err != nil {
		c.logger.Error("Failed to close backend", "error", err)
	}

	if err := c.fsm.Transition(finitestate.StatusStopped); err != nil {
		return fmt.Errorf("failed to transition to stopped state: %w", err)
	}
	return nil
}

// Stop implements the supervisor.Runnable interface.
func (c *Controller) Stop() {
	c.logger.Debug("Stopping Controller")
	if err := c.fsm.TransitionIfCurrentState(finitestate.StatusRunning, finitestate.StatusStopping); err != nil {
		c.logger.Debug("State transition on stop", "error", err)
	}
	if c.runCancel != nil {
		c.runCancel()
	}
}

func (c *Controller) publishEdge(edge ButtonEdge) {
	direction := events.EdgeRelease
	if edge.Pressed {
		direction = events.EdgePress
	}
	c.publish(events.TypeButtonEdge, events.ButtonEdgePayload(string(edge.Button), direction))
}

func (c *Controller) publish(eventType string, payload map[string]any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventType, payload, c.source)
}

// ReadSwitches samples the 8-bit switch value.
func (c *Controller) ReadSwitches() (int, error) {
	return c.backend.ReadSwitches()
}

// SetLED applies a LED state. Writes are idempotent: commanding the state the
// LED is already in performs no I/O and emits no event. Brightness-only
// changes do emit output.led.state_changed.
func (c *Controller) SetLED(id LEDID, state LEDState) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownLED, id)
	}
	state.Brightness = clamp01(state.Brightness)
	if !state.On {
		state.Brightness = 0
	} else if state.Brightness == 0 {
		state.Brightness = 1
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	current := (*c.ledState.Load())[id]
	if current == state {
		return nil
	}

	if err := c.backend.WriteLED(id, state); err != nil {
		c.publish(events.TypeSystemError, events.SystemErrorPayload("hardware_write",
			fmt.Sprintf("led %s write failed: %v", id, err)))
		return fmt.Errorf("failed to write LED %s: %w", id, err)
	}

	old := *c.ledState.Load()
	next := make(map[LEDID]LEDState, len(old))
	for k, v := range old {
		next[k] = v
	}
	next[id] = state
	c.ledState.Store(&next)

	c.publish(events.TypeLEDStateChanged, events.LEDStatePayload(string(id), state.On, state.Brightness))
	return nil
}

// LEDSnapshot returns the last commanded state of every LED without locking.
func (c *Controller) LEDSnapshot() map[LEDID]LEDState {
	snap := *c.ledState.Load()
	out := make(map[LEDID]LEDState, len(snap))
	for k, v := range snap {
		out[k] = v
	}
	return out
}

// LEDOn reports whether the LED paired with the given color button is lit.
func (c *Controller) LEDOn(id LEDID) bool {
	return (*c.ledState.Load())[id].On
}

// SetDisplay writes the 7-segment display; nil blanks it. The system owns
// the display, so this is not reachable from the mini-app API.
func (c *Controller) SetDisplay(value *int) error {
	if value != nil && (*value < 0 || *value > 255) {
		return fmt.Errorf("%w: %d", ErrDisplayRange, *value)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.backend.WriteDisplay(value); err != nil {
		c.publish(events.TypeSystemError, events.SystemErrorPayload("hardware_write",
			fmt.Sprintf("display write failed: %v", err)))
		return fmt.Errorf("failed to write display: %w", err)
	}
	c.display.Store(&displayValue{value: copyIntPtr(value)})
	c.publish(events.TypeDisplayUpdated, events.DisplayPayload(value))
	return nil
}

// DisplayValue returns the last written display value, nil when blanked.
func (c *Controller) DisplayValue() *int {
	return copyIntPtr(c.display.Load().value)
}

// DrawText renders text on the main screen.
func (c *Controller) DrawText(opts TextOptions) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.backend.DrawText(opts); err != nil {
		c.publish(events.TypeSystemError, events.SystemErrorPayload("hardware_write",
			fmt.Sprintf("screen draw failed: %v", err)))
		return fmt.Errorf("failed to draw text: %w", err)
	}

	options := map[string]any{
		"font_size":  opts.FontSize,
		"color":      opts.Color,
		"background": opts.Background,
		"align":      opts.Align,
	}
	content := &ScreenContent{
		ContentType: events.ScreenContentText,
		Content:     opts.Content,
		Options:     options,
	}
	c.screen.Store(content)
	c.publish(events.TypeScreenUpdated, events.ScreenPayload(events.ScreenContentText, opts.Content, options))
	return nil
}

// ClearScreen blanks the main screen to the given background color.
func (c *Controller) ClearScreen(background string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.backend.ClearScreen(background); err != nil {
		c.publish(events.TypeSystemError, events.SystemErrorPayload("hardware_write",
			fmt.Sprintf("screen clear failed: %v", err)))
		return fmt.Errorf("failed to clear screen: %w", err)
	}

	options := map[string]any{"background": background}
	c.screen.Store(&ScreenContent{ContentType: events.ScreenContentClear, Options: options})
	c.publish(events.TypeScreenUpdated, events.ScreenPayload(events.ScreenContentClear, "", options))
	return nil
}

// Screen returns the last screen content descriptor.
func (c *Controller) Screen() ScreenContent {
	return *c.screen.Load()
}

// Capabilities reports the optional features of the active backend.
func (c *Controller) Capabilities() Capabilities {
	return c.backend.Capabilities()
}

// ScreenSize reports the drawable screen area.
func (c *Controller) ScreenSize() ScreenSize {
	return c.backend.ScreenSize()
}

// Kind reports which backend is active.
func (c *Controller) Kind() BackendKind {
	return c.backend.Kind()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func copyIntPtr(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
