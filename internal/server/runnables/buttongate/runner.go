// Package buttongate turns raw hardware button edges into the public button
// events. The Go button always passes (press only). A color button is a valid
// input only while its paired LED is lit; edges on unlit buttons are logged
// and dropped.
package buttongate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atlanticdynamic/boss/internal/events"
	"github.com/atlanticdynamic/boss/internal/hal"
	"github.com/atlanticdynamic/boss/internal/server/finitestate"
	"github.com/robbyt/go-supervisor/supervisor"
)

var (
	_ supervisor.Runnable  = (*Runner)(nil)
	_ supervisor.Stateable = (*Runner)(nil)
)

// LEDs is the slice of the HAL controller the gate needs: the last commanded
// LED states, readable without locking.
type LEDs interface {
	LEDOn(id hal.LEDID) bool
}

// Bus is the pub/sub surface the gate needs.
type Bus interface {
	Publish(eventType string, payload map[string]any, source string)
	Subscribe(eventType string, handler events.Handler, opts ...events.SubscribeOption) (events.SubscriptionID, error)
	Unsubscribe(id events.SubscriptionID)
}

// Runner gates raw edges into public button events.
type Runner struct {
	leds LEDs
	bus  Bus

	sub events.SubscriptionID

	logger *slog.Logger
	fsm    finitestate.Machine

	parentCtx context.Context
	runCancel context.CancelFunc
}

// NewRunner creates the button gate.
func NewRunner(leds LEDs, bus Bus, opts ...Option) (*Runner, error) {
	if leds == nil {
		return nil, ErrNilLEDs
	}
	if bus == nil {
		return nil, ErrNilBus
	}
	r := &Runner{
		leds:      leds,
		bus:       bus,
		logger:    slog.Default().WithGroup("buttongate.Runner"),
		parentCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(r)
	}

	fsm, err := finitestate.New(r.logger.WithGroup("fsm").Handler())
	if err != nil {
		return nil, fmt.Errorf("failed to create state machine: %w", err)
	}
	r.fsm = fsm
	return r, nil
}

// String implements the supervisor.Runnable interface.
func (r *Runner) String() string {
	return "buttongate.Runner"
}

// Run implements the supervisor.Runnable interface. The gate is entirely
// event-driven: it subscribes to raw edges and blocks until canceled.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.fsm.Transition(finitestate.StatusBooting); err != nil {
		return fmt.Errorf("failed to transition to booting state: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.runCancel = cancel

	sub, err := r.bus.Subscribe(events.TypeButtonEdge, r.handleEdge)
	if err != nil {
		if stateErr := r.fsm.Transition(finitestate.StatusError); stateErr != nil {
			r.logger.Error("Failed to transition to error state", "error", stateErr)
		}
		return fmt.Errorf("failed to subscribe to button edges: %w", err)
	}
	r.sub = sub

	if err := r.fsm.Transition(finitestate.StatusRunning); err != nil {
		return fmt.Errorf("failed to transition to running state: %w", err)
	}

	select {
	case <-runCtx.Done():
	case <-r.parentCtx.Done():
	}

	if r.fsm.GetState() != finitestate.StatusStopping {
		if err := r.fsm.Transition(finitestate.StatusStopping); err != nil {
			r.logger.Error("Failed to transition to stopping state", "error", err)
		}
	}

	r.bus.Unsubscribe(r.sub)

	if err := r.fsm.Transition(finitestate.StatusStopped); err != nil {
		return fmt.Errorf("failed to transition to stopped state: %w", err)
	}
	return nil
}

// Stop implements the supervisor.Runnable interface.
func (r *Runner) Stop() {
	r.logger.Debug("Stopping Runner")
	if err := r.fsm.TransitionIfCurrentState(finitestate.StatusRunning, finitestate.StatusStopping); err != nil {
		r.logger.Debug("State transition on stop", "error", err)
	}
	if r.runCancel != nil {
		r.runCancel()
	}
}

// handleEdge applies the gating rules to one raw edge event.
func (r *Runner) handleEdge(ev events.Event) {
	buttonName, _ := ev.Payload["button"].(string)
	edge, _ := ev.Payload["edge"].(string)
	button := hal.ButtonID(buttonName)
	if !button.Valid() {
		r.logger.Warn("Edge for unknown button", "button", buttonName)
		return
	}

	if button == hal.ButtonGo {
		// Go is always live; only the press matters.
		if edge == events.EdgePress {
			r.bus.Publish(events.TypeButtonPressed, events.ButtonPayload(string(button)), "buttongate")
		}
		return
	}

	if !r.leds.LEDOn(hal.LEDID(button)) {
		r.logger.Info("Button press ignored, LED not lit", "button", buttonName, "edge", edge)
		return
	}

	eventType := events.TypeButtonPressed
	if edge == events.EdgeRelease {
		eventType = events.TypeButtonReleased
	}
	r.bus.Publish(eventType, events.ButtonPayload(string(button)), "buttongate")
}
