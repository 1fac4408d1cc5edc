// Package switchmon polls the 8-bit toggle switches, debounces the readings,
// mirrors the committed value onto the 7-segment display, and publishes
// input.switch.changed events. The display write happens before the event so
// any observer of the event already sees the display agreeing with it.
package switchmon

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/atlanticdynamic/boss/internal/events"
	"github.com/atlanticdynamic/boss/internal/server/finitestate"
	"github.com/robbyt/go-supervisor/supervisor"
)

var (
	_ supervisor.Runnable  = (*Runner)(nil)
	_ supervisor.Stateable = (*Runner)(nil)
)

// DefaultSamplePeriod is the polling interval. Two identical consecutive
// samples commit a value, so a flip settles in roughly two periods.
const DefaultSamplePeriod = 20 * time.Millisecond

// commitSamples is how many identical consecutive readings a new value needs
// before it is committed.
const commitSamples = 2

// readFailureThreshold is how many consecutive read errors trigger a
// system.error event.
const readFailureThreshold = 3

// Hardware is the slice of the HAL controller the monitor needs.
type Hardware interface {
	ReadSwitches() (int, error)
	SetDisplay(value *int) error
}

// Publisher is the bus surface the monitor needs.
type Publisher interface {
	Publish(eventType string, payload map[string]any, source string)
}

// Runner polls and debounces the switch bank.
type Runner struct {
	hw     Hardware
	bus    Publisher
	period time.Duration

	// committed is the last published value, or -1 before the first read.
	committed atomic.Int64

	logger *slog.Logger
	fsm    finitestate.Machine

	parentCtx context.Context
	runCancel context.CancelFunc
}

// NewRunner creates the switch monitor.
func NewRunner(hw Hardware, bus Publisher, opts ...Option) (*Runner, error) {
	if hw == nil {
		return nil, ErrNilHardware
	}
	r := &Runner{
		hw:        hw,
		bus:       bus,
		period:    DefaultSamplePeriod,
		logger:    slog.Default().WithGroup("switchmon.Runner"),
		parentCtx: context.Background(),
	}
	r.committed.Store(-1)
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
	return "switchmon.Runner"
}

// Run implements the supervisor.Runnable interface. It polls until the
// context is canceled, stopping within one sample period.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.fsm.Transition(finitestate.StatusBooting); err != nil {
		return fmt.Errorf("failed to transition to booting state: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.runCancel = cancel

	if err := r.fsm.Transition(finitestate.StatusRunning); err != nil {
		return fmt.Errorf("failed to transition to running state: %w", err)
	}
	r.logger.Debug("Switch monitor started", "period", r.period)

	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	var (
		candidate      int
		candidateCount int
		readFailures   int
	)

poll:
	for {
		select {
		case <-runCtx.Done():
			break poll
		case <-r.parentCtx.Done():
			break poll
		case <-ticker.C:
		}

		sample, err := r.hw.ReadSwitches()
		if err != nil {
			readFailures++
			r.logger.Warn("Switch read failed", "error", err, "consecutive", readFailures)
			if readFailures == readFailureThreshold && r.bus != nil {
				r.bus.Publish(events.TypeSystemError, events.SystemErrorPayload("hardware_read",
					fmt.Sprintf("switch read failed %d times: %v", readFailures, err)), "switchmon")
			}
			continue
		}
		readFailures = 0

		committed := int(r.committed.Load())
		if sample == committed {
			candidateCount = 0
			continue
		}

		if committed < 0 {
			// First reading seeds the display without a change event: nothing
			// changed, the appliance just learned where the switches sit.
			r.commit(committed, sample, false)
			continue
		}

		if sample == candidate && candidateCount > 0 {
			candidateCount++
		} else {
			candidate = sample
			candidateCount = 1
		}
		if candidateCount >= commitSamples {
			candidateCount = 0
			r.commit(committed, sample, true)
		}
	}

	if r.fsm.GetState() != finitestate.StatusStopping {
		if err := r.fsm.Transition(finitestate.StatusStopping); err != nil {
			r.logger.Error("Failed to transition to stopping state", "error", err)
		}
	}
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

// commit mirrors a stable value onto the display and, when publish is set,
// emits the change event. Display first, then event.
func (r *Runner) commit(oldValue, newValue int, publish bool) {
	if err := r.hw.SetDisplay(&newValue); err != nil {
		r.logger.Error("Display write failed", "value", newValue, "error", err)
	}
	r.committed.Store(int64(newValue))
	if publish && r.bus != nil {
		r.bus.Publish(events.TypeSwitchChanged,
			events.SwitchChangedPayload(oldValue, newValue), "switchmon")
	}
	r.logger.Debug("Switch value committed", "old", oldValue, "new", newValue)
}

// Current returns the last committed switch value, or -1 before the first
// successful read. The orchestrator uses this to resolve a Go press.
func (r *Runner) Current() int {
	return int(r.committed.Load())
}
