package runner

import (
	"context"

	"github.com/atlanticdynamic/boss/internal/server/finitestate"
)

// GetState returns the current state of the Runner.
func (r *Runner) GetState() string {
	return r.fsm.GetState()
}

// GetStateChan returns a channel that emits state changes.
func (r *Runner) GetStateChan(ctx context.Context) <-chan string {
	return r.fsm.GetStateChan(ctx)
}

// IsRunning reports whether the Runner is accepting launches.
func (r *Runner) IsRunning() bool {
	return r.fsm.GetState() == finitestate.StatusRunning
}

// Leaked reports whether a previous app ignored its cancel signal; when true
// the Runner refuses every launch until process restart.
func (r *Runner) Leaked() bool {
	return r.leaked.Load()
}
