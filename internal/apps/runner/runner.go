// Package runner owns the one live mini-app. It launches entry points in
// their own goroutine with a cancel context, enforces the per-app timeout and
// its post-timeout policy, and publishes the app lifecycle events. Cooperative
// cancellation is the only termination mechanism Go offers; a goroutine that
// ignores its context is treated as a leaked resource and the runner refuses
// further launches until restart.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atlanticdynamic/boss/internal/apps/appapi"
	"github.com/atlanticdynamic/boss/internal/apps/manifest"
	"github.com/atlanticdynamic/boss/internal/events"
	"github.com/atlanticdynamic/boss/internal/hal"
	"github.com/atlanticdynamic/boss/internal/server/finitestate"
	"github.com/robbyt/go-supervisor/supervisor"
)

var (
	_ supervisor.Runnable  = (*Runner)(nil)
	_ supervisor.Stateable = (*Runner)(nil)
)

// Stop reasons carried in system.app.stopped payloads.
const (
	ReasonNormal   = "normal"
	ReasonTimeout  = "timeout"
	ReasonError    = "error"
	ReasonUserStop = "user_stop"
	ReasonShutdown = "shutdown"
)

// DefaultGrace is how long a canceled app gets to return before it is
// declared leaked.
const DefaultGrace = 2 * time.Second

// StartupSwitchValue is stamped on runs not launched via the switches.
const StartupSwitchValue = -1

// Entrypoints resolves a manifest name to its statically registered entry
// point.
type Entrypoints interface {
	Lookup(appName string) (appapi.EntryPoint, bool)
}

// StartupResolver returns the manifest of the designated startup app, used
// after a return-timeout.
type StartupResolver func() (*manifest.Manifest, error)

// appRun is the live record of one launched app.
type appRun struct {
	manifest    *manifest.Manifest
	generation  uint64
	switchValue int
	api         *appapi.API

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	timer  *time.Timer

	stopOnce sync.Once
	// reason is written once inside stopOnce before cancel fires, so the
	// app goroutine reads it only after done is determined.
	reason atomic.Value
}

// requestStop records the stop reason and fires the cancel signal. The first
// caller wins; the cancel signal is idempotent.
func (run *appRun) requestStop(reason string) {
	run.stopOnce.Do(func() {
		run.reason.Store(reason)
		if run.timer != nil {
			run.timer.Stop()
		}
		run.cancel()
	})
}

func (run *appRun) stopReason() (string, bool) {
	v := run.reason.Load()
	if v == nil {
		return "", false
	}
	return v.(string), true
}

// Runner launches and stops mini-apps, one at a time.
type Runner struct {
	hw          *hal.Controller
	bus         appapi.EventBus
	entrypoints Entrypoints
	startup     StartupResolver
	grace       time.Duration

	// launchMu serializes the whole stop-then-start sequence in Launch. The
	// rerun timer, the return-to-startup path, and the Go-press handler can
	// all call Launch concurrently; mu alone only guards the current pointer
	// and is released between the stop and the new assignment.
	launchMu sync.Mutex

	mu         sync.Mutex
	current    *appRun
	generation atomic.Uint64
	leaked     atomic.Bool

	logger *slog.Logger
	fsm    finitestate.Machine

	parentCtx context.Context
	runCtx    context.Context
	runCancel context.CancelFunc
}

// NewRunner creates the app runner.
func NewRunner(hw *hal.Controller, bus appapi.EventBus, entrypoints Entrypoints, startup StartupResolver, opts ...Option) (*Runner, error) {
	if entrypoints == nil {
		return nil, ErrNilEntrypoints
	}
	r := &Runner{
		hw:          hw,
		bus:         bus,
		entrypoints: entrypoints,
		startup:     startup,
		grace:       DefaultGrace,
		logger:      slog.Default().WithGroup("apprunner.Runner"),
		parentCtx:   context.Background(),
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
	return "apprunner.Runner"
}

// Run implements the supervisor.Runnable interface. The runner itself is
// event-driven; Run just anchors the lifetime of launched apps.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.fsm.Transition(finitestate.StatusBooting); err != nil {
		return fmt.Errorf("failed to transition to booting state: %w", err)
	}

	r.mu.Lock()
	r.runCtx, r.runCancel = context.WithCancel(ctx)
	r.mu.Unlock()

	if err := r.fsm.Transition(finitestate.StatusRunning); err != nil {
		return fmt.Errorf("failed to transition to running state: %w", err)
	}

	select {
	case <-r.runCtx.Done():
	case <-r.parentCtx.Done():
	}

	if r.fsm.GetState() != finitestate.StatusStopping {
		if err := r.fsm.Transition(finitestate.StatusStopping); err != nil {
			r.logger.Error("Failed to transition to stopping state", "error", err)
		}
	}

	r.stopCurrent(ReasonShutdown)

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
	r.mu.Lock()
	cancel := r.runCancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Launch starts a mini-app. Any running app is stopped first with
// reason=user_stop and a bounded wait. switchValue is stamped on the
// lifecycle events; pass StartupSwitchValue for runs not selected via the
// switches.
func (r *Runner) Launch(m *manifest.Manifest, switchValue int) error {
	if m == nil {
		return ErrNilManifest
	}

	r.launchMu.Lock()
	defer r.launchMu.Unlock()

	if r.leaked.Load() {
		r.publishSystemError("app_leaked",
			fmt.Sprintf("refusing to launch %q: a previous app ignored its cancel signal", m.Name))
		return ErrRunnerLeaked
	}
	if !r.IsRunning() {
		return ErrRunnerStopped
	}

	entry, ok := r.entrypoints.Lookup(m.Name)
	if !ok {
		r.publishSystemError("no_entrypoint",
			fmt.Sprintf("app %q has no registered entry point", m.Name))
		return fmt.Errorf("%w: %q", ErrNoEntrypoint, m.Name)
	}

	r.stopCurrent(ReasonUserStop)
	if r.leaked.Load() {
		return ErrRunnerLeaked
	}

	r.mu.Lock()
	runCtx := r.runCtx
	r.mu.Unlock()
	if runCtx == nil || runCtx.Err() != nil {
		return ErrRunnerStopped
	}

	appCtx, cancel := context.WithCancel(runCtx)
	run := &appRun{
		manifest:    m,
		generation:  r.generation.Add(1),
		switchValue: switchValue,
		ctx:         appCtx,
		cancel:      cancel,
		done:        make(chan struct{}),
		api:         appapi.New(m.Name, m.Dir, m.RequiredEnv, r.hw, r.bus, r.logger.Handler()),
	}

	timeout := time.Duration(m.TimeoutSeconds) * time.Second
	run.timer = time.AfterFunc(timeout, func() {
		r.handleTimeout(run)
	})

	r.mu.Lock()
	r.current = run
	r.mu.Unlock()

	r.logger.Info("Launching app",
		"app", m.Name, "generation", run.generation,
		"switch_value", switchValue, "timeout", timeout, "behavior", m.TimeoutBehavior)
	r.bus.Publish(events.TypeAppStarted,
		events.AppStartedPayload(m.Name, switchValue), "apprunner")

	go r.runApp(run, entry)
	return nil
}

// runApp executes the entry point and publishes the terminal lifecycle
// events. It is the only writer of system.app.stopped for this generation.
func (r *Runner) runApp(run *appRun, entry appapi.EntryPoint) {
	var appErr error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				appErr = fmt.Errorf("panic: %v", rec)
				r.logger.Error("App panicked",
					"app", run.manifest.Name, "generation", run.generation,
					"panic", rec, "stack", string(debug.Stack()))
			}
		}()
		appErr = entry(run.ctx, run.api)
	}()

	run.api.Close()
	run.requestStop(terminalReason(appErr))
	reason, _ := run.stopReason()

	if reason == ReasonError && appErr != nil {
		r.bus.Publish(events.TypeAppError,
			events.AppErrorPayload(run.manifest.Name, appErr.Error()), "apprunner")
	}

	r.logger.Info("App stopped",
		"app", run.manifest.Name, "generation", run.generation, "reason", reason)
	r.bus.Publish(events.TypeAppStopped,
		events.AppStoppedPayload(run.manifest.Name, run.switchValue, reason), "apprunner")

	r.mu.Lock()
	if r.current == run {
		r.current = nil
	}
	r.mu.Unlock()
	close(run.done)

	if reason == ReasonTimeout {
		r.afterTimeout(run)
	}
}

// terminalReason maps an entry point result to a stop reason when no stop was
// requested externally.
func terminalReason(appErr error) string {
	if appErr != nil {
		return ReasonError
	}
	return ReasonNormal
}

// handleTimeout fires when a run exceeds its timeout_seconds.
func (r *Runner) handleTimeout(run *appRun) {
	r.mu.Lock()
	live := r.current == run
	r.mu.Unlock()
	if !live {
		return
	}

	behavior := run.manifest.TimeoutBehavior
	r.logger.Warn("App timeout",
		"app", run.manifest.Name, "generation", run.generation, "behavior", behavior)

	if behavior == manifest.BehaviorNone {
		// The app keeps running; it still honors cancel on the next Go press.
		return
	}
	run.requestStop(ReasonTimeout)
	r.waitOrLeak(run)
}

// afterTimeout applies the post-timeout policy once the stopped event is out.
func (r *Runner) afterTimeout(run *appRun) {
	switch run.manifest.TimeoutBehavior {
	case manifest.BehaviorRerun:
		cooldown := time.Duration(run.manifest.TimeoutCooldownSeconds) * time.Second
		r.logger.Info("Rerunning app after cooldown",
			"app", run.manifest.Name, "cooldown", cooldown)
		time.AfterFunc(cooldown, func() {
			if !r.IsRunning() || r.hasCurrent() {
				return
			}
			if err := r.Launch(run.manifest, run.switchValue); err != nil {
				r.logger.Error("Rerun failed", "app", run.manifest.Name, "error", err)
			}
		})
	case manifest.BehaviorReturn:
		if r.startup == nil {
			return
		}
		m, err := r.startup()
		if err != nil {
			r.logger.Error("Startup app unavailable after timeout", "error", err)
			return
		}
		if !r.IsRunning() || r.hasCurrent() {
			return
		}
		if err := r.Launch(m, StartupSwitchValue); err != nil {
			r.logger.Error("Failed to return to startup app", "error", err)
		}
	}
}

// stopCurrent requests a stop and waits up to the grace period.
func (r *Runner) stopCurrent(reason string) {
	r.mu.Lock()
	run := r.current
	r.mu.Unlock()
	if run == nil {
		return
	}
	run.requestStop(reason)
	r.waitOrLeak(run)
}

// waitOrLeak blocks until the app goroutine finishes or the grace period
// expires. There is no way to kill a goroutine; an app that outlives its
// grace is a leaked resource and poisons the runner until restart.
func (r *Runner) waitOrLeak(run *appRun) {
	select {
	case <-run.done:
	case <-time.After(r.grace):
		r.leaked.Store(true)
		r.logger.Error("App ignored cancel signal, runner poisoned until restart",
			"app", run.manifest.Name, "generation", run.generation)
		r.publishSystemError("app_leaked",
			fmt.Sprintf("app %q did not stop within %s", run.manifest.Name, r.grace))
	}
}

func (r *Runner) hasCurrent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}

// CurrentApp returns the name of the running app, or "" when idle.
func (r *Runner) CurrentApp() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ""
	}
	return r.current.manifest.Name
}

func (r *Runner) publishSystemError(code, message string) {
	r.bus.Publish(events.TypeSystemError, events.SystemErrorPayload(code, message), "apprunner")
}
