// Package emuweb hosts the emulator debug surface: a loopback HTTP server
// with REST endpoints that inject virtual hardware actions, a state snapshot
// endpoint, a WebSocket feed mirroring the event bus, and the static control
// panel. It runs only when the emulator backend is active.
package emuweb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atlanticdynamic/boss/internal/events"
	"github.com/atlanticdynamic/boss/internal/hal"
	"github.com/atlanticdynamic/boss/internal/hal/virtual"
	"github.com/robbyt/go-supervisor/runnables/httpserver"
	"github.com/robbyt/go-supervisor/supervisor"
)

var (
	_ supervisor.Runnable  = (*Runner)(nil)
	_ supervisor.Stateable = (*Runner)(nil)
)

// forwardedEvents are the bus event types mirrored to WebSocket clients. Raw
// hal edges stay internal; the panel sees only the public taxonomy.
var forwardedEvents = []string{
	events.TypeSwitchChanged,
	events.TypeButtonPressed,
	events.TypeButtonReleased,
	events.TypeLEDStateChanged,
	events.TypeDisplayUpdated,
	events.TypeScreenUpdated,
	events.TypeAppStarted,
	events.TypeAppStopped,
	events.TypeAppError,
	events.TypeShutdownInitiated,
	events.TypeSystemError,
}

// Bus is the pub/sub surface the debug server needs.
type Bus interface {
	Subscribe(eventType string, handler events.Handler, opts ...events.SubscribeOption) (events.SubscriptionID, error)
	Unsubscribe(id events.SubscriptionID)
}

// AppSource reports the currently running mini-app for state snapshots.
type AppSource interface {
	CurrentApp() string
}

// Runner is the emulator debug surface.
type Runner struct {
	addr   string
	device *virtual.Device
	hw     *hal.Controller
	bus    Bus
	apps   AppSource

	hub    *hub
	server *httpserver.Runner
	subs   []events.SubscriptionID

	logger *slog.Logger
}

// NewRunner creates the debug surface bound to addr (host:port).
func NewRunner(addr string, device *virtual.Device, hw *hal.Controller, bus Bus, opts ...Option) (*Runner, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if hw == nil {
		return nil, ErrNilController
	}
	if bus == nil {
		return nil, ErrNilBus
	}

	r := &Runner{
		addr:   addr,
		device: device,
		hw:     hw,
		bus:    bus,
		logger: slog.Default().WithGroup("emuweb.Runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.hub = newHub(r.logger.WithGroup("hub"))

	routes, err := r.routes()
	if err != nil {
		return nil, fmt.Errorf("failed to build routes: %w", err)
	}

	configCallback := func() (*httpserver.Config, error) {
		// No write timeout: the websocket feed holds its connection open and
		// manages its own deadlines after the hijack.
		return httpserver.NewConfig(r.addr, routes,
			httpserver.WithReadTimeout(10*time.Second),
			httpserver.WithIdleTimeout(2*time.Minute),
			httpserver.WithDrainTimeout(2*time.Second),
		)
	}

	server, err := httpserver.NewRunner(httpserver.WithConfigCallback(configCallback))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP server runner: %w", err)
	}
	r.server = server
	return r, nil
}

// String implements the supervisor.Runnable interface.
func (r *Runner) String() string {
	return fmt.Sprintf("emuweb.Runner[%s]", r.addr)
}

// Run implements the supervisor.Runnable interface. It bridges bus events to
// the WebSocket hub for as long as the HTTP server is up.
func (r *Runner) Run(ctx context.Context) error {
	for _, eventType := range forwardedEvents {
		id, err := r.bus.Subscribe(eventType, r.forward)
		if err != nil {
			r.teardown()
			return fmt.Errorf("failed to subscribe to %s: %w", eventType, err)
		}
		r.subs = append(r.subs, id)
	}

	r.logger.Info("Emulator debug surface starting", "address", r.addr)
	err := r.server.Run(ctx)

	r.teardown()
	return err
}

// Stop implements the supervisor.Runnable interface.
func (r *Runner) Stop() {
	r.logger.Debug("Stopping Runner")
	r.server.Stop()
}

func (r *Runner) teardown() {
	for _, id := range r.subs {
		r.bus.Unsubscribe(id)
	}
	r.subs = nil
	r.hub.closeAll()
}

// forward mirrors one bus event onto every connected panel client.
func (r *Runner) forward(ev events.Event) {
	r.hub.broadcastEvent(ev.Type, ev.Payload, ev.Timestamp)
}

// GetState returns the current state of the underlying HTTP server.
func (r *Runner) GetState() string {
	return r.server.GetState()
}

// GetStateChan returns a channel that emits state changes.
func (r *Runner) GetStateChan(ctx context.Context) <-chan string {
	return r.server.GetStateChan(ctx)
}

// IsRunning reports whether the HTTP server is serving.
func (r *Runner) IsRunning() bool {
	return r.server.IsReady()
}
