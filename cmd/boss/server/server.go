// Package server is the composition root: it loads configuration, builds the
// hardware backend and every runnable, wires the orchestration subscriptions,
// and hands the assembly to the supervisor.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/atlanticdynamic/boss/internal/apps/builtin"
	"github.com/atlanticdynamic/boss/internal/apps/manifest"
	"github.com/atlanticdynamic/boss/internal/apps/registry"
	"github.com/atlanticdynamic/boss/internal/apps/runner"
	"github.com/atlanticdynamic/boss/internal/config"
	"github.com/atlanticdynamic/boss/internal/events"
	"github.com/atlanticdynamic/boss/internal/hal"
	"github.com/atlanticdynamic/boss/internal/hal/gpiohw"
	"github.com/atlanticdynamic/boss/internal/hal/virtual"
	"github.com/atlanticdynamic/boss/internal/logging"
	"github.com/atlanticdynamic/boss/internal/server/runnables/buttongate"
	"github.com/atlanticdynamic/boss/internal/server/runnables/emuweb"
	"github.com/atlanticdynamic/boss/internal/server/runnables/switchmon"
	"github.com/robbyt/go-supervisor/supervisor"
)

// ErrStartup marks failures before the appliance was fully assembled, and
// ErrRuntime marks failures after it was up. The CLI maps them to exit codes
// 1 and 2.
var (
	ErrStartup = errors.New("startup failed")
	ErrRuntime = errors.New("runtime failure")
)

// Run builds and runs the appliance until the context is canceled or a
// shutdown event is published.
func Run(ctx context.Context, configPath, mappingsPath string) error {
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	logging.SetupLogger(cfg.System.LogLevel, cfg.System.LogFile)
	logger := slog.Default()
	logHandler := logger.Handler()
	logger.Info("B.O.S.S. starting",
		"backend", cfg.BackendKind(), "apps_dir", cfg.System.AppsDirectory)

	mappings := loadMappings(mappingsPath, logger)

	reg := registry.New(cfg.System.AppsDirectory, mappings, cfg.System.AppTimeoutSeconds,
		registry.WithLogHandler(logHandler))
	if err := reg.Scan(); err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	backend, err := buildBackend(cfg, logHandler)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	// runCtx lets the shutdown event tear the supervisor down the same way a
	// signal would.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus, err := events.NewBus(cfg.System.EventQueueSize, events.WithLogHandler(logHandler))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	hw, err := hal.NewController(backend, bus, hal.WithLogHandler(logHandler))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	monitor, err := switchmon.NewRunner(hw, bus, switchmon.WithLogHandler(logHandler))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	gate, err := buttongate.NewRunner(hw, bus, buttongate.WithLogHandler(logHandler))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	startup := startupResolver(reg, cfg)
	appRunner, err := runner.NewRunner(hw, bus, builtin.Default(), startup,
		runner.WithLogHandler(logHandler))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	runnables := []supervisor.Runnable{bus, hw, monitor, gate, appRunner}

	if cfg.BackendKind() == hal.BackendEmulator {
		device, ok := backend.(*virtual.Device)
		if !ok {
			return fmt.Errorf("%w: emulator backend has unexpected type %T", ErrStartup, backend)
		}
		surface, err := emuweb.NewRunner(
			fmt.Sprintf("127.0.0.1:%d", cfg.System.EmulatorPort),
			device, hw, bus,
			emuweb.WithLogHandler(logHandler),
			emuweb.WithAppSource(appRunner),
		)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStartup, err)
		}
		runnables = append(runnables, surface)
	}

	if err := wireOrchestration(bus, monitor, reg, appRunner, cancel, logger); err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	go launchStartupApp(runCtx, appRunner, startup, logger)

	super, err := supervisor.New(
		supervisor.WithContext(runCtx),
		supervisor.WithLogHandler(logHandler),
		supervisor.WithRunnables(runnables...),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}
	if err := super.Run(); err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	logger.Info("Shutdown complete")
	return nil
}

// loadMappings reads the switch table. A missing file is not fatal: the
// appliance boots with the startup app and an empty table.
func loadMappings(path string, logger *slog.Logger) *config.Mappings {
	m, err := config.LoadMappings(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("No mappings file, all switch values unmapped", "path", path)
		} else {
			logger.Error("Mappings file rejected, all switch values unmapped", "path", path, "error", err)
		}
		return &config.Mappings{Apps: map[int]string{}}
	}
	return m
}

// buildBackend constructs the hal.Backend selected by the validated config.
func buildBackend(cfg *config.Config, logHandler slog.Handler) (hal.Backend, error) {
	switch cfg.BackendKind() {
	case hal.BackendMock:
		return virtual.NewMock(cfg.ScreenSize()), nil
	case hal.BackendEmulator:
		return virtual.NewEmulator(cfg.ScreenSize()), nil
	case hal.BackendGPIO:
		return gpiohw.New(pinConfig(cfg.Hardware), cfg.ScreenSize(),
			gpiohw.WithLogHandler(logHandler))
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Hardware.Backend)
	}
}

// pinConfig translates the config file's pin tables into the GPIO backend's
// typed form.
func pinConfig(hw config.Hardware) gpiohw.PinConfig {
	pc := gpiohw.PinConfig{
		Buttons:    make(map[hal.ButtonID]string, len(hw.ButtonPins)),
		LEDs:       make(map[hal.LEDID]string, len(hw.LEDPins)),
		MuxInput:   hw.MuxInputPin,
		DisplayCLK: hw.DisplayPins.CLK,
		DisplayDIO: hw.DisplayPins.DIO,
	}
	for name, pin := range hw.ButtonPins {
		pc.Buttons[hal.ButtonID(name)] = pin
	}
	for name, pin := range hw.LEDPins {
		pc.LEDs[hal.LEDID(name)] = pin
	}
	for i, pin := range hw.MuxSelectPins {
		if i < len(pc.MuxSelect) {
			pc.MuxSelect[i] = pin
		}
	}
	return pc
}

// wireOrchestration connects the Go button to app launches and the shutdown
// event to supervisor teardown.
func wireOrchestration(
	bus *events.Bus,
	monitor *switchmon.Runner,
	reg *registry.Registry,
	appRunner *runner.Runner,
	shutdown context.CancelFunc,
	logger *slog.Logger,
) error {
	_, err := bus.Subscribe(events.TypeButtonPressed, func(ev events.Event) {
		value := monitor.Current()
		if value < 0 {
			logger.Warn("Go pressed before first switch reading")
			return
		}
		m, err := reg.Resolve(value)
		if err != nil {
			logger.Error("App resolution failed", "switch_value", value, "error", err)
			bus.Publish(events.TypeSystemError,
				events.SystemErrorPayload("app_resolve", err.Error()), "orchestrator")
			return
		}
		if m == nil {
			logger.Info("No app mapped", "switch_value", value)
			return
		}
		if err := appRunner.Launch(m, value); err != nil {
			logger.Error("App launch failed", "app", m.Name, "error", err)
			bus.Publish(events.TypeSystemError,
				events.SystemErrorPayload("app_launch", err.Error()), "orchestrator")
		}
	}, events.WithFilter(map[string]any{"button": "go"}))
	if err != nil {
		return err
	}

	_, err = bus.Subscribe(events.TypeShutdownInitiated, func(ev events.Event) {
		logger.Info("Shutdown initiated", "reason", ev.Payload["reason"])
		shutdown()
	})
	return err
}

// startupResolver resolves the configured startup app: the on-disk registry
// wins, then the built-in table with a synthesized manifest. Built-in apps
// get timeout_behavior=none so the idle screen is never killed by the
// default app timeout.
func startupResolver(reg *registry.Registry, cfg *config.Config) runner.StartupResolver {
	return func() (*manifest.Manifest, error) {
		name := cfg.System.StartupApp
		m, err := reg.Get(name)
		if err == nil {
			return m, nil
		}
		if _, ok := builtin.Default().Lookup(name); !ok {
			return nil, err
		}
		return &manifest.Manifest{
			Name:            name,
			Description:     "built-in app",
			Version:         "builtin",
			Author:          "boss",
			Tags:            []string{manifest.TagSystem},
			EntryPoint:      manifest.DefaultEntryPoint,
			TimeoutSeconds:  cfg.System.AppTimeoutSeconds,
			TimeoutBehavior: manifest.BehaviorNone,
		}, nil
	}
}

// launchStartupApp waits for the app runner to come up, then launches the
// configured startup app.
func launchStartupApp(ctx context.Context, appRunner *runner.Runner, startup runner.StartupResolver, logger *slog.Logger) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for !appRunner.IsRunning() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}

	m, err := startup()
	if err != nil {
		logger.Error("Startup app unavailable", "error", err)
		return
	}
	if err := appRunner.Launch(m, runner.StartupSwitchValue); err != nil {
		logger.Error("Startup app launch failed", "app", m.Name, "error", err)
	}
}
