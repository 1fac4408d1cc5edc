// Package config loads and validates the appliance configuration file and
// the switch-to-app mappings file. Config is read once at startup and never
// hot-reloaded; validation failures abort the process before any hardware is
// touched.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/atlanticdynamic/boss/internal/hal"
)

// Environment variables honored at startup.
const (
	EnvConfigPath = "BOSS_CONFIG_PATH"
	EnvTestMode   = "BOSS_TEST_MODE"
	EnvDevMode    = "BOSS_DEV_MODE"
)

// DefaultConfigPath is used when BOSS_CONFIG_PATH is unset and no flag is given.
const DefaultConfigPath = "boss_config.json"

// Defaults applied by Validate when the field is zero.
const (
	DefaultEventQueueSize    = 1000
	DefaultAppTimeoutSeconds = 900
	DefaultEmulatorPort      = 8070
	DefaultStartupApp        = "startup"
)

var validLogLevels = []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

// Config is the root of the JSON config file. The format is strict: unknown
// keys are rejected.
type Config struct {
	Hardware Hardware `json:"hardware"`
	System   System   `json:"system"`
}

// Hardware holds pin assignments and screen geometry.
type Hardware struct {
	Backend       string            `json:"backend"`
	ButtonPins    map[string]string `json:"button_pins"`
	LEDPins       map[string]string `json:"led_pins"`
	MuxSelectPins []string          `json:"mux_select_pins"`
	MuxInputPin   string            `json:"mux_input_pin"`
	DisplayPins   DisplayPins       `json:"display_pins"`
	ScreenWidth   int               `json:"screen_width"`
	ScreenHeight  int               `json:"screen_height"`
	EnableAudio   bool              `json:"enable_audio"`
}

// DisplayPins names the two wires of the 7-segment driver.
type DisplayPins struct {
	CLK string `json:"clk"`
	DIO string `json:"dio"`
}

// System holds runtime settings.
type System struct {
	AppsDirectory     string `json:"apps_directory"`
	LogLevel          string `json:"log_level"`
	LogFile           string `json:"log_file"`
	EventQueueSize    int    `json:"event_queue_size"`
	AppTimeoutSeconds int    `json:"app_timeout_seconds"`
	StartupApp        string `json:"startup_app"`
	EmulatorPort      int    `json:"emulator_port"`
}

// NewConfig loads, strictly decodes, and validates a config file. Mode
// environment variables are applied after decoding: BOSS_TEST_MODE forces
// the mock backend at DEBUG, BOSS_DEV_MODE forces the emulator at DEBUG.
func NewConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToLoadConfig, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()

	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToLoadConfig, err)
	}

	cfg.applyModeOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyModeOverrides() {
	if os.Getenv(EnvTestMode) == "1" {
		c.Hardware.Backend = string(hal.BackendMock)
		c.System.LogLevel = "DEBUG"
	} else if os.Getenv(EnvDevMode) == "1" {
		c.Hardware.Backend = string(hal.BackendEmulator)
		c.System.LogLevel = "DEBUG"
	}
}

// Validate applies defaults and checks every invariant the runtime depends
// on. All problems are reported together.
func (c *Config) Validate() error {
	var errz []error

	if err := c.Hardware.validate(); err != nil {
		errz = append(errz, err)
	}
	if err := c.System.validate(); err != nil {
		errz = append(errz, err)
	}

	if len(errz) > 0 {
		return fmt.Errorf("%w: %w", ErrFailedToValidateConfig, errors.Join(errz...))
	}
	return nil
}

func (h *Hardware) validate() error {
	var errz []error

	if h.Backend == "" {
		h.Backend = string(hal.BackendGPIO)
	}
	if !hal.BackendKind(h.Backend).Valid() {
		errz = append(errz, fmt.Errorf("%w: %q", ErrInvalidBackend, h.Backend))
	}

	if h.ScreenWidth <= 0 {
		errz = append(errz, fmt.Errorf("%w: screen_width %d", ErrInvalidDimension, h.ScreenWidth))
	}
	if h.ScreenHeight <= 0 {
		errz = append(errz, fmt.Errorf("%w: screen_height %d", ErrInvalidDimension, h.ScreenHeight))
	}

	// Pin checks only bind for the gpio backend; the virtual backends have
	// no pins.
	if hal.BackendKind(h.Backend) == hal.BackendGPIO {
		errz = append(errz, h.validatePins()...)
	}

	return errors.Join(errz...)
}

func (h *Hardware) validatePins() []error {
	var errz []error
	seen := map[string]string{}
	claim := func(role, pin string) {
		if pin == "" {
			errz = append(errz, fmt.Errorf("%w: %s", ErrMissingPin, role))
			return
		}
		if prev, dup := seen[pin]; dup {
			errz = append(errz, fmt.Errorf("%w: %s assigned to %s and %s", ErrDuplicatePin, pin, prev, role))
			return
		}
		seen[pin] = role
	}

	for _, id := range append([]hal.ButtonID{hal.ButtonGo}, hal.ColorButtons...) {
		claim("button "+string(id), h.ButtonPins[string(id)])
	}
	for _, id := range hal.AllLEDs {
		claim("led "+string(id), h.LEDPins[string(id)])
	}
	if len(h.MuxSelectPins) != 3 {
		errz = append(errz, fmt.Errorf("%w: need 3 mux select pins, have %d", ErrMissingPin, len(h.MuxSelectPins)))
	} else {
		for i, pin := range h.MuxSelectPins {
			claim(fmt.Sprintf("mux select %d", i), pin)
		}
	}
	claim("mux input", h.MuxInputPin)
	claim("display clk", h.DisplayPins.CLK)
	claim("display dio", h.DisplayPins.DIO)
	return errz
}

func (s *System) validate() error {
	var errz []error

	if s.AppsDirectory == "" {
		errz = append(errz, ErrMissingAppsDirectory)
	}

	if s.LogLevel == "" {
		s.LogLevel = "INFO"
	}
	valid := false
	for _, lvl := range validLogLevels {
		if strings.EqualFold(s.LogLevel, lvl) {
			valid = true
			break
		}
	}
	if !valid {
		errz = append(errz, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s.LogLevel))
	}

	if s.EventQueueSize == 0 {
		s.EventQueueSize = DefaultEventQueueSize
	}
	if s.EventQueueSize < 1 {
		errz = append(errz, fmt.Errorf("%w: event_queue_size %d", ErrInvalidQueueSize, s.EventQueueSize))
	}

	if s.AppTimeoutSeconds == 0 {
		s.AppTimeoutSeconds = DefaultAppTimeoutSeconds
	}
	if s.AppTimeoutSeconds < 1 {
		errz = append(errz, fmt.Errorf("%w: app_timeout_seconds %d", ErrInvalidTimeout, s.AppTimeoutSeconds))
	}

	if s.StartupApp == "" {
		s.StartupApp = DefaultStartupApp
	}
	if s.EmulatorPort == 0 {
		s.EmulatorPort = DefaultEmulatorPort
	}
	if s.EmulatorPort < 1 || s.EmulatorPort > 65535 {
		errz = append(errz, fmt.Errorf("%w: emulator_port %d", ErrInvalidPort, s.EmulatorPort))
	}

	return errors.Join(errz...)
}

// BackendKind returns the validated backend selection.
func (c *Config) BackendKind() hal.BackendKind {
	return hal.BackendKind(c.Hardware.Backend)
}

// ScreenSize returns the configured screen geometry.
func (c *Config) ScreenSize() hal.ScreenSize {
	return hal.ScreenSize{Width: c.Hardware.ScreenWidth, Height: c.Hardware.ScreenHeight}
}

// ResolvePath returns the config path from the flag value, BOSS_CONFIG_PATH,
// or the default, in that order.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultConfigPath
}
