package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/atlanticdynamic/boss/internal/hal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigJSON = `{
  "hardware": {
    "backend": "gpio",
    "button_pins": {"red": "GPIO5", "yellow": "GPIO6", "green": "GPIO13", "blue": "GPIO19", "go": "GPIO26"},
    "led_pins": {"red": "GPIO12", "yellow": "GPIO16", "green": "GPIO20", "blue": "GPIO21"},
    "mux_select_pins": ["GPIO17", "GPIO27", "GPIO22"],
    "mux_input_pin": "GPIO23",
    "display_pins": {"clk": "GPIO24", "dio": "GPIO25"},
    "screen_width": 800,
    "screen_height": 480,
    "enable_audio": false
  },
  "system": {
    "apps_directory": "./apps",
    "log_level": "INFO",
    "log_file": "",
    "event_queue_size": 500,
    "app_timeout_seconds": 300
  }
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "boss_config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		t.Setenv(EnvTestMode, "")
		t.Setenv(EnvDevMode, "")

		cfg, err := NewConfig(writeConfig(t, validConfigJSON))
		require.NoError(t, err)

		assert.Equal(t, hal.BackendGPIO, cfg.BackendKind())
		assert.Equal(t, hal.ScreenSize{Width: 800, Height: 480}, cfg.ScreenSize())
		assert.Equal(t, 500, cfg.System.EventQueueSize)
		assert.Equal(t, 300, cfg.System.AppTimeoutSeconds)
		// Defaults applied during validation.
		assert.Equal(t, DefaultStartupApp, cfg.System.StartupApp)
		assert.Equal(t, DefaultEmulatorPort, cfg.System.EmulatorPort)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewConfig(filepath.Join(t.TempDir(), "nope.json"))
		assert.ErrorIs(t, err, ErrFailedToLoadConfig)
	})

	t.Run("unknown keys rejected", func(t *testing.T) {
		_, err := NewConfig(writeConfig(t, `{"hardware": {}, "system": {}, "extra": true}`))
		assert.ErrorIs(t, err, ErrFailedToLoadConfig)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := NewConfig(writeConfig(t, `{"hardware": {,}`))
		assert.ErrorIs(t, err, ErrFailedToLoadConfig)
	})
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Hardware: Hardware{
				Backend:      "mock",
				ScreenWidth:  800,
				ScreenHeight: 480,
			},
			System: System{
				AppsDirectory: "./apps",
				LogLevel:      "INFO",
			},
		}
	}

	t.Run("mock backend needs no pins", func(t *testing.T) {
		cfg := base()
		require.NoError(t, cfg.Validate())
	})

	t.Run("invalid backend", func(t *testing.T) {
		cfg := base()
		cfg.Hardware.Backend = "fpga"
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidBackend)
	})

	t.Run("zero screen width", func(t *testing.T) {
		cfg := base()
		cfg.Hardware.ScreenWidth = 0
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidDimension)
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := base()
		cfg.System.LogLevel = "VERBOSE"
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidLogLevel)
	})

	t.Run("log level is case-insensitive", func(t *testing.T) {
		cfg := base()
		cfg.System.LogLevel = "warning"
		require.NoError(t, cfg.Validate())
	})

	t.Run("negative queue size", func(t *testing.T) {
		cfg := base()
		cfg.System.EventQueueSize = -1
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidQueueSize)
	})

	t.Run("missing apps directory", func(t *testing.T) {
		cfg := base()
		cfg.System.AppsDirectory = ""
		assert.ErrorIs(t, cfg.Validate(), ErrMissingAppsDirectory)
	})

	t.Run("gpio backend requires pins", func(t *testing.T) {
		cfg := base()
		cfg.Hardware.Backend = "gpio"
		assert.ErrorIs(t, cfg.Validate(), ErrMissingPin)
	})

	t.Run("duplicate pins rejected", func(t *testing.T) {
		cfg := base()
		cfg.Hardware.Backend = "gpio"
		cfg.Hardware.ButtonPins = map[string]string{
			"red": "GPIO5", "yellow": "GPIO5", "green": "GPIO13", "blue": "GPIO19", "go": "GPIO26",
		}
		cfg.Hardware.LEDPins = map[string]string{
			"red": "GPIO12", "yellow": "GPIO16", "green": "GPIO20", "blue": "GPIO21",
		}
		cfg.Hardware.MuxSelectPins = []string{"GPIO17", "GPIO27", "GPIO22"}
		cfg.Hardware.MuxInputPin = "GPIO23"
		cfg.Hardware.DisplayPins = DisplayPins{CLK: "GPIO24", DIO: "GPIO25"}
		assert.ErrorIs(t, cfg.Validate(), ErrDuplicatePin)
	})

	t.Run("multiple problems reported together", func(t *testing.T) {
		cfg := base()
		cfg.Hardware.ScreenWidth = 0
		cfg.System.LogLevel = "LOUD"
		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrInvalidDimension)
		assert.ErrorIs(t, err, ErrInvalidLogLevel)
	})
}

func TestModeOverrides(t *testing.T) {
	t.Run("test mode forces mock and debug", func(t *testing.T) {
		t.Setenv(EnvTestMode, "1")
		t.Setenv(EnvDevMode, "")

		cfg, err := NewConfig(writeConfig(t, validConfigJSON))
		require.NoError(t, err)
		assert.Equal(t, hal.BackendMock, cfg.BackendKind())
		assert.Equal(t, "DEBUG", cfg.System.LogLevel)
	})

	t.Run("dev mode forces emulator and debug", func(t *testing.T) {
		t.Setenv(EnvTestMode, "")
		t.Setenv(EnvDevMode, "1")

		cfg, err := NewConfig(writeConfig(t, validConfigJSON))
		require.NoError(t, err)
		assert.Equal(t, hal.BackendEmulator, cfg.BackendKind())
	})

	t.Run("test mode wins over dev mode", func(t *testing.T) {
		t.Setenv(EnvTestMode, "1")
		t.Setenv(EnvDevMode, "1")

		cfg, err := NewConfig(writeConfig(t, validConfigJSON))
		require.NoError(t, err)
		assert.Equal(t, hal.BackendMock, cfg.BackendKind())
	})
}

func TestResolvePath(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/env/path.json")
		assert.Equal(t, "/flag/path.json", ResolvePath("/flag/path.json"))
	})

	t.Run("env fallback", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/env/path.json")
		assert.Equal(t, "/env/path.json", ResolvePath(""))
	})

	t.Run("default", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		assert.Equal(t, DefaultConfigPath, ResolvePath(""))
	})
}
