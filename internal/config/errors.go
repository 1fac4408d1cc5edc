package config

import "errors"

var (
	ErrFailedToLoadConfig     = errors.New("failed to load config")
	ErrFailedToValidateConfig = errors.New("failed to validate config")

	ErrInvalidBackend       = errors.New("invalid hardware backend")
	ErrInvalidDimension     = errors.New("screen dimension must be positive")
	ErrMissingPin           = errors.New("missing pin assignment")
	ErrDuplicatePin         = errors.New("pin assigned twice")
	ErrMissingAppsDirectory = errors.New("apps_directory is required")
	ErrInvalidLogLevel      = errors.New("invalid log level")
	ErrInvalidQueueSize     = errors.New("event_queue_size must be >= 1")
	ErrInvalidTimeout       = errors.New("app_timeout_seconds must be >= 1")
	ErrInvalidPort          = errors.New("emulator_port out of range")

	ErrFailedToLoadMappings = errors.New("failed to load app mappings")
	ErrInvalidMappingKey    = errors.New("mapping key must be an integer in [0,255]")
)
