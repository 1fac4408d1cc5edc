package hal

import (
	"context"
	"log/slog"
)

// ControllerOption configures a Controller instance.
type ControllerOption func(*Controller)

// WithLogger sets a custom logger for the Controller instance.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithLogHandler sets a custom log handler for the Controller instance.
func WithLogHandler(handler slog.Handler) ControllerOption {
	return func(c *Controller) {
		c.logger = slog.New(handler).WithGroup("hal.Controller")
	}
}

// WithContext sets a custom parent context for the Controller instance.
func WithContext(ctx context.Context) ControllerOption {
	return func(c *Controller) {
		c.parentCtx = ctx
	}
}
