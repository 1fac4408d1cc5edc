package runner

import (
	"context"
	"log/slog"
	"time"
)

// Option represents a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogHandler sets a custom slog handler for the Runner instance.
func WithLogHandler(handler slog.Handler) Option {
	return func(r *Runner) {
		if handler != nil {
			r.logger = slog.New(handler).WithGroup("apprunner.Runner")
		}
	}
}

// WithLogger sets a logger for the Runner instance.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithContext sets a custom parent context for the Runner instance.
func WithContext(ctx context.Context) Option {
	return func(r *Runner) {
		if ctx != nil {
			r.parentCtx = ctx
		}
	}
}

// WithGrace overrides how long a canceled app may take to return before it is
// declared leaked. Intended for tests.
func WithGrace(grace time.Duration) Option {
	return func(r *Runner) {
		if grace > 0 {
			r.grace = grace
		}
	}
}
