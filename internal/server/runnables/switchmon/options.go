package switchmon

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
			r.logger = slog.New(handler).WithGroup("switchmon.Runner")
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

// WithSamplePeriod overrides the polling interval. Intended for tests.
func WithSamplePeriod(period time.Duration) Option {
	return func(r *Runner) {
		if period > 0 {
			r.period = period
		}
	}
}
