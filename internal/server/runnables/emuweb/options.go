package emuweb

import "log/slog"

// Option represents a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogHandler sets a custom slog handler for the Runner instance.
func WithLogHandler(handler slog.Handler) Option {
	return func(r *Runner) {
		if handler != nil {
			r.logger = slog.New(handler).WithGroup("emuweb.Runner")
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

// WithAppSource wires the app runner in so state snapshots can report the
// currently running mini-app.
func WithAppSource(apps AppSource) Option {
	return func(r *Runner) {
		r.apps = apps
	}
}
