package events

import (
	"context"
	"log/slog"
)

// Option configures a Bus instance.
type Option func(*Bus)

// WithLogger sets a custom logger for the Bus instance.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithLogHandler sets a custom log handler for the Bus instance.
func WithLogHandler(handler slog.Handler) Option {
	return func(b *Bus) {
		b.logger = slog.New(handler).WithGroup("events.Bus")
	}
}

// WithContext sets a custom parent context for the Bus instance.
func WithContext(ctx context.Context) Option {
	return func(b *Bus) {
		b.parentCtx = ctx
	}
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*subscription)

// WithFilter restricts delivery to events whose payload contains every filter
// key with an equal value.
func WithFilter(filter map[string]any) SubscribeOption {
	return func(s *subscription) {
		s.filter = filter
	}
}
