// Package registry scans the apps directory, validates every manifest, and
// maps switch values to launchable apps. A broken manifest makes that one app
// unavailable; it never fails startup.
package registry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/atlanticdynamic/boss/internal/apps/manifest"
	"github.com/atlanticdynamic/boss/internal/config"
)

// Registry is built once at startup and read-only afterwards.
type Registry struct {
	appsDir        string
	defaultTimeout int
	mappings       *config.Mappings
	logger         *slog.Logger

	available   map[string]*manifest.Manifest
	unavailable map[string]error
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogHandler sets a custom log handler for the Registry.
func WithLogHandler(handler slog.Handler) Option {
	return func(r *Registry) {
		r.logger = slog.New(handler).WithGroup("registry")
	}
}

// New creates a Registry. Call Scan before resolving.
func New(appsDir string, mappings *config.Mappings, defaultTimeout int, opts ...Option) *Registry {
	r := &Registry{
		appsDir:        appsDir,
		defaultTimeout: defaultTimeout,
		mappings:       mappings,
		logger:         slog.Default().WithGroup("registry"),
		available:      make(map[string]*manifest.Manifest),
		unavailable:    make(map[string]error),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Scan walks the apps directory and loads every app subdirectory that
// contains a manifest file. Invalid manifests are logged and recorded as
// unavailable. Only an unreadable apps directory is an error.
func (r *Registry) Scan() error {
	entries, err := os.ReadDir(r.appsDir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAppsDirUnreadable, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		appDir := filepath.Join(r.appsDir, name)

		if _, err := os.Stat(filepath.Join(appDir, manifest.FileName)); err != nil {
			// Not an app directory; skip silently.
			continue
		}

		m, err := manifest.Load(appDir, r.defaultTimeout)
		if err != nil {
			r.logger.Warn("Invalid manifest, app unavailable", "app", name, "error", err)
			r.unavailable[name] = err
			continue
		}
		for _, w := range m.Warnings {
			r.logger.Warn("Manifest warning", "app", name, "warning", w)
		}
		r.available[name] = m
	}

	// Mappings that point at nothing loadable are worth a log line at
	// startup rather than a surprise at launch time.
	for value, name := range r.mappings.Apps {
		if _, ok := r.available[name]; !ok {
			r.logger.Warn("Mapping references unavailable app", "switch_value", value, "app", name)
		}
	}

	r.logger.Info("App scan complete",
		"available", len(r.available), "unavailable", len(r.unavailable))
	return nil
}

// Resolve returns the manifest mapped to a switch value. An unmapped value
// returns (nil, nil): a user-visible "no app mapped" state, not an error.
// Mapped-but-unloadable apps and apps with missing required environment
// return errors the caller surfaces as system.error.
func (r *Registry) Resolve(value int) (*manifest.Manifest, error) {
	name := r.mappings.Resolve(value)
	if name == "" {
		return nil, nil
	}
	return r.resolveByName(name, value)
}

// Get resolves an app by name, used for the startup app.
func (r *Registry) Get(name string) (*manifest.Manifest, error) {
	return r.resolveByName(name, -1)
}

func (r *Registry) resolveByName(name string, value int) (*manifest.Manifest, error) {
	if reason, bad := r.unavailable[name]; bad {
		return nil, fmt.Errorf("%w: %q: %w", ErrAppUnavailable, name, reason)
	}
	m, ok := r.available[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (switch value %d)", ErrAppUnknown, name, value)
	}
	if missing := m.MissingEnv(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %q needs %v", ErrMissingEnv, name, missing)
	}
	return m, nil
}

// Available returns the loadable app names in sorted order.
func (r *Registry) Available() []string {
	names := make([]string, 0, len(r.available))
	for name := range r.available {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unavailable returns the apps whose manifests failed validation, with the
// reason for each.
func (r *Registry) Unavailable() map[string]error {
	out := make(map[string]error, len(r.unavailable))
	for name, err := range r.unavailable {
		out[name] = err
	}
	return out
}

// Mappings exposes the switch table for the debug surface.
func (r *Registry) Mappings() *config.Mappings {
	return r.mappings
}
