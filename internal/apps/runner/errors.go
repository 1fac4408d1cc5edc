package runner

import "errors"

var (
	// ErrNilEntrypoints is returned by NewRunner when no entry point source
	// is provided.
	ErrNilEntrypoints = errors.New("entrypoints cannot be nil")

	// ErrNilManifest is returned by Launch when given a nil manifest.
	ErrNilManifest = errors.New("manifest cannot be nil")

	// ErrNoEntrypoint is returned when an app's manifest names no registered
	// entry point.
	ErrNoEntrypoint = errors.New("no registered entry point")

	// ErrRunnerLeaked is returned once a previous app has ignored its cancel
	// signal; the runner refuses launches until the process restarts.
	ErrRunnerLeaked = errors.New("runner poisoned by leaked app goroutine")

	// ErrRunnerStopped is returned when Launch is called outside the running
	// state.
	ErrRunnerStopped = errors.New("runner is not running")
)
