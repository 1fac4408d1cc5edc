// Package manifest models the per-app descriptor file. Validation is strict
// about the fields it knows, tolerant about the ones it doesn't: unknown keys
// accumulate warnings, while keys from the pre-1.0 manifest format are
// rejected outright so stale descriptors get fixed instead of silently
// half-working.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// FileName is the descriptor file expected in every app directory.
const FileName = "manifest.json"

// Timeout behaviors.
const (
	BehaviorReturn = "return"
	BehaviorRerun  = "rerun"
	BehaviorNone   = "none"
)

// DefaultEntryPoint is used when the manifest does not name one.
const DefaultEntryPoint = "main"

// DefaultTimeoutCooldownSeconds applies to rerun behavior.
const DefaultTimeoutCooldownSeconds = 1

// Tag vocabulary. Network-tagged apps default to rerun on timeout.
const (
	TagAdmin   = "admin"
	TagContent = "content"
	TagNetwork = "network"
	TagSensor  = "sensor"
	TagNovelty = "novelty"
	TagSystem  = "system"
	TagUtility = "utility"
)

var validTags = []string{TagAdmin, TagContent, TagNetwork, TagSensor, TagNovelty, TagSystem, TagUtility}

// deprecatedKeys are pre-1.0 manifest fields whose presence fails validation.
var deprecatedKeys = []string{"id", "title", "assets_required", "api_keys", "instructions"}

// knownKeys is the full current vocabulary, used to generate unknown-key warnings.
var knownKeys = []string{
	"name", "description", "version", "author", "tags", "entry_point",
	"timeout_seconds", "timeout_behavior", "timeout_cooldown_seconds",
	"requires_network", "requires_audio", "external_apis", "required_env", "config",
}

// Manifest is one validated app descriptor.
type Manifest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Version     string   `json:"version"`
	Author      string   `json:"author"`
	Tags        []string `json:"tags"`

	EntryPoint             string `json:"entry_point"`
	TimeoutSeconds         int    `json:"timeout_seconds"`
	TimeoutBehavior        string `json:"timeout_behavior"`
	TimeoutCooldownSeconds int    `json:"timeout_cooldown_seconds"`

	RequiresNetwork bool           `json:"requires_network"`
	RequiresAudio   bool           `json:"requires_audio"`
	ExternalAPIs    []string       `json:"external_apis"`
	RequiredEnv     []string       `json:"required_env"`
	Config          map[string]any `json:"config"`

	// Dir is the app directory the manifest was loaded from.
	Dir string `json:"-"`

	// Warnings holds non-fatal findings (unknown keys).
	Warnings []string `json:"-"`
}

// Load reads and validates the manifest inside an app directory. The
// defaultTimeout comes from system config and applies when the manifest does
// not set its own.
func Load(appDir string, defaultTimeout int) (*Manifest, error) {
	path := filepath.Join(appDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestRead, err)
	}

	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestParse, err)
	}
	m.Dir = appDir

	// A second pass over the raw keys catches deprecated and unknown fields
	// that the struct decode silently ignores.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestParse, err)
	}

	var errz []error
	for key := range raw {
		if slices.Contains(deprecatedKeys, key) {
			errz = append(errz, fmt.Errorf("%w: %q", ErrDeprecatedKey, key))
		} else if !slices.Contains(knownKeys, key) {
			m.Warnings = append(m.Warnings, fmt.Sprintf("unknown manifest key %q", key))
		}
	}

	if err := m.validate(filepath.Base(appDir), defaultTimeout); err != nil {
		errz = append(errz, err)
	}
	if len(errz) > 0 {
		return nil, errors.Join(errz...)
	}
	return m, nil
}

// validate applies defaults and checks every field invariant.
func (m *Manifest) validate(dirName string, defaultTimeout int) error {
	var errz []error

	if m.Name == "" {
		errz = append(errz, ErrMissingName)
	} else if m.Name != dirName {
		errz = append(errz, fmt.Errorf("%w: manifest name %q, directory %q", ErrNameMismatch, m.Name, dirName))
	}
	if m.Description == "" {
		errz = append(errz, ErrMissingDescription)
	}
	if m.Version == "" {
		errz = append(errz, ErrMissingVersion)
	}
	if m.Author == "" {
		errz = append(errz, ErrMissingAuthor)
	}

	if len(m.Tags) == 0 {
		errz = append(errz, ErrNoTags)
	}
	for _, tag := range m.Tags {
		if !slices.Contains(validTags, tag) {
			errz = append(errz, fmt.Errorf("%w: %q", ErrInvalidTag, tag))
		}
	}

	if m.EntryPoint == "" {
		m.EntryPoint = DefaultEntryPoint
	}

	if m.TimeoutSeconds == 0 {
		m.TimeoutSeconds = defaultTimeout
	}
	if m.TimeoutSeconds <= 0 {
		errz = append(errz, fmt.Errorf("%w: %d", ErrInvalidTimeout, m.TimeoutSeconds))
	}

	switch m.TimeoutBehavior {
	case "":
		m.TimeoutBehavior = m.defaultBehavior()
	case BehaviorReturn, BehaviorRerun, BehaviorNone:
	default:
		errz = append(errz, fmt.Errorf("%w: %q", ErrInvalidBehavior, m.TimeoutBehavior))
	}

	if m.TimeoutCooldownSeconds == 0 {
		m.TimeoutCooldownSeconds = DefaultTimeoutCooldownSeconds
	}
	if m.TimeoutCooldownSeconds < 0 {
		errz = append(errz, fmt.Errorf("%w: %d", ErrInvalidCooldown, m.TimeoutCooldownSeconds))
	}

	return errors.Join(errz...)
}

// defaultBehavior infers the timeout behavior from the tag set: network apps
// rerun (they are typically dashboards worth refreshing), everything else
// returns to the startup screen.
func (m *Manifest) defaultBehavior() string {
	if slices.Contains(m.Tags, TagNetwork) {
		return BehaviorRerun
	}
	return BehaviorReturn
}

// HasTag reports whether the manifest carries the given tag.
func (m *Manifest) HasTag(tag string) bool {
	return slices.Contains(m.Tags, tag)
}

// MissingEnv returns the names from required_env absent from the process
// environment.
func (m *Manifest) MissingEnv() []string {
	var missing []string
	for _, name := range m.RequiredEnv {
		if _, ok := os.LookupEnv(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
