package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultMappingsFile is looked for next to the config file when no mappings
// flag is given.
const DefaultMappingsFile = "boss_mappings.json"

// Mappings is the switch-value-to-app table loaded from the mappings file.
// Gaps are allowed; pressing Go on an unmapped value is a user-visible
// "no app mapped" state, not an error.
type Mappings struct {
	// Apps maps switch values 0..255 to app names.
	Apps map[int]string

	// Parameters is free-form and passed through to whoever asks.
	Parameters map[string]any
}

// mappingsFile is the on-disk shape; keys are decimal strings.
type mappingsFile struct {
	AppMappings map[string]string `json:"app_mappings"`
	Parameters  map[string]any    `json:"parameters"`
}

// LoadMappings reads and validates the mappings file.
func LoadMappings(path string) (*Mappings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToLoadMappings, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()

	raw := mappingsFile{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToLoadMappings, err)
	}

	m := &Mappings{
		Apps:       make(map[int]string, len(raw.AppMappings)),
		Parameters: raw.Parameters,
	}

	var errz []error
	for key, appName := range raw.AppMappings {
		value, err := strconv.Atoi(key)
		if err != nil || value < 0 || value > 255 {
			errz = append(errz, fmt.Errorf("%w: %q", ErrInvalidMappingKey, key))
			continue
		}
		m.Apps[value] = appName
	}
	if len(errz) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrFailedToLoadMappings, errors.Join(errz...))
	}
	return m, nil
}

// Resolve returns the app name mapped to a switch value, or "" when unmapped.
func (m *Mappings) Resolve(value int) string {
	return m.Apps[value]
}

// ResolveMappingsPath returns the mappings path from the flag value, or the
// default file next to the config file.
func ResolveMappingsPath(flagValue, configPath string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Join(filepath.Dir(configPath), DefaultMappingsFile)
}
