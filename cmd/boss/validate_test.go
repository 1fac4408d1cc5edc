package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/atlanticdynamic/boss/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, appsDir, name, body string) {
	t.Helper()
	appDir := filepath.Join(appsDir, name)
	require.NoError(t, os.MkdirAll(appDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "manifest.json"), []byte(body), 0o644))
}

func TestValidateMappings(t *testing.T) {
	t.Run("missing file is tolerated", func(t *testing.T) {
		m, err := validateMappings(filepath.Join(t.TempDir(), "nope.json"))
		require.NoError(t, err)
		assert.Empty(t, m.Apps)
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "boss_mappings.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"app_mappings":{"7":"demo"}}`), 0o644))

		m, err := validateMappings(path)
		require.NoError(t, err)
		assert.Equal(t, "demo", m.Apps[7])
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "boss_mappings.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"app_mappings":{"999":"demo"}}`), 0o644))

		_, err := validateMappings(path)
		require.Error(t, err)
	})
}

func TestValidateManifests(t *testing.T) {
	appsDir := t.TempDir()
	writeManifest(t, appsDir, "good", `{
		"name": "good",
		"description": "a valid app",
		"version": "1.0.0",
		"author": "tester",
		"tags": ["utility"]
	}`)
	writeManifest(t, appsDir, "bad", `{"name": "bad"}`)

	cfg := &config.Config{System: config.System{
		AppsDirectory:     appsDir,
		AppTimeoutSeconds: 900,
	}}
	mappings := &config.Mappings{Apps: map[int]string{1: "good", 2: "missing"}}

	broken, err := validateManifests(cfg, mappings)
	require.NoError(t, err)
	assert.Equal(t, 1, broken)
}

func TestValidateManifests_UnreadableDir(t *testing.T) {
	cfg := &config.Config{System: config.System{
		AppsDirectory: filepath.Join(t.TempDir(), "does-not-exist"),
	}}

	_, err := validateManifests(cfg, &config.Mappings{Apps: map[int]string{}})
	require.Error(t, err)
}
