package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dirName, content string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), dirName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))
	return dir
}

const validManifestJSON = `{
  "name": "weather",
  "description": "Current conditions on the screen",
  "version": "1.2.0",
  "author": "boss",
  "tags": ["network", "content"],
  "timeout_seconds": 120,
  "required_env": ["WEATHER_API_KEY"]
}`

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("valid manifest with defaults applied", func(t *testing.T) {
		dir := writeManifest(t, "weather", validManifestJSON)
		m, err := Load(dir, 900)
		require.NoError(t, err)

		assert.Equal(t, "weather", m.Name)
		assert.Equal(t, DefaultEntryPoint, m.EntryPoint)
		assert.Equal(t, 120, m.TimeoutSeconds)
		// Network tag infers rerun.
		assert.Equal(t, BehaviorRerun, m.TimeoutBehavior)
		assert.Equal(t, DefaultTimeoutCooldownSeconds, m.TimeoutCooldownSeconds)
		assert.Equal(t, dir, m.Dir)
		assert.Empty(t, m.Warnings)
	})

	t.Run("non-network default behavior is return", func(t *testing.T) {
		dir := writeManifest(t, "jokes", `{
			"name": "jokes", "description": "d", "version": "1", "author": "a",
			"tags": ["novelty"]
		}`)
		m, err := Load(dir, 900)
		require.NoError(t, err)
		assert.Equal(t, BehaviorReturn, m.TimeoutBehavior)
		assert.Equal(t, 900, m.TimeoutSeconds)
	})

	t.Run("name directory mismatch", func(t *testing.T) {
		dir := writeManifest(t, "foo", `{
			"name": "bar", "description": "d", "version": "1", "author": "a",
			"tags": ["utility"]
		}`)
		_, err := Load(dir, 900)
		assert.ErrorIs(t, err, ErrNameMismatch)
	})

	t.Run("missing required fields reported together", func(t *testing.T) {
		dir := writeManifest(t, "empty", `{"name": "empty"}`)
		_, err := Load(dir, 900)
		assert.ErrorIs(t, err, ErrMissingDescription)
		assert.ErrorIs(t, err, ErrMissingVersion)
		assert.ErrorIs(t, err, ErrMissingAuthor)
		assert.ErrorIs(t, err, ErrNoTags)
	})

	t.Run("invalid tag", func(t *testing.T) {
		dir := writeManifest(t, "x", `{
			"name": "x", "description": "d", "version": "1", "author": "a",
			"tags": ["games"]
		}`)
		_, err := Load(dir, 900)
		assert.ErrorIs(t, err, ErrInvalidTag)
	})

	t.Run("invalid timeout behavior", func(t *testing.T) {
		dir := writeManifest(t, "x", `{
			"name": "x", "description": "d", "version": "1", "author": "a",
			"tags": ["utility"], "timeout_behavior": "restart"
		}`)
		_, err := Load(dir, 900)
		assert.ErrorIs(t, err, ErrInvalidBehavior)
	})

	t.Run("deprecated keys rejected", func(t *testing.T) {
		dir := writeManifest(t, "old", `{
			"name": "old", "description": "d", "version": "1", "author": "a",
			"tags": ["utility"], "title": "Old App", "api_keys": ["k"]
		}`)
		_, err := Load(dir, 900)
		assert.ErrorIs(t, err, ErrDeprecatedKey)
	})

	t.Run("unknown keys produce warnings, not errors", func(t *testing.T) {
		dir := writeManifest(t, "x", `{
			"name": "x", "description": "d", "version": "1", "author": "a",
			"tags": ["utility"], "homepage": "https://example.com"
		}`)
		m, err := Load(dir, 900)
		require.NoError(t, err)
		require.Len(t, m.Warnings, 1)
		assert.Contains(t, m.Warnings[0], "homepage")
	})

	t.Run("missing manifest file", func(t *testing.T) {
		_, err := Load(t.TempDir(), 900)
		assert.ErrorIs(t, err, ErrManifestRead)
	})

	t.Run("malformed json", func(t *testing.T) {
		dir := writeManifest(t, "x", `{"name": `)
		_, err := Load(dir, 900)
		assert.ErrorIs(t, err, ErrManifestParse)
	})
}

func TestManifest_MissingEnv(t *testing.T) {
	m := &Manifest{RequiredEnv: []string{"BOSS_TEST_PRESENT_VAR", "BOSS_TEST_ABSENT_VAR"}}
	t.Setenv("BOSS_TEST_PRESENT_VAR", "x")
	os.Unsetenv("BOSS_TEST_ABSENT_VAR")

	assert.Equal(t, []string{"BOSS_TEST_ABSENT_VAR"}, m.MissingEnv())
}

func TestManifest_HasTag(t *testing.T) {
	t.Parallel()
	m := &Manifest{Tags: []string{TagAdmin, TagSystem}}
	assert.True(t, m.HasTag(TagAdmin))
	assert.False(t, m.HasTag(TagNetwork))
}
