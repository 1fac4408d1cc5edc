package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/atlanticdynamic/boss/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeApp(t *testing.T, appsDir, name, manifestJSON string) {
	t.Helper()
	dir := filepath.Join(appsDir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifestJSON), 0o644))
}

func validManifest(name string) string {
	return `{
		"name": "` + name + `",
		"description": "d", "version": "1", "author": "a",
		"tags": ["utility"]
	}`
}

func newTestRegistry(t *testing.T, mappings map[int]string) (*Registry, string) {
	t.Helper()
	appsDir := t.TempDir()
	r := New(appsDir, &config.Mappings{Apps: mappings}, 900)
	return r, appsDir
}

func TestRegistry_Scan(t *testing.T) {
	t.Run("loads valid apps", func(t *testing.T) {
		r, appsDir := newTestRegistry(t, map[int]string{})
		writeApp(t, appsDir, "alpha", validManifest("alpha"))
		writeApp(t, appsDir, "beta", validManifest("beta"))

		require.NoError(t, r.Scan())
		assert.Equal(t, []string{"alpha", "beta"}, r.Available())
		assert.Empty(t, r.Unavailable())
	})

	t.Run("invalid manifest marks app unavailable, scan succeeds", func(t *testing.T) {
		r, appsDir := newTestRegistry(t, map[int]string{})
		writeApp(t, appsDir, "good", validManifest("good"))
		// Directory foo claims name bar.
		writeApp(t, appsDir, "foo", validManifest("bar"))

		require.NoError(t, r.Scan())
		assert.Equal(t, []string{"good"}, r.Available())
		assert.Contains(t, r.Unavailable(), "foo")
	})

	t.Run("directories without manifests are skipped", func(t *testing.T) {
		r, appsDir := newTestRegistry(t, map[int]string{})
		require.NoError(t, os.MkdirAll(filepath.Join(appsDir, "assets"), 0o755))

		require.NoError(t, r.Scan())
		assert.Empty(t, r.Available())
		assert.Empty(t, r.Unavailable())
	})

	t.Run("unreadable apps dir is an error", func(t *testing.T) {
		r := New(filepath.Join(t.TempDir(), "missing"), &config.Mappings{}, 900)
		assert.ErrorIs(t, r.Scan(), ErrAppsDirUnreadable)
	})
}

func TestRegistry_Resolve(t *testing.T) {
	t.Run("mapped value resolves", func(t *testing.T) {
		r, appsDir := newTestRegistry(t, map[int]string{42: "alpha"})
		writeApp(t, appsDir, "alpha", validManifest("alpha"))
		require.NoError(t, r.Scan())

		m, err := r.Resolve(42)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, "alpha", m.Name)
	})

	t.Run("unmapped value is not an error", func(t *testing.T) {
		r, _ := newTestRegistry(t, map[int]string{})
		require.NoError(t, r.Scan())

		m, err := r.Resolve(200)
		assert.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("invalid manifest never resolves", func(t *testing.T) {
		r, appsDir := newTestRegistry(t, map[int]string{7: "foo"})
		writeApp(t, appsDir, "foo", validManifest("bar"))
		require.NoError(t, r.Scan())

		_, err := r.Resolve(7)
		assert.ErrorIs(t, err, ErrAppUnavailable)
	})

	t.Run("mapping to nonexistent app", func(t *testing.T) {
		r, _ := newTestRegistry(t, map[int]string{7: "ghost"})
		require.NoError(t, r.Scan())

		_, err := r.Resolve(7)
		assert.ErrorIs(t, err, ErrAppUnknown)
	})

	t.Run("missing required env makes app unrunnable", func(t *testing.T) {
		r, appsDir := newTestRegistry(t, map[int]string{9: "envy"})
		writeApp(t, appsDir, "envy", `{
			"name": "envy", "description": "d", "version": "1", "author": "a",
			"tags": ["network"], "required_env": ["BOSS_TEST_NO_SUCH_VAR"]
		}`)
		os.Unsetenv("BOSS_TEST_NO_SUCH_VAR")
		require.NoError(t, r.Scan())

		_, err := r.Resolve(9)
		assert.ErrorIs(t, err, ErrMissingEnv)
	})
}

func TestRegistry_Get(t *testing.T) {
	r, appsDir := newTestRegistry(t, map[int]string{})
	writeApp(t, appsDir, "startup", validManifest("startup"))
	require.NoError(t, r.Scan())

	m, err := r.Get("startup")
	require.NoError(t, err)
	assert.Equal(t, "startup", m.Name)

	_, err = r.Get("ghost")
	assert.ErrorIs(t, err, ErrAppUnknown)
}
