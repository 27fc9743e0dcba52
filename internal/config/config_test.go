package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, 45*time.Second, cfg.RenderTimeout)
	assert.Equal(t, 12, cfg.JWTExpirationHours)
}

func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", "/data/lots.db")
	t.Setenv("RENDER_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, "/data/lots.db", cfg.SQLitePath)
	assert.Equal(t, 5*time.Second, cfg.RenderTimeout)
}

func TestLoadStation(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("LOTFLOW_ARCHIVE_ROOT", "/srv/archives")

	cfg, err := LoadStation()
	require.NoError(t, err)
	assert.Equal(t, "/srv/archives", cfg.ArchiveRoot)
	assert.Equal(t, "http://localhost:8000", cfg.APIURL)
	assert.Equal(t, 3, cfg.MinScanLength)
	assert.Equal(t, 2*time.Minute, cfg.PipelineTimeout)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
