package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresSecret(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadDefaultsWithSecret(t *testing.T) {
	t.Setenv("FOCUS_JWT_SECRET", "hush")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, time.Second, cfg.Timers.SweepInterval)
	assert.Equal(t, 500, cfg.Chat.MaxMessageLen)
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9090"
timers:
  sweep_interval: 5s
  timer_sync_interval: 30s
database:
  host: db.internal
`), 0o600))

	t.Setenv("FOCUS_JWT_SECRET", "hush")
	t.Setenv("FOCUS_HTTP_ADDR", ":7070")
	t.Setenv("DB_PORT", "5433")

	cfg, err := Load(path)
	require.NoError(t, err)

	// Env wins over file; file wins over defaults.
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Second, cfg.Timers.SweepInterval)
	assert.Equal(t, 30*time.Second, cfg.Timers.TimerSyncInterval)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Contains(t, cfg.Database.DSN(), "db.internal:5433")
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	t.Setenv("FOCUS_JWT_SECRET", "hush")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}
