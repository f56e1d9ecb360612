package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/kiln/pkg/lock"
)

func TestLoad_Defaults(t *testing.T) {
	// Run from an empty directory so no stray kiln.yaml is picked up.
	t.Chdir(t.TempDir())

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, "info", cfg.Logging.Level)

	assert.Equal(t, lock.DefaultStaleAfter, cfg.Locks.StaleAfter)
	assert.Equal(t, lock.DefaultPollEvery, cfg.Locks.PollEvery)
	assert.Equal(t, lock.DefaultAcquireTimeout, cfg.Locks.AcquireTimeout)

	assert.False(t, cfg.History.Disabled)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kiln.yaml"), []byte(
		"server:\n  port: 9999\nlocks:\n  stale_after: 90s\n"), 0644))
	t.Chdir(dir)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Locks.StaleAfter)
	// Untouched keys keep defaults.
	assert.Equal(t, "localhost", cfg.Server.Host)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("KILN_SERVER_PORT", "7070")
	t.Setenv("KILN_LOGGING_LEVEL", "debug")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestConfig_LockDir(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, filepath.Join("/ws", ".kiln", "locks"), cfg.LockDir("/ws"))

	cfg.Locks.Dir = "/var/lock/kiln"
	assert.Equal(t, "/var/lock/kiln", cfg.LockDir("/ws"))
}

func TestConfig_HistoryPath(t *testing.T) {
	cfg := &Config{}
	assert.NotEmpty(t, cfg.HistoryPath())

	cfg.History.Path = "/tmp/h.db"
	assert.Equal(t, "/tmp/h.db", cfg.HistoryPath())
}
