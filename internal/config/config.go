// Package config loads application configuration from defaults, an
// optional kiln.yaml file, and KILN_* environment variables.
package config

import (
	"path/filepath"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
)

// AppName is the configuration identity used for data directories and
// environment variable prefixes.
const AppName = "kiln"

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Locks   LocksConfig   `mapstructure:"locks"`
	History HistoryConfig `mapstructure:"history"`
	Watch   WatchConfig   `mapstructure:"watch"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// LocksConfig configures the package lock directory and timing.
type LocksConfig struct {
	// Dir is the lock root. Empty means <workspace>/.kiln/locks.
	Dir string `mapstructure:"dir"`

	StaleAfter     time.Duration `mapstructure:"stale_after"`
	PollEvery      time.Duration `mapstructure:"poll_every"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
}

// HistoryConfig configures the build history journal.
type HistoryConfig struct {
	// Path is the journal database path. Empty derives a per-user
	// default under the application data directory.
	Path string `mapstructure:"path"`

	// Disabled turns off history recording and the build cache.
	Disabled bool `mapstructure:"disabled"`
}

// WatchConfig configures watch mode timing.
type WatchConfig struct {
	Debounce        time.Duration `mapstructure:"debounce"`
	RebuildInterval time.Duration `mapstructure:"rebuild_interval"`
}

// LockDir resolves the lock root for a workspace.
func (c *Config) LockDir(workspaceRoot string) string {
	if c.Locks.Dir != "" {
		return c.Locks.Dir
	}
	return filepath.Join(workspaceRoot, ".kiln", "locks")
}

// HistoryPath resolves the journal path.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(gfconfig.GetAppDataDir(AppName), "history.db")
}
