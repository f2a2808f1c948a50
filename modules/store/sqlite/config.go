package sqlite

import (
	"fmt"
	"path/filepath"
	"time"
)

const (
	defaultBusyTimeout = 5000
	defaultDBFile      = "runs.db"
	defaultRetention   = 30 * 24 * time.Hour
)

// Config holds the SQLite run store configuration.
type Config struct {
	// Enabled turns persistence on. Defaults to true.
	Enabled *bool `yaml:"enabled"`

	// Path is the database file path. Defaults to {data_dir}/runs.db.
	Path string `yaml:"path"`

	// WAL enables WAL journal mode for concurrent reads. Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`

	// Retention is how long runs are kept before the prune job deletes
	// them. Defaults to 30 days.
	Retention time.Duration `yaml:"retention"`

	// PruneSchedule is the cron spec of the prune job. Defaults to "@daily".
	PruneSchedule string `yaml:"prune_schedule"`
}

// Defaults fills unset fields. dataDir is used to derive Path.
func (c *Config) Defaults(dataDir string) {
	if c.Enabled == nil {
		t := true
		c.Enabled = &t
	}
	if c.WAL == nil {
		t := true
		c.WAL = &t
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	if c.Path == "" && dataDir != "" {
		c.Path = filepath.Join(dataDir, defaultDBFile)
	}
	if c.Retention == 0 {
		c.Retention = defaultRetention
	}
	if c.PruneSchedule == "" {
		c.PruneSchedule = "@daily"
	}
}

// IsEnabled reports whether persistence is on.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

// Validate checks the store configuration.
func (c *Config) Validate() error {
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must be non-negative, got %d", c.BusyTimeout)
	}
	if c.Retention < 0 {
		return fmt.Errorf("sqlite: retention must be non-negative, got %v", c.Retention)
	}
	if c.IsEnabled() && c.Path == "" {
		return fmt.Errorf("sqlite: path is required")
	}
	return nil
}
