package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultBusyTimeout = 5000
	defaultDBFile      = "companion.db"
)

// Config holds the SQLite storage driver configuration.
type Config struct {
	// Path is the database file path. Defaults to {DataDir}/companion.db.
	// A leading "~/" is expanded to the user's home directory.
	Path string `yaml:"path"`

	// WAL enables WAL journal mode. Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`
}

func (c *Config) defaults(dataDir string) {
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
	if rest, ok := strings.CutPrefix(c.Path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			c.Path = filepath.Join(home, rest)
		}
	}
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

func (c *Config) validate() error {
	if c.Path == "" {
		return fmt.Errorf("sqlite: path is required when no data directory is set")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must be non-negative, got %d", c.BusyTimeout)
	}
	return nil
}
