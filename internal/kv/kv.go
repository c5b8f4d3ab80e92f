// Package kv defines the key-value persistence contract used for
// conversation logs, session settings and missions, plus a registry of
// storage drivers selected by configuration.
package kv

import (
	"context"
	"errors"
	"log/slog"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("kv: key not found")

// Store is an opaque key-value store. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Env carries process-level settings a driver may need when opening.
type Env struct {
	// DataDir is the directory for drivers that keep local files.
	DataDir string
	Logger  *slog.Logger
}

// OpenFunc opens a store from its raw YAML configuration. node may be nil
// or empty, in which case the driver applies its defaults.
type OpenFunc func(ctx context.Context, node *yaml.Node, env Env) (Store, error)

// DriverInfo describes a registered storage driver.
type DriverInfo struct {
	Name string
	Open OpenFunc
}
