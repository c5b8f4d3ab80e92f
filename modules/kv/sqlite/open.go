// Package sqlite provides a kv.Store backed by an embedded SQLite database.
// Importing it registers the "sqlite" storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flemzord/companion/internal/kv"
	"gopkg.in/yaml.v3"

	_ "modernc.org/sqlite" // SQLite driver registration
)

func init() {
	kv.Register(kv.DriverInfo{Name: "sqlite", Open: openFromNode})
}

func openFromNode(ctx context.Context, node *yaml.Node, env kv.Env) (kv.Store, error) {
	var cfg Config
	if node != nil && !node.IsZero() {
		if err := node.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("sqlite: decoding config: %w", err)
		}
	}
	cfg.defaults(env.DataDir)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return Open(ctx, cfg)
}

// Open opens (creating when needed) the database described by cfg.
//
// A single connection is used since SQLite serializes writes. The schema is
// migrated automatically.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults("")
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	db.SetMaxOpenConns(1)

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, path: cfg.Path}, nil
}
