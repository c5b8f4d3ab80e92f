// Package postgres provides a kv.Store backed by a PostgreSQL table.
// Importing it registers the "postgres" storage driver.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/companion/internal/kv"
)

func init() {
	kv.Register(kv.DriverInfo{Name: "postgres", Open: openFromNode})
}

func openFromNode(ctx context.Context, node *yaml.Node, _ kv.Env) (kv.Store, error) {
	var cfg Config
	if node != nil && !node.IsZero() {
		if err := node.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("postgres: decoding config: %w", err)
		}
	}
	return Open(ctx, cfg)
}

// Store is a kv.Store persisted as BYTEA rows.
type Store struct {
	pool *pgxpool.Pool
	q    queries
}

var _ kv.Store = (*Store)(nil)

type queries struct {
	create, get, set, del string
}

func queriesFor(table string) queries {
	t := pgx.Identifier{table}.Sanitize()
	return queries{
		create: `CREATE TABLE IF NOT EXISTS ` + t + ` (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		get: `SELECT value FROM ` + t + ` WHERE key = $1`,
		set: `INSERT INTO ` + t + ` (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE
			SET value = EXCLUDED.value, updated_at = now()`,
		del: `DELETE FROM ` + t + ` WHERE key = $1`,
	}
}

// Open connects to the server and creates the table when needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connecting: %w", err)
	}

	s := &Store{pool: pool, q: queriesFor(cfg.Table)}
	if _, err := pool.Exec(ctx, s.q.create); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: creating table %s: %w", cfg.Table, err)
	}
	return s, nil
}

// Get implements kv.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, s.q.get, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get %s: %w", key, err)
	}
	return value, nil
}

// Set implements kv.Store.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if _, err := s.pool.Exec(ctx, s.q.set, key, value); err != nil {
		return fmt.Errorf("postgres: set %s: %w", key, err)
	}
	return nil
}

// Delete implements kv.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, s.q.del, key); err != nil {
		return fmt.Errorf("postgres: delete %s: %w", key, err)
	}
	return nil
}

// Close implements kv.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
