// Package redis provides a kv.Store backed by a Redis server. Importing it
// registers the "redis" storage driver.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/flemzord/companion/internal/kv"
	"github.com/go-redis/redis/v8"
	"gopkg.in/yaml.v3"
)

func init() {
	kv.Register(kv.DriverInfo{Name: "redis", Open: openFromNode})
}

func openFromNode(ctx context.Context, node *yaml.Node, _ kv.Env) (kv.Store, error) {
	var cfg Config
	if node != nil && !node.IsZero() {
		if err := node.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("redis: decoding config: %w", err)
		}
	}
	return Open(ctx, cfg)
}

// Store is a kv.Store persisted in Redis string values.
type Store struct {
	cli *redis.Client
	cfg Config
}

var _ kv.Store = (*Store)(nil)

// Open connects to Redis and verifies the connection with PING.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cli := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Store{cli: cli, cfg: cfg}, nil
}

func (s *Store) key(k string) string { return s.cfg.Prefix + k }

// Get implements kv.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.cli.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return v, nil
}

// Set implements kv.Store.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.cli.Set(ctx, s.key(key), value, s.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Delete implements kv.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.cli.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis: delete %s: %w", key, err)
	}
	return nil
}

// Close implements kv.Store.
func (s *Store) Close() error { return s.cli.Close() }
