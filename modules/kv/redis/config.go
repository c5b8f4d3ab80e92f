package redis

import (
	"errors"
	"fmt"
	"time"
)

const (
	defaultAddr        = "localhost:6379"
	defaultPrefix      = "companion:"
	defaultDialTimeout = 5 * time.Second
)

// Config holds the Redis storage driver configuration.
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Prefix is prepended to every key. Defaults to "companion:".
	Prefix string `yaml:"prefix"`

	// TTL expires values after the given duration. Zero keeps them forever.
	TTL time.Duration `yaml:"ttl"`

	DialTimeout time.Duration `yaml:"dial_timeout"`
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = defaultAddr
	}
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = defaultDialTimeout
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.DB < 0 {
		errs = append(errs, fmt.Errorf("redis: db must be non-negative, got %d", c.DB))
	}
	if c.TTL < 0 {
		errs = append(errs, fmt.Errorf("redis: ttl must be non-negative, got %s", c.TTL))
	}
	if c.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("redis: dial_timeout must be non-negative, got %s", c.DialTimeout))
	}
	return errors.Join(errs...)
}
