// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for companion.
package config

import (
	"log/slog"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/companion/internal/gateway"
	"github.com/flemzord/companion/internal/inference"
	"github.com/flemzord/companion/internal/session"
	"github.com/flemzord/companion/internal/telemetry"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Log       LogConfig                `yaml:"log"`
	Inference inference.EndpointConfig `yaml:"inference"`
	Storage   StorageConfig            `yaml:"storage"`

	// Sessions maps chat types to their configured defaults. The main and
	// debate chats always exist.
	Sessions map[string]SessionConfig `yaml:"sessions"`

	Gateway   gateway.Config   `yaml:"gateway"`
	Probe     ProbeConfig      `yaml:"probe"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// SlogLevel parses Level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// StorageConfig selects a kv driver. Each driver reads its own section.
type StorageConfig struct {
	Driver string    `yaml:"driver"`
	SQLite   yaml.Node `yaml:"sqlite"`
	Redis    yaml.Node `yaml:"redis"`
	Postgres yaml.Node `yaml:"postgres"`
}

// Node returns the configuration section of the selected driver, or nil
// when the section is absent.
func (s *StorageConfig) Node() *yaml.Node {
	var n *yaml.Node
	switch s.Driver {
	case "sqlite":
		n = &s.SQLite
	case "redis":
		n = &s.Redis
	case "postgres":
		n = &s.Postgres
	}
	if n == nil || n.Kind == 0 {
		return nil
	}
	return n
}

// SessionConfig is the configured default of one chat.
type SessionConfig struct {
	session.Config `yaml:",inline"`

	// Window is the number of turns sent with each prompt. Zero keeps the
	// default; negative sends no history.
	Window int `yaml:"window"`
}

// ProbeConfig controls the periodic connection probe run by serve.
type ProbeConfig struct {
	// Schedule is a cron expression. Empty disables the probe.
	Schedule      string `yaml:"schedule"`
	RefreshModels bool   `yaml:"refresh_models"`
}

// ChatTypes returns the configured chat types plus the built-in ones.
func (c *Config) ChatTypes() []string {
	seen := map[string]bool{session.ChatMain: true, session.ChatDebate: true}
	out := []string{session.ChatMain, session.ChatDebate}
	for name := range c.Sessions {
		name = strings.TrimSpace(name)
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// Session returns the configured defaults for chatType. A session without
// its own server address uses the inference section's.
func (c *Config) Session(chatType string) SessionConfig {
	sc := c.Sessions[chatType]
	if sc.ServerAddress == "" {
		sc.ServerAddress = c.Inference.BaseURL
		if len(sc.FallbackURLs) == 0 {
			sc.FallbackURLs = slices.Clone(c.Inference.FallbackURLs)
		}
	}
	return sc
}
