package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flemzord/companion/internal/cron"
	"github.com/flemzord/companion/internal/kv"
	"github.com/flemzord/companion/internal/session"
)

// Validate checks the structural validity of a Config: version, log
// settings, storage driver, endpoint URLs and timeouts, session defaults,
// the probe schedule and telemetry.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	errs = append(errs, validateLog(cfg.Log)...)

	if !kv.Registered(cfg.Storage.Driver) {
		errs = append(errs, fmt.Errorf("config: storage.driver: unknown driver %q (available: %s)",
			cfg.Storage.Driver, strings.Join(kv.Drivers(), ", ")))
	}

	if err := cfg.Inference.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: inference: %w", err))
	}

	for name, sc := range cfg.Sessions {
		if !session.ValidChatType(name) {
			errs = append(errs, fmt.Errorf("config: sessions: invalid chat type %q", name))
			continue
		}
		merged := session.DefaultConfig(name).Merge(sc.Config)
		if err := merged.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("config: sessions.%s: %w", name, err))
		}
	}

	if cfg.Probe.Schedule != "" {
		if err := cron.ParseSchedule(cfg.Probe.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("config: probe.schedule: %w", err))
		}
	}

	if err := cfg.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}

	return errors.Join(errs...)
}

func validateLog(l LogConfig) []error {
	var errs []error
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: log.level: unknown level %q", l.Level))
	}
	switch l.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format: unknown format %q (supported: text, json)", l.Format))
	}
	return errs
}
