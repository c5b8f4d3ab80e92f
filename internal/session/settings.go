package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/flemzord/companion/internal/kv"
	"github.com/flemzord/companion/internal/metrics"
)

// Setting names stored under settings:<chat>:<name>.
const (
	settingServerAddress = "server_address"
	settingFallbackURLs  = "fallback_urls"
	settingModel         = "model"
	settingPrompt        = "personality_prompt"
	settingPreset        = "personality_preset"
)

func settingKey(chatType, name string) string {
	return "settings:" + chatType + ":" + name
}

// loadSettings overlays persisted settings on base. Unreadable values are
// logged and ignored.
func loadSettings(ctx context.Context, store kv.Store, chatType string, base Config, logger *slog.Logger) Config {
	get := func(name string) (string, bool) {
		v, err := store.Get(ctx, settingKey(chatType, name))
		if err != nil {
			if !errors.Is(err, kv.ErrNotFound) {
				logger.Warn("session: reading setting failed", "setting", name, "error", err)
			}
			return "", false
		}
		return string(v), true
	}

	var saved Config
	if v, ok := get(settingServerAddress); ok {
		saved.ServerAddress = v
	}
	if v, ok := get(settingModel); ok {
		saved.Model = v
	}
	if v, ok := get(settingPrompt); ok {
		saved.SystemPrompt = v
	}
	if v, ok := get(settingPreset); ok {
		saved.Preset = v
	}
	if v, ok := get(settingFallbackURLs); ok {
		if err := json.Unmarshal([]byte(v), &saved.FallbackURLs); err != nil {
			logger.Warn("session: ignoring unreadable fallback_urls", "error", err)
		}
	}

	cfg := base.Merge(saved)
	if err := cfg.Validate(); err != nil {
		logger.Warn("session: persisted settings invalid, using defaults", "error", err)
		return base
	}
	return cfg
}

// saveSettings persists the fields of cfg named by u. Failures are logged,
// not returned.
func saveSettings(ctx context.Context, store kv.Store, chatType string, u Update, cfg Config, logger *slog.Logger) {
	set := func(name string, value []byte) {
		if err := store.Set(ctx, settingKey(chatType, name), value); err != nil {
			metrics.IncPersistenceError("settings")
			logger.Warn("session: saving setting failed", "setting", name, "error", err)
		}
	}

	if u.ServerAddress != nil {
		set(settingServerAddress, []byte(cfg.ServerAddress))
	}
	if u.Model != nil {
		set(settingModel, []byte(cfg.Model))
	}
	if u.SystemPrompt != nil {
		set(settingPrompt, []byte(cfg.SystemPrompt))
	}
	if u.Preset != nil {
		set(settingPreset, []byte(cfg.Preset))
	}
	if u.FallbackURLs != nil {
		data, err := json.Marshal(cfg.FallbackURLs)
		if err == nil {
			set(settingFallbackURLs, data)
		}
	}
}
