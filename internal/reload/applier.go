package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/flemzord/companion/internal/config"
	"github.com/flemzord/companion/internal/session"
)

// Applier pushes edited session sections to the running managers.
//
// Only fields whose configured value changed are applied, so settings made
// at runtime through Configure survive unrelated edits. Removing a key from
// the file keeps the current value. Other sections need a restart.
type Applier struct {
	sessions *session.Registry
	logger   *slog.Logger

	mu      sync.Mutex
	current *config.Config
}

// NewApplier returns an applier starting from current.
func NewApplier(current *config.Config, sessions *session.Registry, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Applier{
		sessions: sessions,
		logger:   logger.With("component", "reload"),
		current:  current,
	}
}

// Reload loads and validates path, then applies it.
func (a *Applier) Reload(ctx context.Context, path string) ([]string, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return a.Apply(ctx, cfg)
}

// Apply reconfigures every chat whose section differs between the current
// and next configuration and returns the chats that changed. next becomes
// the current configuration even when some chats fail.
func (a *Applier) Apply(ctx context.Context, next *config.Config) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.current
	a.current = next
	a.warnRestartOnly(prev, next)

	var (
		changed []string
		errs    []error
	)
	for _, name := range a.sessions.Chats() {
		u := diff(prev.Session(name).Config, next.Session(name).Config)
		if u.Empty() {
			continue
		}
		m, _ := a.sessions.Get(name)
		if _, err := m.Configure(ctx, u); err != nil {
			errs = append(errs, fmt.Errorf("reload: %s: %w", name, err))
			continue
		}
		changed = append(changed, name)
	}
	for _, name := range next.ChatTypes() {
		if _, ok := a.sessions.Get(name); !ok {
			a.logger.Warn("new chat needs a restart", "chat", name)
		}
	}

	if len(changed) > 0 {
		a.logger.Info("configuration reloaded", "chats", changed)
	}
	return changed, errors.Join(errs...)
}

func (a *Applier) warnRestartOnly(prev, next *config.Config) {
	var sections []string
	if prev.Storage.Driver != next.Storage.Driver {
		sections = append(sections, "storage")
	}
	if prev.Gateway != next.Gateway {
		sections = append(sections, "gateway")
	}
	if prev.Probe != next.Probe {
		sections = append(sections, "probe")
	}
	if prev.Log != next.Log {
		sections = append(sections, "log")
	}
	if len(sections) > 0 {
		a.logger.Warn("changes need a restart", "sections", sections)
	}
}

// diff returns the update turning prev into next, ignoring cleared fields.
func diff(prev, next session.Config) session.Update {
	var u session.Update
	if next.ServerAddress != "" && next.ServerAddress != prev.ServerAddress {
		u.ServerAddress = &next.ServerAddress
	}
	if len(next.FallbackURLs) > 0 && !slices.Equal(next.FallbackURLs, prev.FallbackURLs) {
		u.FallbackURLs = next.FallbackURLs
	}
	if next.Model != "" && next.Model != prev.Model {
		u.Model = &next.Model
	}
	if next.SystemPrompt != "" && next.SystemPrompt != prev.SystemPrompt {
		u.SystemPrompt = &next.SystemPrompt
	}
	if next.Preset != "" && next.Preset != prev.Preset {
		u.Preset = &next.Preset
	}
	return u
}
