// Package app assembles configuration, storage, sessions and missions into
// a running companion, shared by every CLI command.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/flemzord/companion/internal/config"
	"github.com/flemzord/companion/internal/kv"
	"github.com/flemzord/companion/internal/mission"
	"github.com/flemzord/companion/internal/security"
	"github.com/flemzord/companion/internal/session"
	"github.com/flemzord/companion/internal/telemetry"
)

// Params configures Open.
type Params struct {
	// ConfigPath is an explicit configuration file. When empty the file is
	// discovered; without any file the built-in defaults apply.
	ConfigPath string

	// DataDir overrides DefaultDataDir.
	DataDir string

	// LogLevel overrides the configured level when non-nil.
	LogLevel *slog.Level

	// LogWriter receives log output. Defaults to os.Stderr.
	LogWriter io.Writer

	// NewGenerator replaces the HTTP inference client, for tests.
	NewGenerator session.GeneratorFactory
}

// App holds the opened components. Close releases them.
type App struct {
	Config     *config.Config
	ConfigPath string
	DataDir    string
	Logger     *slog.Logger
	Redactor   *security.Redactor
	Store      kv.Store
	Sessions   *session.Registry
	Missions   *mission.Runner

	shutdownTracing telemetry.ShutdownFunc
}

// Open loads and validates the configuration, then opens storage, tracing
// and one session per configured chat.
func Open(ctx context.Context, p Params) (*App, error) {
	cfg, path, err := config.LoadOrDefault(p.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	redactor := security.NewRedactor()
	redactor.AddHeaders(cfg.Inference.Headers)
	redactor.AddLiteral(cfg.Gateway.Auth.BearerToken)
	redactor.AddLiteral(cfg.Gateway.Auth.BasicPass)

	logCfg := cfg.Log
	level := logCfg.SlogLevel()
	if p.LogLevel != nil {
		level = *p.LogLevel
	}
	w := p.LogWriter
	if w == nil {
		w = os.Stderr
	}
	logger := NewLogger(w, logCfg.Format, level, redactor)

	dataDir := p.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	a := &App{
		Config:     cfg,
		ConfigPath: path,
		DataDir:    dataDir,
		Logger:     logger,
		Redactor:   redactor,
		Sessions:   session.NewRegistry(),
	}

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	a.shutdownTracing = shutdown

	store, err := kv.Open(ctx, cfg.Storage.Driver, cfg.Storage.Node(), kv.Env{DataDir: dataDir, Logger: logger})
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	a.Store = store

	for _, name := range cfg.ChatTypes() {
		sc := cfg.Session(name)
		m, err := session.New(ctx, session.Options{
			ChatType:     name,
			KV:           store,
			Config:       sc.Config,
			Endpoint:     cfg.Inference,
			NewGenerator: p.NewGenerator,
			Logger:       logger,
			Window:       sc.Window,
		})
		if err == nil {
			err = a.Sessions.Add(m)
		}
		if err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
	}

	main, _ := a.Sessions.Get(session.ChatMain)
	a.Missions = mission.NewRunner(ctx, main, store, logger)

	logger.Debug("companion opened",
		"config", path,
		"data_dir", dataDir,
		"storage", cfg.Storage.Driver,
		"chats", a.Sessions.Chats(),
	)
	return a, nil
}

// Session returns the manager of chatType.
func (a *App) Session(chatType string) (*session.Manager, error) {
	m, ok := a.Sessions.Get(chatType)
	if !ok {
		return nil, fmt.Errorf("app: unknown chat %q (available: %v)", chatType, a.Sessions.Chats())
	}
	return m, nil
}

// Close waits for background work, then releases storage and tracing.
func (a *App) Close(ctx context.Context) error {
	if a.Missions != nil {
		a.Missions.Wait()
	}
	a.Sessions.Close()

	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(ctx))
	}
	return errors.Join(errs...)
}

// NewLogger returns a logger writing text or JSON to w, with secrets known
// to redactor masked.
func NewLogger(w io.Writer, format string, level slog.Level, redactor *security.Redactor) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if format == "json" {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	if redactor == nil {
		redactor = security.NewRedactor()
	}
	return slog.New(security.NewRedactingHandler(inner, redactor))
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/companion if set, otherwise ~/.local/share/companion.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "companion")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "companion")
}
