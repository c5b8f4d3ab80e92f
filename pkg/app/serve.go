package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flemzord/companion/internal/cron"
	"github.com/flemzord/companion/internal/gateway"
	"github.com/flemzord/companion/internal/metrics"
	"github.com/flemzord/companion/internal/reload"
)

// ServeOptions tweaks Serve.
type ServeOptions struct {
	// Bind overrides gateway.bind when set.
	Bind string

	// Ready, when set, is called with the listening address once the
	// gateway accepts connections.
	Ready func(addr string)

	// WatchInterval is the configuration file poll period. Zero uses the
	// default; negative disables watching. SIGHUP always reloads.
	WatchInterval time.Duration
}

// Serve runs the gateway and the optional probe schedule until ctx is done
// or SIGINT/SIGTERM is received. Edits to the session sections of the
// configuration file are applied without a restart.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()

	gwCfg := a.Config.Gateway
	if opts.Bind != "" {
		gwCfg.Bind = opts.Bind
	}
	gw, err := gateway.New(gateway.Options{
		Config:   gwCfg,
		Sessions: a.Sessions,
		Missions: a.Missions,
		Logger:   a.Logger,
	})
	if err != nil {
		return err
	}

	// Initial probe so /health reflects reality from the start.
	for _, name := range a.Sessions.Chats() {
		if m, ok := a.Sessions.Get(name); ok {
			st := m.TestConnection(ctx)
			a.Logger.Info("session status", "chat", name, "status", st.String())
		}
	}

	scheduler := cron.NewScheduler(a.Logger)
	if expr := a.Config.Probe.Schedule; expr != "" {
		job := &cron.ProbeJob{
			ScheduleExpr:  expr,
			RefreshModels: a.Config.Probe.RefreshModels,
			Logger:        a.Logger,
		}
		for _, name := range a.Sessions.Chats() {
			if m, ok := a.Sessions.Get(name); ok {
				job.Targets = append(job.Targets, m)
			}
		}
		if err := scheduler.RegisterJob(job); err != nil {
			return err
		}
	}

	if err := gw.Start(ctx); err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		_ = gw.Stop(context.Background())
		return err
	}
	if opts.Ready != nil {
		opts.Ready(gw.Addr())
	}

	a.watchConfig(ctx, opts.WatchInterval)
	a.Logger.Info("shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = errors.Join(scheduler.Stop(stopCtx), gw.Stop(stopCtx))
	a.Logger.Info("shutdown complete")
	return err
}

// watchConfig reloads the configuration file on change or SIGHUP until ctx
// is done.
func (a *App) watchConfig(ctx context.Context, interval time.Duration) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var changes <-chan struct{}
	if a.ConfigPath != "" && interval >= 0 {
		w := reload.NewWatcher(a.ConfigPath, interval)
		w.Start(ctx)
		defer w.Stop()
		changes = w.Changes()
	}
	applier := reload.NewApplier(a.Config, a.Sessions, a.Logger)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		case <-changes:
		}
		if a.ConfigPath == "" {
			a.Logger.Warn("reload requested but no configuration file is in use")
			continue
		}
		if _, err := applier.Reload(ctx, a.ConfigPath); err != nil {
			a.Logger.Error("configuration reload failed", "path", a.ConfigPath, "error", err)
		}
	}
}
