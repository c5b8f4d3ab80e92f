package cron

import (
	"context"
	"errors"
	"log/slog"

	"github.com/flemzord/companion/internal/inference"
)

// DefaultProbeSchedule is used when a ProbeJob has no schedule.
const DefaultProbeSchedule = "*/5 * * * *"

// Prober checks the connection of one chat. session.Manager implements it.
type Prober interface {
	Chat() string
	TestConnection(ctx context.Context) inference.Status
	FetchAvailableModels(ctx context.Context) ([]string, error)
}

// ProbeJob re-checks the connection of every target and, optionally,
// refreshes their model lists.
type ProbeJob struct {
	Targets       []Prober
	ScheduleExpr  string
	RefreshModels bool
	Logger        *slog.Logger
}

var _ Job = (*ProbeJob)(nil)

// Name implements Job.
func (j *ProbeJob) Name() string { return "connection_probe" }

// Schedule implements Job.
func (j *ProbeJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return DefaultProbeSchedule
}

// Run probes each target in turn. Unhealthy targets are logged; model
// refresh failures are returned joined.
func (j *ProbeJob) Run(ctx context.Context) error {
	logger := j.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var errs []error
	for _, t := range j.Targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		st := t.TestConnection(ctx)
		if !st.Healthy() {
			logger.Warn("cron: probe unhealthy", "chat", t.Chat(), "status", st.String())
			continue
		}
		if j.RefreshModels {
			if _, err := t.FetchAvailableModels(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
