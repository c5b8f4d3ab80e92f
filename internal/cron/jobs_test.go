package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/flemzord/companion/internal/inference"
)

type fakeProber struct {
	chat      string
	status    inference.Status
	modelsErr error
	probes    int
	refreshes int
}

func (p *fakeProber) Chat() string { return p.chat }

func (p *fakeProber) TestConnection(context.Context) inference.Status {
	p.probes++
	return p.status
}

func (p *fakeProber) FetchAvailableModels(context.Context) ([]string, error) {
	p.refreshes++
	return nil, p.modelsErr
}

func TestProbeJob_Defaults(t *testing.T) {
	j := &ProbeJob{}
	if j.Name() != "connection_probe" {
		t.Errorf("name = %q", j.Name())
	}
	if j.Schedule() != DefaultProbeSchedule {
		t.Errorf("schedule = %q", j.Schedule())
	}
	j.ScheduleExpr = "@every 1m"
	if j.Schedule() != "@every 1m" {
		t.Errorf("schedule = %q", j.Schedule())
	}
}

func TestProbeJob_Run(t *testing.T) {
	up := &fakeProber{chat: "main", status: inference.Status{Kind: inference.StatusConnected}}
	down := &fakeProber{chat: "debate", status: inference.Status{Kind: inference.StatusDisconnected}}
	j := &ProbeJob{Targets: []Prober{up, down}, RefreshModels: true}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if up.probes != 1 || down.probes != 1 {
		t.Errorf("probes = %d/%d, want 1/1", up.probes, down.probes)
	}
	if up.refreshes != 1 || down.refreshes != 0 {
		t.Errorf("refreshes = %d/%d, want 1/0", up.refreshes, down.refreshes)
	}
}

func TestProbeJob_RefreshError(t *testing.T) {
	failing := &fakeProber{chat: "main", status: inference.Status{Kind: inference.StatusConnected}, modelsErr: errors.New("list failed")}
	j := &ProbeJob{Targets: []Prober{failing}, RefreshModels: true}
	if err := j.Run(context.Background()); err == nil {
		t.Error("expected refresh error")
	}
}

func TestProbeJob_Canceled(t *testing.T) {
	p := &fakeProber{chat: "main"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	j := &ProbeJob{Targets: []Prober{p}}
	if err := j.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if p.probes != 0 {
		t.Error("canceled run should not probe")
	}
}
