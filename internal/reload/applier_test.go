package reload

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"github.com/flemzord/companion/internal/config"
	"github.com/flemzord/companion/internal/inference"
	"github.com/flemzord/companion/internal/inference/inferencetest"
	"github.com/flemzord/companion/internal/kv"
	"github.com/flemzord/companion/internal/session"
)

const baseConfig = `
version: "1"
storage:
  driver: memory
sessions:
  main:
    model: phi3
    preset: Balanced
`

func parse(t *testing.T, raw string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return cfg
}

func newRegistry(t *testing.T, cfg *config.Config) *session.Registry {
	t.Helper()
	store := kv.NewMemory()
	reg := session.NewRegistry()
	for _, name := range cfg.ChatTypes() {
		m, err := session.New(context.Background(), session.Options{
			ChatType: name,
			KV:       store,
			Config:   cfg.Session(name).Config,
			Endpoint: cfg.Inference,
			NewGenerator: func(inference.EndpointConfig) inference.Generator {
				return &inferencetest.Stub{}
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := reg.Add(m); err != nil {
			t.Fatal(err)
		}
	}
	t.Cleanup(reg.Close)
	return reg
}

func TestApply_ChangedSession(t *testing.T) {
	cur := parse(t, baseConfig)
	reg := newRegistry(t, cur)
	a := NewApplier(cur, reg, nil)

	next := parse(t, `
version: "1"
storage:
  driver: memory
sessions:
  main:
    model: llama3
    preset: Balanced
  debate:
    preset: Creative
`)
	changed, err := a.Apply(context.Background(), next)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !slices.Equal(changed, []string{"debate", "main"}) {
		t.Errorf("changed = %v", changed)
	}
	m, _ := reg.Get(session.ChatMain)
	if m.Config().Model != "llama3" {
		t.Errorf("main model = %q", m.Config().Model)
	}
	d, _ := reg.Get(session.ChatDebate)
	if d.Config().Preset != "Creative" {
		t.Errorf("debate preset = %q", d.Config().Preset)
	}
}

func TestApply_KeepsRuntimeSettings(t *testing.T) {
	cur := parse(t, baseConfig)
	reg := newRegistry(t, cur)
	a := NewApplier(cur, reg, nil)

	m, _ := reg.Get(session.ChatMain)
	model := "runtime-model"
	if _, err := m.Configure(context.Background(), session.Update{Model: &model}); err != nil {
		t.Fatal(err)
	}

	// Only the log section changed.
	changed, err := a.Apply(context.Background(), parse(t, baseConfig+"log:\n  level: debug\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(changed) != 0 {
		t.Errorf("changed = %v", changed)
	}
	if m.Config().Model != "runtime-model" {
		t.Errorf("runtime setting overwritten: %q", m.Config().Model)
	}
}

func TestApply_InvalidSessionReported(t *testing.T) {
	cur := parse(t, baseConfig)
	reg := newRegistry(t, cur)
	a := NewApplier(cur, reg, nil)

	next := parse(t, baseConfig)
	sc := next.Sessions["main"]
	sc.Preset = "Nope"
	next.Sessions["main"] = sc

	if _, err := a.Apply(context.Background(), next); err == nil {
		t.Fatal("expected error for unknown preset")
	}
	m, _ := reg.Get(session.ChatMain)
	if m.Config().Preset != "Balanced" {
		t.Errorf("preset = %q", m.Config().Preset)
	}
}

func TestReload_File(t *testing.T) {
	cur := parse(t, baseConfig)
	reg := newRegistry(t, cur)
	a := NewApplier(cur, reg, nil)

	path := filepath.Join(t.TempDir(), config.FileName)
	writeFile(t, path, "version: \"1\"\nstorage:\n  driver: memory\nsessions:\n  main:\n    model: mistral:7b\n")
	changed, err := a.Reload(context.Background(), path)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !slices.Equal(changed, []string{"main"}) {
		t.Errorf("changed = %v", changed)
	}

	writeFile(t, path, "version: \"2\"\n")
	if _, err := a.Reload(context.Background(), path); err == nil {
		t.Error("invalid file should be rejected")
	}
}

func TestDiff(t *testing.T) {
	prev := session.Config{ServerAddress: "http://a:11434", Model: "m", Preset: "Balanced"}

	if u := diff(prev, prev); !u.Empty() {
		t.Errorf("identical configs should produce no update: %+v", u)
	}
	if u := diff(prev, session.Config{}); !u.Empty() {
		t.Errorf("cleared fields should be ignored: %+v", u)
	}
	u := diff(prev, session.Config{ServerAddress: "http://b:11434", FallbackURLs: []string{"http://c:11434"}})
	if u.ServerAddress == nil || *u.ServerAddress != "http://b:11434" || len(u.FallbackURLs) != 1 {
		t.Errorf("update = %+v", u)
	}
	if u.Model != nil || u.Preset != nil {
		t.Errorf("unchanged fields set: %+v", u)
	}
}
