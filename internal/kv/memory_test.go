package kv_test

import (
	"context"
	"strings"
	"testing"

	"github.com/flemzord/companion/internal/kv"
	"github.com/flemzord/companion/internal/kv/kvtest"
	"gopkg.in/yaml.v3"
)

func TestMemory_Conformance(t *testing.T) {
	kvtest.Run(t, func(*testing.T) kv.Store { return kv.NewMemory() })
}

func TestMemory_CopiesValues(t *testing.T) {
	ctx := context.Background()
	m := kv.NewMemory()

	in := []byte("abc")
	_ = m.Set(ctx, "k", in)
	in[0] = 'X'

	got, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("stored value mutated through caller slice: %q", got)
	}
	got[1] = 'Y'
	again, _ := m.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("stored value mutated through returned slice: %q", again)
	}
}

func TestOpen_MemoryDriver(t *testing.T) {
	s, err := kv.Open(context.Background(), "memory", nil, kv.Env{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*kv.Memory); !ok {
		t.Fatalf("Open returned %T, want *kv.Memory", s)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := kv.Open(context.Background(), "nope", nil, kv.Env{})
	if err == nil || !strings.Contains(err.Error(), `unknown driver "nope"`) {
		t.Fatalf("err = %v, want unknown driver", err)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	kv.Register(kv.DriverInfo{Name: "memory", Open: func(context.Context, *yaml.Node, kv.Env) (kv.Store, error) { return nil, nil }})
}

func TestDrivers_Sorted(t *testing.T) {
	names := kv.Drivers()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("Drivers not sorted: %v", names)
		}
	}
	if !kv.Registered("memory") {
		t.Fatal("memory driver should be registered")
	}
}
