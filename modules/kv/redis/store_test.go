package redis

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/companion/internal/kv"
	"github.com/flemzord/companion/internal/kv/kvtest"
)

func TestConfig_Defaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.Addr != defaultAddr || c.Prefix != defaultPrefix || c.DialTimeout != defaultDialTimeout {
		t.Fatalf("defaults = %+v", c)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "valid", cfg: Config{DB: 2, TTL: time.Hour}},
		{name: "negative db", cfg: Config{DB: -1}, wantErr: "db must be non-negative"},
		{name: "negative ttl", cfg: Config{TTL: -time.Second}, wantErr: "ttl must be non-negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestStore_KeyPrefix(t *testing.T) {
	s := &Store{cfg: Config{Prefix: "app:"}}
	if got := s.key("history:main"); got != "app:history:main" {
		t.Errorf("key = %q", got)
	}
}

func TestOpen_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Open(ctx, Config{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	if err == nil {
		t.Fatal("expected ping failure against a closed port")
	}
}

// TestStore_Conformance runs against a live server when COMPANION_TEST_REDIS
// holds its address.
func TestStore_Conformance(t *testing.T) {
	addr := os.Getenv("COMPANION_TEST_REDIS")
	if addr == "" {
		t.Skip("COMPANION_TEST_REDIS not set")
	}
	kvtest.Run(t, func(t *testing.T) kv.Store {
		s, err := Open(context.Background(), Config{Addr: addr, Prefix: "companion-test:" + t.Name() + ":"})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
