// Package kvtest provides a conformance suite for kv.Store implementations
// and a store whose operations can be made to fail.
package kvtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/flemzord/companion/internal/kv"
)

// Run exercises the behavior every kv.Store must provide. newStore is
// called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) kv.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
		}
	})

	t.Run("set get overwrite", func(t *testing.T) {
		s := newStore(t)
		if err := s.Set(ctx, "k", []byte("one")); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := s.Set(ctx, "k", []byte("two")); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, err := s.Get(ctx, "k")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != "two" {
			t.Errorf("Get = %q, want %q", got, "two")
		}
	})

	t.Run("delete idempotent", func(t *testing.T) {
		s := newStore(t)
		if err := s.Set(ctx, "k", []byte("v")); err != nil {
			t.Fatalf("Set: %v", err)
		}
		for i := range 2 {
			if err := s.Delete(ctx, "k"); err != nil {
				t.Fatalf("Delete #%d: %v", i, err)
			}
		}
		if _, err := s.Get(ctx, "k"); !errors.Is(err, kv.ErrNotFound) {
			t.Errorf("Get after delete err = %v, want ErrNotFound", err)
		}
	})

	t.Run("keys are isolated", func(t *testing.T) {
		s := newStore(t)
		_ = s.Set(ctx, "history:main", []byte("main"))
		_ = s.Set(ctx, "history:debate", []byte("debate"))
		_ = s.Delete(ctx, "history:main")
		got, err := s.Get(ctx, "history:debate")
		if err != nil || string(got) != "debate" {
			t.Errorf("Get(debate) = %q, %v", got, err)
		}
	})

	t.Run("concurrent writers", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				key := fmt.Sprintf("k%d", i)
				if err := s.Set(ctx, key, []byte(key)); err != nil {
					t.Errorf("Set(%s): %v", key, err)
				}
			}()
		}
		wg.Wait()
		for i := range 8 {
			key := fmt.Sprintf("k%d", i)
			if got, err := s.Get(ctx, key); err != nil || string(got) != key {
				t.Errorf("Get(%s) = %q, %v", key, got, err)
			}
		}
	})
}

// FailingStore wraps a kv.Store and returns Err from writes while Fail is set.
// Counters record how many writes were attempted.
type FailingStore struct {
	kv.Store
	Err  error
	Fail atomic.Bool

	SetCalls    atomic.Int64
	DeleteCalls atomic.Int64
}

// NewFailingStore returns a FailingStore backed by an in-memory store with
// failures enabled.
func NewFailingStore() *FailingStore {
	f := &FailingStore{Store: kv.NewMemory(), Err: errors.New("kvtest: write failed")}
	f.Fail.Store(true)
	return f
}

// Set implements kv.Store.
func (f *FailingStore) Set(ctx context.Context, key string, value []byte) error {
	f.SetCalls.Add(1)
	if f.Fail.Load() {
		return f.Err
	}
	return f.Store.Set(ctx, key, value)
}

// Delete implements kv.Store.
func (f *FailingStore) Delete(ctx context.Context, key string) error {
	f.DeleteCalls.Add(1)
	if f.Fail.Load() {
		return f.Err
	}
	return f.Store.Delete(ctx, key)
}
