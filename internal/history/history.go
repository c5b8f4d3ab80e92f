// Package history keeps the conversation log of one chat and mirrors it to
// a key-value store.
//
// Persistence is best-effort: a failed write is logged and counted but
// never fails the in-memory operation, so the log a caller sees is always
// the authoritative one.
package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/flemzord/companion/internal/kv"
	"github.com/flemzord/companion/internal/metrics"
	"github.com/flemzord/companion/pkg/chat"
)

// Key returns the storage key of a chat's conversation log.
func Key(chatType string) string {
	return "history:" + chatType
}

// Store is the conversation log of a single chat. It is safe for
// concurrent use; appends are serialized.
type Store struct {
	chat   string
	kv     kv.Store
	logger *slog.Logger

	mu    sync.RWMutex
	turns []chat.ChatTurn
	rev   uint64

	// writeMu orders snapshot writes so an older snapshot never
	// overwrites a newer one.
	writeMu sync.Mutex
	written uint64
}

// Open creates the store for chatType and loads its persisted log.
func Open(ctx context.Context, store kv.Store, chatType string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Store{
		chat:   chatType,
		kv:     store,
		logger: logger.With("chat", chatType),
	}
	s.Load(ctx)
	return s
}

// Chat returns the chat type this store belongs to.
func (s *Store) Chat() string { return s.chat }

// Load replaces the in-memory log with the persisted snapshot. A missing or
// unreadable snapshot yields an empty log.
func (s *Store) Load(ctx context.Context) {
	turns, err := s.read(ctx)
	if err != nil {
		s.logger.Warn("history: load failed, starting empty", "error", err)
	}

	s.mu.Lock()
	s.turns = turns
	s.rev++
	n := len(s.turns)
	s.mu.Unlock()

	metrics.SetHistoryTurns(s.chat, n)
}

func (s *Store) read(ctx context.Context) ([]chat.ChatTurn, error) {
	data, err := s.kv.Get(ctx, Key(s.chat))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return chat.DecodeLog(data)
}

// Append adds turn to the end of the log and persists the new snapshot.
func (s *Store) Append(ctx context.Context, turn chat.ChatTurn) {
	s.mu.Lock()
	s.turns = append(s.turns, turn)
	s.rev++
	rev := s.rev
	snapshot := s.copyLocked()
	s.mu.Unlock()

	metrics.SetHistoryTurns(s.chat, len(snapshot))
	s.persist(ctx, rev, snapshot)
}

// All returns a copy of the log in creation order.
func (s *Store) All() []chat.ChatTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// Windowed returns the last n turns, or fewer when the log is shorter.
func (s *Store) Windowed(n int) []chat.ChatTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return chat.Window(s.turns, n)
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Clear empties the log and deletes the persisted snapshot. It is
// idempotent.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.turns = nil
	s.rev++
	rev := s.rev
	s.mu.Unlock()

	metrics.SetHistoryTurns(s.chat, 0)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.written = rev
	if err := s.kv.Delete(ctx, Key(s.chat)); err != nil {
		metrics.IncPersistenceError("history_delete")
		s.logger.Warn("history: delete failed", "error", err)
	}
}

func (s *Store) copyLocked() []chat.ChatTurn {
	if len(s.turns) == 0 {
		return nil
	}
	out := make([]chat.ChatTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Store) persist(ctx context.Context, rev uint64, snapshot []chat.ChatTurn) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if rev <= s.written {
		return
	}

	data, err := chat.EncodeLog(snapshot)
	if err == nil {
		err = s.kv.Set(ctx, Key(s.chat), data)
	}
	if err != nil {
		metrics.IncPersistenceError("history_write")
		s.logger.Warn("history: persist failed", "turns", len(snapshot), "error", err)
		return
	}
	s.written = rev
}
