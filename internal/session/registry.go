package session

import (
	"fmt"
	"slices"
	"sync"
)

// Registry holds one Manager per chat type.
type Registry struct {
	mu       sync.RWMutex
	managers map[string]*Manager
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{managers: make(map[string]*Manager)}
}

// Add registers m under its chat type.
func (r *Registry) Add(m *Manager) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.managers[m.Chat()]; dup {
		return fmt.Errorf("session: chat %q already registered", m.Chat())
	}
	r.managers[m.Chat()] = m
	return nil
}

// Get returns the manager of chatType.
func (r *Registry) Get(chatType string) (*Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.managers[chatType]
	return m, ok
}

// Chats returns the registered chat types, sorted.
func (r *Registry) Chats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.managers))
	for name := range r.managers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Close closes every manager.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, m := range r.managers {
		m.Close()
		delete(r.managers, name)
	}
}
