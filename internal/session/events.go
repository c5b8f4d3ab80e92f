package session

import (
	"time"

	"github.com/flemzord/companion/internal/inference"
	"github.com/flemzord/companion/pkg/chat"
)

// EventType identifies what changed in a session.
type EventType string

const (
	EventProcessing     EventType = "processing"
	EventStatus         EventType = "status"
	EventModels         EventType = "models"
	EventError          EventType = "error"
	EventHistoryCleared EventType = "history_cleared"
	EventTurnAppended   EventType = "turn_appended"
	EventConfig         EventType = "config"
)

// Event is a change notification sent to subscribers.
type Event struct {
	Type       EventType         `json:"type"`
	Chat       string            `json:"chat"`
	At         time.Time         `json:"at"`
	Processing *bool             `json:"processing,omitempty"`
	Status     *inference.Status `json:"status,omitempty"`
	Models     []string          `json:"models,omitempty"`
	Error      string            `json:"error,omitempty"`
	Turn       *chat.ChatTurn    `json:"turn,omitempty"`
	Config     *Config           `json:"config,omitempty"`
}

// Subscribe returns a channel receiving session events and a function that
// ends the subscription. Events are dropped for a subscriber whose buffer
// is full.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subMu.Unlock()

	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

func (m *Manager) emit(ev Event) {
	ev.Chat = m.chat
	ev.At = time.Now().UTC()

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (m *Manager) closeSubscribers() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}
