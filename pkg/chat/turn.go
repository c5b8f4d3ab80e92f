// Package chat defines the conversation data model shared by the session
// layer, the persistence drivers and the HTTP gateway.
package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultWindow is the number of most recent turns included when a prompt
// is built from a conversation.
const DefaultWindow = 10

// Origin identifies who produced a turn.
type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
)

// Valid reports whether o is one of the known origins.
func (o Origin) Valid() bool {
	return o == OriginUser || o == OriginAssistant
}

// Label returns the role name used in prompt transcripts.
func (o Origin) Label() string {
	if o == OriginUser {
		return "User"
	}
	return "Assistant"
}

// ParseOrigin converts a string to an Origin.
func ParseOrigin(s string) (Origin, error) {
	o := Origin(s)
	if !o.Valid() {
		return "", fmt.Errorf("chat: unknown origin %q", s)
	}
	return o, nil
}

// ChatTurn is one message in a conversation. Turns are immutable once created.
type ChatTurn struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Origin    Origin    `json:"origin"`
	CreatedAt time.Time `json:"timestamp"`
}

// NewTurn creates a turn with a fresh identifier stamped at the current time.
func NewTurn(origin Origin, content string) ChatTurn {
	return ChatTurn{
		ID:        uuid.NewString(),
		Content:   content,
		Origin:    origin,
		CreatedAt: time.Now().UTC(),
	}
}

// Window returns the last n turns of log, or fewer when the log is shorter.
// The returned slice shares no memory with log.
func Window(log []ChatTurn, n int) []ChatTurn {
	if n <= 0 || len(log) == 0 {
		return nil
	}
	if n > len(log) {
		n = len(log)
	}
	out := make([]ChatTurn, n)
	copy(out, log[len(log)-n:])
	return out
}
