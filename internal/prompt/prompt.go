// Package prompt renders the plain-text transcript sent to the model.
package prompt

import (
	"strings"

	"github.com/flemzord/companion/internal/inference"
	"github.com/flemzord/companion/pkg/chat"
)

// SafetyClause follows the system prompt in every transcript.
const SafetyClause = "IMPORTANT INSTRUCTION: You are ONLY responding as the assistant. DO NOT generate text as if you were the user. DO NOT start your responses with 'User:' or attempt to continue the conversation as the user. Never simulate the user's side of the conversation."

// HistoryHeader introduces the windowed conversation history.
const HistoryHeader = "--- Conversation History ---"

// Config controls transcript rendering.
type Config struct {
	// SystemPrompt opens the transcript.
	SystemPrompt string

	// Window is the number of most recent turns included. Zero means
	// chat.DefaultWindow; a negative value includes no history.
	Window int
}

func (c Config) window() int {
	switch {
	case c.Window == 0:
		return chat.DefaultWindow
	case c.Window < 0:
		return 0
	}
	return c.Window
}

// Build renders a transcript ending with an open assistant turn:
//
//	<system prompt>
//
//	<safety clause>
//
//	--- Conversation History ---
//	User: ...
//	Assistant: ...
//	User: <input>
//	Assistant:
//
// The history block is omitted when there is no history. history must not
// contain the new input. A blank input returns inference.ErrEmptyInput.
func Build(history []chat.ChatTurn, input string, cfg Config) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", inference.ErrEmptyInput
	}

	var b strings.Builder
	b.WriteString(cfg.SystemPrompt)
	b.WriteString("\n\n")
	b.WriteString(SafetyClause)
	b.WriteString("\n\n")

	if recent := chat.Window(history, cfg.window()); len(recent) > 0 {
		b.WriteString(HistoryHeader)
		b.WriteByte('\n')
		for _, turn := range recent {
			b.WriteString(turn.Origin.Label())
			b.WriteString(": ")
			b.WriteString(turn.Content)
			b.WriteByte('\n')
		}
	}

	b.WriteString("User: ")
	b.WriteString(input)
	b.WriteString("\nAssistant: ")
	return b.String(), nil
}
