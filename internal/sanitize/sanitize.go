// Package sanitize removes fabricated conversation turns from model output.
//
// Local models prompted with a transcript often keep going after their own
// reply and invent the next "User:" line. Sanitize drops those invented
// user blocks and leading role markers so only assistant text remains.
package sanitize

import (
	"regexp"
	"strings"
)

var leadingRole = regexp.MustCompile(`^(?:AI|Assistant):\s*`)

// Sanitize cleans raw model output. It is idempotent:
// Sanitize(Sanitize(s)) == Sanitize(s) for every s.
func Sanitize(raw string) string {
	out := raw
	for {
		next := pass(out)
		if next == out {
			return out
		}
		out = next
	}
}

// pass runs one cleaning round. A round only ever deletes characters, so
// repeating it until nothing changes terminates.
func pass(s string) string {
	lines := strings.Split(s, "\n")
	kept := make([]string, 0, len(lines))
	inUserBlock := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		switch {
		case isUserMarker(trimmed):
			inUserBlock = true
			continue
		case isAssistantMarker(trimmed):
			inUserBlock = false
			rest := stripAssistantMarker(trimmed)
			if rest == "" {
				continue
			}
			kept = append(kept, rest)
			continue
		case inUserBlock:
			continue
		}
		kept = append(kept, line)
	}

	out := strings.Join(kept, "\n")
	for {
		stripped := leadingRole.ReplaceAllString(out, "")
		if stripped == out {
			break
		}
		out = stripped
	}
	return strings.TrimSpace(out)
}

func isUserMarker(line string) bool {
	return line == "User" || strings.HasPrefix(line, "User:")
}

func isAssistantMarker(line string) bool {
	return line == "AI" || line == "Assistant" ||
		strings.HasPrefix(line, "AI:") || strings.HasPrefix(line, "Assistant:")
}

func stripAssistantMarker(line string) string {
	if line == "AI" || line == "Assistant" {
		return ""
	}
	for _, p := range []string{"Assistant:", "AI:"} {
		if rest, ok := strings.CutPrefix(line, p); ok {
			return strings.TrimSpace(rest)
		}
	}
	return line
}
