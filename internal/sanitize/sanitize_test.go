package sanitize

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "fabricated user turn",
			in:   "Hello there.\nUser: fake question\nAssistant: real answer",
			want: "Hello there.\nreal answer",
		},
		{
			name: "plain text untouched",
			in:   "Just an answer.",
			want: "Just an answer.",
		},
		{
			name: "leading assistant prefix",
			in:   "Assistant: Sure, here you go.",
			want: "Sure, here you go.",
		},
		{
			name: "leading AI prefix",
			in:   "AI:   hi",
			want: "hi",
		},
		{
			name: "bare role line at start",
			in:   "Assistant\nThe answer is 4.",
			want: "The answer is 4.",
		},
		{
			name: "trailing user block dropped",
			in:   "Answer.\nUser: and another thing\nmore user text",
			want: "Answer.",
		},
		{
			name: "bare user opens block",
			in:   "Answer.\nUser\nwhat about this\nAI\nback to me",
			want: "Answer.\nback to me",
		},
		{
			name: "surrounding whitespace trimmed",
			in:   "\n\n  spaced out  \n\n",
			want: "spaced out",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
		{
			name: "only user text",
			in:   "User: hi",
			want: "",
		},
		{
			name: "nested role markers",
			in:   "Assistant: User: sneaky",
			want: "",
		},
		{
			name: "repeated leading prefixes",
			in:   "AI: Assistant: hello",
			want: "hello",
		},
		{
			name: "mid-line role words kept",
			in:   "The User: field is optional.",
			want: "The User: field is optional.",
		},
		{
			name: "blank lines inside answer kept",
			in:   "First paragraph.\n\nSecond paragraph.",
			want: "First paragraph.\n\nSecond paragraph.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"Hello there.\nUser: fake question\nAssistant: real answer",
		"Assistant: User: hi\nAI: Assistant: x",
		"  AI:\n  User:\nAssistant:  AI: done  ",
		"line one\r\nUser: two\r\nAI: three\r\n",
		"Assistant\n\nAssistant\nUser\n",
		"AI: AI: AI: deep",
		"\tUser: indented\nok",
		"no markers at all\njust text",
		strings.Repeat("User: x\nAssistant: y\n", 20),
	}
	for _, in := range inputs {
		once := Sanitize(in)
		twice := Sanitize(once)
		if once != twice {
			t.Errorf("not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func FuzzSanitize_Idempotent(f *testing.F) {
	f.Add("Hello there.\nUser: fake question\nAssistant: real answer")
	f.Add("AI: x\nUser\ny")
	f.Fuzz(func(t *testing.T, s string) {
		once := Sanitize(s)
		if twice := Sanitize(once); twice != once {
			t.Fatalf("Sanitize not idempotent: %q -> %q -> %q", s, once, twice)
		}
		if strings.HasPrefix(once, "User:") {
			t.Fatalf("output starts with a user turn: %q", once)
		}
	})
}
