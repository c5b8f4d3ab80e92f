package prompt

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/flemzord/companion/internal/inference"
	"github.com/flemzord/companion/pkg/chat"
)

func turns(n int) []chat.ChatTurn {
	out := make([]chat.ChatTurn, n)
	for i := range out {
		origin := chat.OriginUser
		if i%2 == 1 {
			origin = chat.OriginAssistant
		}
		out[i] = chat.ChatTurn{ID: fmt.Sprint(i), Content: fmt.Sprintf("msg-%02d", i), Origin: origin}
	}
	return out
}

func TestBuild_Layout(t *testing.T) {
	t.Parallel()

	history := []chat.ChatTurn{
		{Content: "hi", Origin: chat.OriginUser},
		{Content: "hello!", Origin: chat.OriginAssistant},
	}
	got, err := Build(history, "how are you?", Config{SystemPrompt: "Be kind."})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := "Be kind.\n\n" + SafetyClause + "\n\n" +
		"--- Conversation History ---\n" +
		"User: hi\n" +
		"Assistant: hello!\n" +
		"User: how are you?\n" +
		"Assistant: "
	if got != want {
		t.Errorf("Build() =\n%q\nwant\n%q", got, want)
	}
}

func TestBuild_NoHistoryOmitsHeader(t *testing.T) {
	t.Parallel()

	got, err := Build(nil, "first", Config{SystemPrompt: "sys"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if strings.Contains(got, HistoryHeader) {
		t.Errorf("header should be omitted: %q", got)
	}
	if !strings.HasSuffix(got, "User: first\nAssistant: ") {
		t.Errorf("unexpected tail: %q", got)
	}
}

func TestBuild_WindowsFifteenTurns(t *testing.T) {
	t.Parallel()

	got, err := Build(turns(15), "next", Config{SystemPrompt: "sys"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for i := range 5 {
		if strings.Contains(got, fmt.Sprintf("msg-%02d", i)) {
			t.Errorf("turn %d should be outside the window", i)
		}
	}
	for i := 5; i < 15; i++ {
		if !strings.Contains(got, fmt.Sprintf("msg-%02d", i)) {
			t.Errorf("turn %d should be inside the window", i)
		}
	}
	if c := strings.Count(got, "\nUser: ") + strings.Count(got, "\nAssistant: "); c != 12 {
		t.Errorf("role lines = %d, want 10 history + 2 trailing", c)
	}
}

func TestBuild_CustomWindow(t *testing.T) {
	t.Parallel()

	got, _ := Build(turns(6), "x", Config{Window: 2})
	if strings.Contains(got, "msg-03") || !strings.Contains(got, "msg-04") || !strings.Contains(got, "msg-05") {
		t.Errorf("window of 2 not honored: %q", got)
	}

	none, _ := Build(turns(6), "x", Config{Window: -1})
	if strings.Contains(none, HistoryHeader) {
		t.Errorf("negative window should drop history: %q", none)
	}
}

func TestBuild_EmptyInput(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "\n\t"} {
		_, err := Build(nil, in, Config{})
		if !errors.Is(err, inference.ErrEmptyInput) {
			t.Errorf("Build(%q) err = %v, want ErrEmptyInput", in, err)
		}
	}
}
