package tokenizer

import (
	"strings"
	"testing"

	"github.com/sweetpotato0/nl2sql/message"
)

// wordCounter counts whitespace-separated words, good enough for trim tests.
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

func msg(role message.Role, content string) *message.Message {
	return message.NewMessage(role, content)
}

func TestTrimMessagesUnderBudget(t *testing.T) {
	msgs := []*message.Message{
		msg(message.RoleSystem, "be helpful"),
		msg(message.RoleUser, "how many users signed up"),
	}

	got := TrimMessages(msgs, wordCounter{}, 1000)
	if len(got) != len(msgs) {
		t.Fatalf("expected history untouched, got %d messages", len(got))
	}
}

func TestTrimMessagesKeepsSystemAndRecent(t *testing.T) {
	msgs := []*message.Message{
		msg(message.RoleSystem, "be helpful"),
		msg(message.RoleUser, strings.Repeat("old ", 50)),
		msg(message.RoleAssistant, strings.Repeat("stale ", 50)),
		msg(message.RoleUser, "latest question"),
	}

	got := TrimMessages(msgs, wordCounter{}, 20)
	if len(got) != 2 {
		t.Fatalf("expected 2 messages after trim, got %d", len(got))
	}
	if got[0].Role != message.RoleSystem {
		t.Errorf("system message must survive trimming, got role %s", got[0].Role)
	}
	if got[1].Content != "latest question" {
		t.Errorf("most recent message must survive trimming, got %q", got[1].Content)
	}
}

func TestTrimMessagesKeepsNewestEvenIfOversized(t *testing.T) {
	msgs := []*message.Message{
		msg(message.RoleUser, strings.Repeat("big ", 100)),
	}

	got := TrimMessages(msgs, wordCounter{}, 10)
	if len(got) != 1 {
		t.Fatalf("newest message must always be kept, got %d messages", len(got))
	}
}

func TestTrimMessagesKeepsToolCallUnitsTogether(t *testing.T) {
	assistant := msg(message.RoleAssistant, "")
	assistant.ToolCalls = []message.ToolCall{
		{ID: "call-1", Name: "execute_query", Args: map[string]any{"query": "SELECT COUNT(*) FROM users"}},
	}
	result := message.NewToolResultMessage(&message.ToolResult{CallID: "call-1", Content: "42"})

	msgs := []*message.Message{
		msg(message.RoleSystem, "be helpful"),
		msg(message.RoleUser, strings.Repeat("old ", 50)),
		assistant,
		result,
		msg(message.RoleUser, "latest question"),
	}

	// Budget cuts inside the assistant/tool-result pair: both must go.
	got := TrimMessages(msgs, wordCounter{}, 20)
	assertNoOrphanToolResults(t, got)
	for _, m := range got {
		if m.Role == message.RoleTool {
			t.Errorf("tool result kept without its call fitting the budget")
		}
	}

	// Budget admits the pair: both must stay.
	got = TrimMessages(msgs, wordCounter{}, 30)
	assertNoOrphanToolResults(t, got)
	foundResult := false
	for _, m := range got {
		if m.Role == message.RoleTool && m.ToolID == "call-1" {
			foundResult = true
		}
	}
	if !foundResult {
		t.Errorf("tool result should survive alongside its call, got %d messages", len(got))
	}
}

// assertNoOrphanToolResults fails if a tool-role message has no earlier
// assistant message carrying the matching tool call.
func assertNoOrphanToolResults(t *testing.T, msgs []*message.Message) {
	t.Helper()
	calls := make(map[string]bool)
	for _, m := range msgs {
		for _, tc := range m.ToolCalls {
			calls[tc.ID] = true
		}
		if m.Role == message.RoleTool && !calls[m.ToolID] {
			t.Errorf("tool result %s has no preceding assistant tool call", m.ToolID)
		}
	}
}

func TestTrimMessagesInputNotModified(t *testing.T) {
	msgs := []*message.Message{
		msg(message.RoleUser, strings.Repeat("a ", 30)),
		msg(message.RoleUser, "tail"),
	}

	_ = TrimMessages(msgs, wordCounter{}, 5)
	if len(msgs) != 2 {
		t.Fatalf("input slice was modified")
	}
}
