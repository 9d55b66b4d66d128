package message

import "testing"

func TestNewToolResultMessage(t *testing.T) {
	msg := NewToolResultMessage(&ToolResult{
		CallID:  "call-1",
		Content: "3 rows",
		IsError: false,
	})

	if msg.Role != RoleTool {
		t.Errorf("role = %s, want %s", msg.Role, RoleTool)
	}
	if msg.ToolID != "call-1" || msg.Content != "3 rows" || msg.IsError {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Error("id and timestamp should be set")
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := NewMessage(RoleAssistant, "running a query")
	orig.Metadata["session"] = "s1"
	orig.ToolCalls = []ToolCall{
		{ID: "c1", Name: "execute_query", Args: map[string]any{"query": "SELECT 1"}},
	}

	cloned := Clone(orig)

	cloned.Metadata["session"] = "s2"
	cloned.ToolCalls[0].Args["query"] = "SELECT 2"
	cloned.Content = "changed"

	if orig.Metadata["session"] != "s1" {
		t.Error("metadata should not be shared")
	}
	if orig.ToolCalls[0].Args["query"] != "SELECT 1" {
		t.Error("tool call args should not be shared")
	}
	if orig.Content != "running a query" {
		t.Error("content should not be shared")
	}
}

func TestCloneNil(t *testing.T) {
	if Clone(nil) != nil {
		t.Error("cloning nil should yield nil")
	}
	if CloneMessages(nil) != nil {
		t.Error("cloning an empty slice should yield nil")
	}
}

func TestCloneMessages(t *testing.T) {
	msgs := []*Message{
		NewMessage(RoleSystem, "you are helpful"),
		NewMessage(RoleUser, "how many orders?"),
	}

	clones := CloneMessages(msgs)
	if len(clones) != len(msgs) {
		t.Fatalf("expected %d clones, got %d", len(msgs), len(clones))
	}
	for i := range clones {
		if clones[i] == msgs[i] {
			t.Errorf("clone %d aliases the original", i)
		}
		if clones[i].Content != msgs[i].Content {
			t.Errorf("clone %d content mismatch", i)
		}
	}
}
