package agent

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sweetpotato0/nl2sql/errors"
	"github.com/sweetpotato0/nl2sql/message"
	"github.com/sweetpotato0/nl2sql/tool"
)

// scriptedLLM replays a fixed sequence of responses and records the requests
// it received.
type scriptedLLM struct {
	responses []*message.Message
	requests  []*GenerateRequest
	calls     int
}

func (s *scriptedLLM) Generate(_ context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	s.requests = append(s.requests, req)
	if s.calls >= len(s.responses) {
		return nil, errors.New(errors.KindModelUnavailable, "script exhausted")
	}
	msg := s.responses[s.calls]
	s.calls++
	return &GenerateResponse{Message: msg}, nil
}

func assistantText(content string) *message.Message {
	return message.NewMessage(message.RoleAssistant, content)
}

func assistantCalls(calls ...message.ToolCall) *message.Message {
	msg := message.NewMessage(message.RoleAssistant, "")
	msg.ToolCalls = calls
	return msg
}

func newTestRegistry(t *testing.T, tools ...*tool.Tool) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	for _, tl := range tools {
		if err := reg.Register(tl); err != nil {
			t.Fatalf("register %s: %v", tl.Name, err)
		}
	}
	return reg
}

func queryTool(handler func(context.Context, map[string]any) (string, error)) *tool.Tool {
	return &tool.Tool{
		Name:        "execute_query",
		Description: "Run a read-only SQL query",
		Parameters: []tool.Parameter{
			{Name: "sql", Type: "string", Description: "SQL statement", Required: true},
		},
		Locus:   tool.LocusServer,
		Handler: handler,
	}
}

func TestRunFinalAnswerAfterToolRound(t *testing.T) {
	var gotSQL string
	reg := newTestRegistry(t, queryTool(func(_ context.Context, args map[string]any) (string, error) {
		gotSQL, _ = args["sql"].(string)
		return "42", nil
	}))

	llm := &scriptedLLM{responses: []*message.Message{
		assistantCalls(message.ToolCall{
			ID:   "call-1",
			Name: "execute_query",
			Args: map[string]any{"sql": "SELECT COUNT(*) FROM users"},
		}),
		assistantText("There are 42 rows."),
	}}

	a := New(
		WithProvider(llm),
		WithRegistry(reg),
		WithSystemPrompt("you answer questions about a MySQL database"),
	)

	out, err := a.Run(context.Background(), "how many users are there?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Kind != OutcomeFinalAnswer {
		t.Fatalf("expected final answer, got %s", out.Kind)
	}
	if out.Answer != "There are 42 rows." {
		t.Errorf("unexpected answer: %q", out.Answer)
	}
	if out.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", out.Iterations)
	}
	if gotSQL != "SELECT COUNT(*) FROM users" {
		t.Errorf("tool received wrong args: %q", gotSQL)
	}

	// The second model call must include the tool result correlated to the
	// tool call that produced it.
	second := llm.requests[1]
	var toolMsg *message.Message
	for _, m := range second.Messages {
		if m.Role == message.RoleTool {
			toolMsg = m
		}
	}
	if toolMsg == nil {
		t.Fatal("tool result missing from second model call")
	}
	if toolMsg.ToolID != "call-1" {
		t.Errorf("tool result not correlated: got ToolID %q", toolMsg.ToolID)
	}
	if toolMsg.Content != "42" {
		t.Errorf("tool result content: got %q", toolMsg.Content)
	}
}

func TestRunUnknownToolFedBackToModel(t *testing.T) {
	reg := newTestRegistry(t)

	llm := &scriptedLLM{responses: []*message.Message{
		assistantCalls(message.ToolCall{ID: "call-1", Name: "no_such_tool"}),
		assistantText("I could not use that tool."),
	}}

	a := New(WithProvider(llm), WithRegistry(reg))
	out, err := a.Run(context.Background(), "do something")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Kind != OutcomeFinalAnswer {
		t.Fatalf("expected final answer after recovery, got %s", out.Kind)
	}

	second := llm.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != message.RoleTool || !last.IsError {
		t.Fatalf("expected error-flagged tool message, got role=%s isError=%v", last.Role, last.IsError)
	}
	if !strings.Contains(last.Content, "no_such_tool") {
		t.Errorf("error message should name the tool: %q", last.Content)
	}
}

func TestRunIterationLimit(t *testing.T) {
	reg := newTestRegistry(t, queryTool(func(context.Context, map[string]any) (string, error) {
		return "ok", nil
	}))

	call := message.ToolCall{ID: "c", Name: "execute_query", Args: map[string]any{"sql": "SELECT 1"}}
	llm := &scriptedLLM{responses: []*message.Message{
		assistantCalls(call), assistantCalls(call), assistantCalls(call), assistantCalls(call),
	}}

	a := New(WithProvider(llm), WithRegistry(reg), WithMaxIterations(3))
	_, err := a.Run(context.Background(), "loop forever")
	if errors.KindOf(err) != errors.KindIterationLimitExceeded {
		t.Fatalf("expected iteration limit error, got %v", err)
	}
	if llm.calls != 3 {
		t.Errorf("expected exactly 3 model calls, got %d", llm.calls)
	}
}

func TestRunCancelledBetweenIterations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	reg := newTestRegistry(t, queryTool(func(context.Context, map[string]any) (string, error) {
		cancel()
		return "ok", nil
	}))

	llm := &scriptedLLM{responses: []*message.Message{
		assistantCalls(message.ToolCall{ID: "c", Name: "execute_query", Args: map[string]any{"sql": "SELECT 1"}}),
		assistantText("should never be reached"),
	}}

	a := New(WithProvider(llm), WithRegistry(reg))
	_, err := a.Run(ctx, "cancel me")
	if errors.KindOf(err) != errors.KindRequestCancelled {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if llm.calls != 1 {
		t.Errorf("no model call may follow cancellation, got %d calls", llm.calls)
	}
}

func TestRunClientToolPrecedence(t *testing.T) {
	serverCalled := false
	reg := newTestRegistry(t,
		queryTool(func(context.Context, map[string]any) (string, error) {
			serverCalled = true
			return "ok", nil
		}),
		&tool.Tool{
			Name:        "create_chart",
			Description: "Create a dashboard chart",
			Locus:       tool.LocusClient,
		},
	)

	llm := &scriptedLLM{responses: []*message.Message{
		assistantCalls(
			message.ToolCall{ID: "c1", Name: "execute_query", Args: map[string]any{"sql": "SELECT 1"}},
			message.ToolCall{ID: "c2", Name: "create_chart", Args: map[string]any{"type": "bar"}},
		),
	}}

	a := New(WithProvider(llm), WithRegistry(reg))
	out, err := a.Run(context.Background(), "chart the signups")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Kind != OutcomeClientToolRequest {
		t.Fatalf("expected client tool request, got %s", out.Kind)
	}
	if out.ToolCall == nil || out.ToolCall.Name != "create_chart" {
		t.Fatalf("wrong pending call: %+v", out.ToolCall)
	}
	if serverCalled {
		t.Error("server tool must not run when a client call is present in the same turn")
	}
	if len(out.Messages) == 0 {
		t.Error("hand-off must carry the full history")
	}
}

func TestResumeAfterClientTool(t *testing.T) {
	reg := newTestRegistry(t, &tool.Tool{
		Name:  "create_chart",
		Locus: tool.LocusClient,
	})

	first := &scriptedLLM{responses: []*message.Message{
		assistantCalls(message.ToolCall{ID: "c2", Name: "create_chart"}),
	}}
	a := New(WithProvider(first), WithRegistry(reg))
	out, err := a.Run(context.Background(), "make a chart")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	second := &scriptedLLM{responses: []*message.Message{
		assistantText("Chart created."),
	}}
	b := New(WithProvider(second), WithRegistry(reg))
	final, err := b.Resume(context.Background(), out.Messages, &message.ToolResult{
		CallID:  "c2",
		Content: `{"chart_id": 7}`,
	})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if final.Kind != OutcomeFinalAnswer {
		t.Fatalf("expected final answer, got %s", final.Kind)
	}

	req := second.requests[0]
	last := req.Messages[len(req.Messages)-1]
	if last.Role != message.RoleTool || last.ToolID != "c2" {
		t.Errorf("resumed history must end with the client tool result, got role=%s id=%s", last.Role, last.ToolID)
	}
}

func TestResumeRequiresHistory(t *testing.T) {
	a := New(WithProvider(&scriptedLLM{}))
	_, err := a.Resume(context.Background(), nil, nil)
	if errors.KindOf(err) != errors.KindInvalidArguments {
		t.Fatalf("expected invalid arguments, got %v", err)
	}
}

func TestRunEmptyQuestion(t *testing.T) {
	a := New(WithProvider(&scriptedLLM{}))
	_, err := a.Run(context.Background(), "   ")
	if errors.KindOf(err) != errors.KindInvalidArguments {
		t.Fatalf("expected invalid arguments, got %v", err)
	}
}

func TestRunMalformedEmptyResponse(t *testing.T) {
	llm := &scriptedLLM{responses: []*message.Message{
		assistantText(""),
	}}
	a := New(WithProvider(llm))
	_, err := a.Run(context.Background(), "hello")
	if errors.KindOf(err) != errors.KindMalformedModelResponse {
		t.Fatalf("expected malformed response error, got %v", err)
	}
}

func TestParallelToolsPreserveOrder(t *testing.T) {
	var pending atomic.Int32
	mkTool := func(name, out string, delay time.Duration) *tool.Tool {
		return &tool.Tool{
			Name:  name,
			Locus: tool.LocusServer,
			Handler: func(ctx context.Context, _ map[string]any) (string, error) {
				pending.Add(1)
				defer pending.Add(-1)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return "", ctx.Err()
				}
				return out, nil
			},
		}
	}
	reg := newTestRegistry(t,
		mkTool("slow_tool", "slow", 50*time.Millisecond),
		mkTool("fast_tool", "fast", time.Millisecond),
	)

	llm := &scriptedLLM{responses: []*message.Message{
		assistantCalls(
			message.ToolCall{ID: "c1", Name: "slow_tool"},
			message.ToolCall{ID: "c2", Name: "fast_tool"},
		),
		assistantText("done"),
	}}

	a := New(WithProvider(llm), WithRegistry(reg), WithParallelTools(true))
	out, err := a.Run(context.Background(), "run both")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Kind != OutcomeFinalAnswer {
		t.Fatalf("expected final answer, got %s", out.Kind)
	}

	// Results must appear in the order the model listed the calls, not in
	// completion order.
	var toolMsgs []*message.Message
	for _, m := range llm.requests[1].Messages {
		if m.Role == message.RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	if len(toolMsgs) != 2 {
		t.Fatalf("expected 2 tool results, got %d", len(toolMsgs))
	}
	if toolMsgs[0].ToolID != "c1" || toolMsgs[1].ToolID != "c2" {
		t.Errorf("results out of order: %s, %s", toolMsgs[0].ToolID, toolMsgs[1].ToolID)
	}
}

func TestRunToolArgsValidation(t *testing.T) {
	reg := newTestRegistry(t, queryTool(func(context.Context, map[string]any) (string, error) {
		return "ok", nil
	}))

	llm := &scriptedLLM{responses: []*message.Message{
		assistantCalls(message.ToolCall{ID: "c1", Name: "execute_query"}),
		assistantText(fmt.Sprintf("missing %s", "sql")),
	}}

	a := New(WithProvider(llm), WithRegistry(reg))
	out, err := a.Run(context.Background(), "query without sql")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Kind != OutcomeFinalAnswer {
		t.Fatalf("expected recovery into a final answer, got %s", out.Kind)
	}

	last := llm.requests[1].Messages[len(llm.requests[1].Messages)-1]
	if !last.IsError || !strings.Contains(last.Content, "sql") {
		t.Errorf("validation failure must be fed back as an error result: %+v", last)
	}
}
