package tool

import (
	"context"
	"testing"
	"time"

	"github.com/sweetpotato0/nl2sql/errors"
	"github.com/sweetpotato0/nl2sql/message"
)

func registryWith(t *testing.T, tools ...*Tool) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			t.Fatalf("Register(%s): %v", tool.Name, err)
		}
	}
	return r
}

func TestInvokeSuccess(t *testing.T) {
	var gotArgs map[string]any
	r := registryWith(t, &Tool{
		Name:  "execute_query",
		Locus: LocusServer,
		Parameters: []Parameter{
			{Name: "query", Type: "string", Required: true},
		},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			gotArgs = args
			return "2 rows", nil
		},
	})

	inv := NewInvoker(r)
	res, err := inv.Invoke(context.Background(), message.ToolCall{
		ID: "c1", Name: "execute_query", Args: map[string]any{"query": "SELECT 1"},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.CallID != "c1" || res.Content != "2 rows" || res.IsError {
		t.Errorf("unexpected result: %+v", res)
	}
	if gotArgs["query"] != "SELECT 1" {
		t.Errorf("args not passed through: %v", gotArgs)
	}
}

func TestInvokeUnknownToolIsErrorResult(t *testing.T) {
	inv := NewInvoker(registryWith(t))

	res, err := inv.Invoke(context.Background(), message.ToolCall{ID: "c1", Name: "nope"})
	if err != nil {
		t.Fatalf("unknown tool should not be a terminal error: %v", err)
	}
	if !res.IsError || res.CallID != "c1" {
		t.Errorf("expected error-flagged result, got %+v", res)
	}
}

func TestInvokeInvalidArgsIsErrorResult(t *testing.T) {
	r := registryWith(t, &Tool{
		Name: "describe_table",
		Parameters: []Parameter{
			{Name: "table", Type: "string", Required: true},
		},
		Handler: func(context.Context, map[string]any) (string, error) {
			t.Fatal("handler should not run on invalid args")
			return "", nil
		},
	})

	res, err := NewInvoker(r).Invoke(context.Background(), message.ToolCall{
		ID: "c2", Name: "describe_table",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.IsError {
		t.Errorf("expected error result, got %+v", res)
	}
}

func TestInvokeExecutionErrorIsErrorResult(t *testing.T) {
	r := registryWith(t, &Tool{
		Name: "execute_query",
		Handler: func(context.Context, map[string]any) (string, error) {
			return "", errors.New(errors.KindToolExecutionError, "syntax error near FROM")
		},
	})

	res, err := NewInvoker(r).Invoke(context.Background(), message.ToolCall{
		ID: "c3", Name: "execute_query",
	})
	if err != nil {
		t.Fatalf("execution errors should fold into the result: %v", err)
	}
	if !res.IsError || res.Content == "" {
		t.Errorf("expected error result carrying the message, got %+v", res)
	}
}

func TestInvokeRetriesTransientFailures(t *testing.T) {
	attempts := 0
	r := registryWith(t, &Tool{
		Name: "list_tables",
		Handler: func(context.Context, map[string]any) (string, error) {
			attempts++
			if attempts < 3 {
				return "", errors.New(errors.KindToolUnavailable, "connection reset")
			}
			return `["users"]`, nil
		},
	})

	inv := NewInvoker(r, WithMaxRetries(3), WithBackoff(time.Millisecond))
	res, err := inv.Invoke(context.Background(), message.ToolCall{ID: "c4", Name: "list_tables"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if res.IsError {
		t.Errorf("expected success after retries: %+v", res)
	}
}

func TestInvokeRetriesExhausted(t *testing.T) {
	attempts := 0
	r := registryWith(t, &Tool{
		Name: "list_tables",
		Handler: func(context.Context, map[string]any) (string, error) {
			attempts++
			return "", errors.New(errors.KindToolUnavailable, "connection reset")
		},
	})

	inv := NewInvoker(r, WithMaxRetries(1), WithBackoff(time.Millisecond))
	_, err := inv.Invoke(context.Background(), message.ToolCall{ID: "c5", Name: "list_tables"})
	if err == nil {
		t.Fatal("expected terminal error after exhausting retries")
	}
	if errors.KindOf(err) != errors.KindToolUnavailable {
		t.Errorf("kind = %s", errors.KindOf(err))
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestInvokeHandlerErrorKeepsItsKind(t *testing.T) {
	r := registryWith(t, &Tool{
		Name: "execute_query",
		Handler: func(context.Context, map[string]any) (string, error) {
			return "", errors.New(errors.KindInternal, "handler panic recovered")
		},
	})

	_, err := NewInvoker(r).Invoke(context.Background(), message.ToolCall{
		ID: "c8", Name: "execute_query",
	})
	if err == nil {
		t.Fatal("expected terminal error")
	}
	if errors.KindOf(err) != errors.KindInternal {
		t.Errorf("kind = %s, want %s", errors.KindOf(err), errors.KindInternal)
	}
}

func TestInvokeCancellation(t *testing.T) {
	r := registryWith(t, &Tool{
		Name: "execute_query",
		Handler: func(context.Context, map[string]any) (string, error) {
			return "ok", nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewInvoker(r).Invoke(ctx, message.ToolCall{ID: "c6", Name: "execute_query"})
	if errors.KindOf(err) != errors.KindRequestCancelled {
		t.Errorf("kind = %s, want %s", errors.KindOf(err), errors.KindRequestCancelled)
	}
}

func TestInvokeMissingHandler(t *testing.T) {
	r := registryWith(t, &Tool{Name: "broken"})

	_, err := NewInvoker(r).Invoke(context.Background(), message.ToolCall{ID: "c7", Name: "broken"})
	if errors.KindOf(err) != errors.KindInternal {
		t.Errorf("kind = %s, want %s", errors.KindOf(err), errors.KindInternal)
	}
}
