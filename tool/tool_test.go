package tool

import (
	stderrors "errors"
	"testing"

	"github.com/sweetpotato0/nl2sql/errors"
)

func queryTool() *Tool {
	return &Tool{
		Name:        "execute_query",
		Description: "Run a SQL query",
		Locus:       LocusServer,
		Parameters: []Parameter{
			{Name: "query", Type: "string", Description: "SQL to run", Required: true},
			{Name: "limit", Type: "number", Description: "row cap"},
		},
	}
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(queryTool()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(queryTool()); err == nil {
		t.Error("duplicate registration should fail")
	}
	if err := r.Register(&Tool{}); err == nil {
		t.Error("empty name should fail")
	}

	got, err := r.Get("execute_query")
	if err != nil || got.Name != "execute_query" {
		t.Fatalf("Get: %v, %v", got, err)
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	_, err := NewRegistry().Get("no_such_tool")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.KindOf(err) != errors.KindUnknownTool {
		t.Errorf("kind = %s, want %s", errors.KindOf(err), errors.KindUnknownTool)
	}
}

func TestRegistryUpsertReplaces(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(queryTool()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	replacement := queryTool()
	replacement.Description = "updated"
	if err := r.Upsert(replacement); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := r.Get("execute_query")
	if err != nil || got.Description != "updated" {
		t.Errorf("upsert did not replace: %v, %v", got, err)
	}
}

func TestRegistryLocus(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(queryTool())
	_ = r.Register(&Tool{Name: "create_chart", Locus: LocusClient})
	_ = r.Register(&Tool{Name: "legacy_tool"}) // no locus set

	cases := []struct {
		name string
		want Locus
	}{
		{"execute_query", LocusServer},
		{"create_chart", LocusClient},
		{"legacy_tool", LocusServer},
		{"missing", LocusUnknown},
	}
	for _, tc := range cases {
		if got := r.Locus(tc.name); got != tc.want {
			t.Errorf("Locus(%s) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&Tool{Name: "zebra"})
	_ = r.Register(&Tool{Name: "alpha"})
	_ = r.Register(&Tool{Name: "mango"})

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(list))
	}
	if list[0].Name != "alpha" || list[2].Name != "zebra" {
		t.Errorf("list not sorted: %s, %s, %s", list[0].Name, list[1].Name, list[2].Name)
	}
}

func TestValidateArgs(t *testing.T) {
	tool := queryTool()

	if err := tool.ValidateArgs(map[string]any{"query": "SELECT 1"}); err != nil {
		t.Errorf("valid args rejected: %v", err)
	}

	err := tool.ValidateArgs(map[string]any{"limit": 10})
	if err == nil {
		t.Fatal("missing required parameter should fail")
	}
	if errors.KindOf(err) != errors.KindInvalidArguments {
		t.Errorf("kind = %s", errors.KindOf(err))
	}
	if !stderrors.As(err, new(*errors.Error)) {
		t.Error("validation error should be kinded")
	}
}

func TestToJSONSchema(t *testing.T) {
	schema := queryTool().ToJSONSchema()

	if schema["type"] != "function" {
		t.Errorf("type = %v", schema["type"])
	}
	fn, ok := schema["function"].(map[string]any)
	if !ok {
		t.Fatal("missing function block")
	}
	if fn["name"] != "execute_query" {
		t.Errorf("name = %v", fn["name"])
	}

	params := fn["parameters"].(map[string]any)
	props := params["properties"].(map[string]any)
	if _, ok := props["query"]; !ok {
		t.Error("query property missing")
	}
	required := params["required"].([]string)
	if len(required) != 1 || required[0] != "query" {
		t.Errorf("required = %v", required)
	}
}

func TestRegisterClientTools(t *testing.T) {
	r := NewRegistry()
	if err := RegisterClientTools(r); err != nil {
		t.Fatalf("RegisterClientTools: %v", err)
	}

	clientCount := 0
	for _, tool := range r.List() {
		if tool.Locus != LocusClient {
			t.Errorf("tool %s should be client-side", tool.Name)
		}
		clientCount++
	}
	if clientCount == 0 {
		t.Fatal("no client tools registered")
	}

	if r.Locus("create_chart") != LocusClient {
		t.Error("create_chart should be a client tool")
	}
}
