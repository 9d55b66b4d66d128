package schema

import (
	"context"
	"strings"
	"testing"

	"github.com/sweetpotato0/nl2sql/errors"
)

// fakeCaller serves canned tool responses and counts calls per tool.
type fakeCaller struct {
	responses map[string]string
	errs      map[string]error
	calls     map[string]int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		responses: make(map[string]string),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *fakeCaller) CallTool(_ context.Context, name string, args map[string]any) (string, error) {
	key := name
	if table, ok := args["table_name"].(string); ok {
		key = name + ":" + table
	}
	f.calls[key]++
	if err, ok := f.errs[key]; ok {
		return "", err
	}
	return f.responses[key], nil
}

func newPopulatedCaller() *fakeCaller {
	f := newFakeCaller()
	f.responses["list_tables"] = `["orders", "users"]`
	f.responses["describe_table:users"] = `[
		{"Field": "id", "Type": "int", "Null": "NO", "Key": "PRI", "Extra": "auto_increment"},
		{"Field": "email", "Type": "varchar(255)", "Null": "NO", "Key": "UNI"}
	]`
	f.responses["describe_table:orders"] = `[
		{"Field": "id", "Type": "int", "Null": "NO", "Key": "PRI"},
		{"Field": "user_id", "Type": "int", "Null": "NO", "Key": "MUL"},
		{"Field": "total", "Type": "decimal(10,2)", "Null": "YES"}
	]`
	return f
}

func TestSnapshotFetchesAndCaches(t *testing.T) {
	caller := newPopulatedCaller()
	svc := NewService(caller)

	snap, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(snap.Tables))
	}
	if len(snap.Tables["orders"]) != 3 {
		t.Errorf("orders should have 3 columns, got %d", len(snap.Tables["orders"]))
	}

	if _, err := svc.Snapshot(context.Background()); err != nil {
		t.Fatalf("second Snapshot: %v", err)
	}
	if caller.calls["list_tables"] != 1 {
		t.Errorf("snapshot must be cached, list_tables called %d times", caller.calls["list_tables"])
	}
}

func TestSnapshotInfersRelationships(t *testing.T) {
	svc := NewService(newPopulatedCaller())

	snap, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Relationships) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(snap.Relationships))
	}
	rel := snap.Relationships[0]
	if rel.FromTable != "orders" || rel.ToTable != "users" || rel.FromColumn != "user_id" || rel.ToColumn != "id" {
		t.Errorf("unexpected relationship: %+v", rel)
	}
}

func TestSnapshotSkipsBrokenTable(t *testing.T) {
	caller := newPopulatedCaller()
	caller.errs["describe_table:orders"] = errors.New(errors.KindToolExecutionError, "table is corrupted")
	svc := NewService(caller)

	snap, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if _, ok := snap.Tables["orders"]; ok {
		t.Error("broken table should be skipped")
	}
	if _, ok := snap.Tables["users"]; !ok {
		t.Error("healthy table should survive a broken sibling")
	}
}

func TestSnapshotListFailure(t *testing.T) {
	caller := newFakeCaller()
	caller.errs["list_tables"] = errors.New(errors.KindToolUnavailable, "server gone")
	svc := NewService(caller)

	_, err := svc.Snapshot(context.Background())
	if errors.KindOf(err) != errors.KindToolUnavailable {
		t.Fatalf("expected tool unavailable, got %v", err)
	}
}

func TestColumnLookups(t *testing.T) {
	svc := NewService(newPopulatedCaller())
	if _, err := svc.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if !svc.ValidateColumn("email") {
		t.Error("email should validate")
	}
	if svc.ValidateColumn("no_such_column") {
		t.Error("unknown column should not validate")
	}

	table, ok := svc.TableForColumn("total")
	if !ok || table != "orders" {
		t.Errorf("TableForColumn(total) = %q, %v", table, ok)
	}
}

func TestInvalidateRefetches(t *testing.T) {
	caller := newPopulatedCaller()
	svc := NewService(caller)

	if _, err := svc.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	svc.Invalidate()
	if svc.ValidateColumn("email") {
		t.Error("column index must be dropped on invalidation")
	}
	if _, err := svc.Snapshot(context.Background()); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if caller.calls["list_tables"] != 2 {
		t.Errorf("expected refetch after invalidation, list_tables called %d times", caller.calls["list_tables"])
	}
}

func TestRenderIncludesTablesAndRelationships(t *testing.T) {
	svc := NewService(newPopulatedCaller())
	snap, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	out := snap.Render()
	for _, want := range []string{"Table users:", "Table orders:", "orders.user_id -> users.id", "(primary key)"} {
		if !strings.Contains(out, want) {
			t.Errorf("render output missing %q:\n%s", want, out)
		}
	}
}
