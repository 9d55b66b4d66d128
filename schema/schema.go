// Package schema discovers and caches the database schema through the MCP
// tool server. The snapshot feeds the system prompt so the model writes SQL
// against real tables and columns.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/sweetpotato0/nl2sql/errors"
	"github.com/sweetpotato0/nl2sql/pkg/logging"
)

// ToolCaller invokes a named tool on the MCP server. *mcp.Client satisfies it.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Column mirrors one row of a MySQL DESCRIBE statement.
type Column struct {
	Field   string  `json:"Field"`
	Type    string  `json:"Type"`
	Null    string  `json:"Null"`
	Key     string  `json:"Key"`
	Default *string `json:"Default"`
	Extra   string  `json:"Extra"`
}

// Relationship is an inferred foreign-key edge between two tables.
type Relationship struct {
	FromTable  string `json:"from_table"`
	ToTable    string `json:"to_table"`
	Type       string `json:"type"`
	FromColumn string `json:"from_column"`
	ToColumn   string `json:"to_column"`
}

// Snapshot is the cached view of the database schema.
type Snapshot struct {
	Tables        map[string][]Column `json:"tables"`
	Relationships []Relationship      `json:"relationships"`
}

// Service fetches the schema once and serves it from cache until invalidated.
type Service struct {
	caller ToolCaller
	logger *slog.Logger

	mu       sync.RWMutex
	snapshot *Snapshot
	columns  map[string]map[string]struct{}
}

// NewService creates a schema service over the given tool caller.
func NewService(caller ToolCaller) *Service {
	return &Service{
		caller: caller,
		logger: logging.WithComponent("schema"),
	}
}

// Snapshot returns the cached schema, fetching it on first use.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	if s.snapshot != nil {
		defer s.mu.RUnlock()
		return s.snapshot, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot != nil {
		return s.snapshot, nil
	}

	snap, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.snapshot = snap
	s.columns = indexColumns(snap)
	return snap, nil
}

// Invalidate drops the cached snapshot; the next call refetches.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	s.columns = nil
}

// ValidateColumn reports whether any table has a column with this name.
func (s *Service) ValidateColumn(column string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cols := range s.columns {
		if _, ok := cols[column]; ok {
			return true
		}
	}
	return false
}

// TableForColumn returns the first table containing the named column.
func (s *Service) TableForColumn(column string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.columns))
	for name := range s.columns {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := s.columns[name][column]; ok {
			return name, true
		}
	}
	return "", false
}

func (s *Service) fetch(ctx context.Context) (*Snapshot, error) {
	out, err := s.caller.CallTool(ctx, "list_tables", map[string]any{})
	if err != nil {
		return nil, err
	}

	var tables []string
	if err := json.Unmarshal([]byte(out), &tables); err != nil {
		return nil, errors.Wrap(errors.KindToolExecutionError, err, "failed to parse tables list")
	}

	snap := &Snapshot{Tables: make(map[string][]Column, len(tables))}
	for _, table := range tables {
		desc, err := s.caller.CallTool(ctx, "describe_table", map[string]any{"table_name": table})
		if err != nil {
			// One broken table should not hide the rest of the schema.
			s.logger.Error("failed to describe table", "table", table, "error", err)
			continue
		}
		var cols []Column
		if err := json.Unmarshal([]byte(desc), &cols); err != nil {
			s.logger.Error("failed to parse table structure", "table", table, "error", err)
			continue
		}
		snap.Tables[table] = cols
	}

	snap.Relationships = inferRelationships(snap.Tables)
	s.logger.Info("schema loaded", "tables", len(snap.Tables), "relationships", len(snap.Relationships))
	return snap, nil
}

// inferRelationships guesses foreign keys from MUL-keyed or *_id columns
// pointing at a table of the matching name with a standard "id" primary key.
func inferRelationships(tables map[string][]Column) []Relationship {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	var rels []Relationship
	for _, table := range names {
		for _, col := range tables[table] {
			field := strings.ToLower(col.Field)
			if strings.ToUpper(col.Key) != "MUL" && !strings.Contains(field, "_id") {
				continue
			}
			target := strings.Replace(col.Field, "_id", "", 1)
			if _, ok := tables[target]; !ok {
				continue
			}
			rels = append(rels, Relationship{
				FromTable:  table,
				ToTable:    target,
				Type:       "foreign_key",
				FromColumn: col.Field,
				ToColumn:   "id",
			})
		}
	}
	return rels
}

func indexColumns(snap *Snapshot) map[string]map[string]struct{} {
	idx := make(map[string]map[string]struct{}, len(snap.Tables))
	for table, cols := range snap.Tables {
		set := make(map[string]struct{}, len(cols))
		for _, col := range cols {
			set[col.Field] = struct{}{}
		}
		idx[table] = set
	}
	return idx
}

// Render formats the snapshot as prompt text: one line per column plus the
// inferred relationships.
func (snap *Snapshot) Render() string {
	names := make([]string, 0, len(snap.Tables))
	for name := range snap.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, table := range names {
		fmt.Fprintf(&b, "Table %s:\n", table)
		for _, col := range snap.Tables[table] {
			fmt.Fprintf(&b, "  %s %s", col.Field, col.Type)
			if strings.ToUpper(col.Key) == "PRI" {
				b.WriteString(" (primary key)")
			}
			b.WriteString("\n")
		}
	}
	if len(snap.Relationships) > 0 {
		b.WriteString("Relationships:\n")
		for _, rel := range snap.Relationships {
			fmt.Fprintf(&b, "  %s.%s -> %s.%s\n",
				rel.FromTable, rel.FromColumn, rel.ToTable, rel.ToColumn)
		}
	}
	return b.String()
}
