// Package querylog records completed orchestration runs for audit and
// debugging.
package querylog

import (
	"context"
	"time"
)

// Entry is one recorded run.
type Entry struct {
	ID         string    `json:"id" bson:"_id"`
	APIKeyName string    `json:"api_key_name,omitempty" bson:"api_key_name,omitempty"`
	Question   string    `json:"question" bson:"question"`
	Outcome    string    `json:"outcome" bson:"outcome"`
	Answer     string    `json:"answer,omitempty" bson:"answer,omitempty"`
	ToolName   string    `json:"tool_name,omitempty" bson:"tool_name,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty" bson:"error_kind,omitempty"`
	Iterations int       `json:"iterations" bson:"iterations"`
	Duration   int64     `json:"duration_ms" bson:"duration_ms"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

// Recorder persists run entries.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	Recent(ctx context.Context, limit int) ([]*Entry, error)
	Close(ctx context.Context) error
}
