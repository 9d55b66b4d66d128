// Package store provides query log backends.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sweetpotato0/nl2sql/querylog"
)

// Entry aliases the querylog entry for package-local brevity.
type Entry = querylog.Entry

// MemoryRecorder keeps a bounded ring of recent entries in memory.
type MemoryRecorder struct {
	mu      sync.RWMutex
	entries []*querylog.Entry
	max     int
}

// NewMemoryRecorder creates a recorder holding at most max entries; zero
// means 1000.
func NewMemoryRecorder(max int) *MemoryRecorder {
	if max <= 0 {
		max = 1000
	}
	return &MemoryRecorder{max: max}
}

// Record appends an entry, evicting the oldest past capacity.
func (r *MemoryRecorder) Record(_ context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if entry.ID == "" {
		entry.ID = fmt.Sprintf("q:%d", time.Now().UnixNano())
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	if len(r.entries) > r.max {
		r.entries = r.entries[len(r.entries)-r.max:]
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *MemoryRecorder) Recent(_ context.Context, limit int) ([]*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}
	out := make([]*Entry, 0, limit)
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

// Close is a no-op for the in-memory recorder.
func (r *MemoryRecorder) Close(context.Context) error {
	return nil
}
