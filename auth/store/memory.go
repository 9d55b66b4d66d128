package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sweetpotato0/nl2sql/auth"
)

// MemoryStore is an in-process keystore for tests and single-node setups.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*auth.Key
}

// NewMemoryStore creates an empty in-memory keystore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]*auth.Key)}
}

// Create issues a new API key.
func (s *MemoryStore) Create(_ context.Context, name string) (string, error) {
	key, err := auth.GenerateKey()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = &auth.Key{
		Key:       key,
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Active:    true,
	}
	return key, nil
}

// Verify checks an active key and records the access time.
func (s *MemoryStore) Verify(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.keys[key]
	if !ok || !record.Active {
		return "", auth.ErrKeyNotFound
	}
	now := time.Now().UTC()
	record.LastUsed = &now
	return record.Name, nil
}

// Delete removes a key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; !ok {
		return auth.ErrKeyNotFound
	}
	delete(s.keys, key)
	return nil
}

// Disable deactivates a key without deleting it.
func (s *MemoryStore) Disable(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.keys[key]
	if !ok {
		return auth.ErrKeyNotFound
	}
	record.Active = false
	return nil
}

// List returns all keys, newest first.
func (s *MemoryStore) List(_ context.Context) ([]auth.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]auth.Key, 0, len(s.keys))
	for _, record := range s.keys {
		keys = append(keys, *record)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
