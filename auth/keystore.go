// Package auth issues and verifies API keys for the HTTP surface.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/sweetpotato0/nl2sql/errors"
)

// ErrKeyNotFound is returned when a key does not exist or is inactive.
var ErrKeyNotFound = errors.New(errors.KindInvalidArguments, "api key not found")

// Key describes an issued API key.
type Key struct {
	Key       string     `json:"key"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
	Active    bool       `json:"is_active"`
}

// Store persists API keys.
type Store interface {
	// Create issues a new key under the given name and returns it.
	Create(ctx context.Context, name string) (string, error)
	// Verify checks an active key, records its use and returns the name it
	// was issued under. ErrKeyNotFound is returned for unknown or inactive
	// keys.
	Verify(ctx context.Context, key string) (string, error)
	// Delete removes a key. ErrKeyNotFound is returned if it does not exist.
	Delete(ctx context.Context, key string) error
	// Disable deactivates a key without deleting it.
	Disable(ctx context.Context, key string) error
	// List returns all keys, newest first.
	List(ctx context.Context) ([]Key, error)
	// Close releases backend resources.
	Close() error
}

// GenerateKey returns a URL-safe random key with 256 bits of entropy.
func GenerateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(errors.KindInternal, err, "failed to generate api key")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
