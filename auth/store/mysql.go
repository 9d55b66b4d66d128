// Package store provides keystore backends.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/sweetpotato0/nl2sql/auth"
)

// MySQLStore persists API keys in a MySQL table.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens the database and ensures the api_keys table exists.
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS api_keys (
			api_key    VARCHAR(64) PRIMARY KEY,
			name       VARCHAR(255) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_used  TIMESTAMP NULL,
			is_active  BOOLEAN DEFAULT TRUE
		)`)
	if err != nil {
		return fmt.Errorf("failed to create api_keys table: %w", err)
	}
	return nil
}

// Create issues a new API key.
func (s *MySQLStore) Create(ctx context.Context, name string) (string, error) {
	key, err := auth.GenerateKey()
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO api_keys (api_key, name) VALUES (?, ?)", key, name)
	if err != nil {
		return "", fmt.Errorf("failed to insert api key: %w", err)
	}
	return key, nil
}

// Verify checks an active key and records the access time.
func (s *MySQLStore) Verify(ctx context.Context, key string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM api_keys WHERE api_key = ? AND is_active = TRUE", key).Scan(&name)
	if err == sql.ErrNoRows {
		return "", auth.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to verify api key: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET last_used = ? WHERE api_key = ?", time.Now().UTC(), key); err != nil {
		return "", fmt.Errorf("failed to record key use: %w", err)
	}
	return name, nil
}

// Delete removes a key.
func (s *MySQLStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM api_keys WHERE api_key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrKeyNotFound
	}
	return nil
}

// Disable deactivates a key without deleting it.
func (s *MySQLStore) Disable(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET is_active = FALSE WHERE api_key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to disable api key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrKeyNotFound
	}
	return nil
}

// List returns all keys, newest first.
func (s *MySQLStore) List(ctx context.Context) ([]auth.Key, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT api_key, name, created_at, last_used, is_active
		FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []auth.Key
	for rows.Next() {
		var (
			k        auth.Key
			lastUsed sql.NullTime
		)
		if err := rows.Scan(&k.Key, &k.Name, &k.CreatedAt, &lastUsed, &k.Active); err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		if lastUsed.Valid {
			t := lastUsed.Time
			k.LastUsed = &t
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database handle.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
