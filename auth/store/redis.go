package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sweetpotato0/nl2sql/auth"
)

// RedisStore persists API keys in Redis, one JSON value per key plus a set
// for enumeration.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds Redis keystore configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore creates a Redis-backed keystore.
func NewRedisStore(ctx context.Context, config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		config = &RedisConfig{Addr: "localhost:6379"}
	}
	if config.Prefix == "" {
		config.Prefix = "nl2sql:apikeys:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisStore{client: client, prefix: config.Prefix}, nil
}

func (s *RedisStore) keyName(key string) string {
	return s.prefix + key
}

func (s *RedisStore) setName() string {
	return s.prefix + "all"
}

// Create issues a new API key.
func (s *RedisStore) Create(ctx context.Context, name string) (string, error) {
	key, err := auth.GenerateKey()
	if err != nil {
		return "", err
	}

	record := auth.Key{
		Key:       key,
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Active:    true,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal api key: %w", err)
	}

	if err := s.client.Set(ctx, s.keyName(key), data, 0).Err(); err != nil {
		return "", fmt.Errorf("failed to store api key: %w", err)
	}
	if err := s.client.SAdd(ctx, s.setName(), key).Err(); err != nil {
		return "", fmt.Errorf("failed to index api key: %w", err)
	}
	return key, nil
}

func (s *RedisStore) load(ctx context.Context, key string) (*auth.Key, error) {
	data, err := s.client.Get(ctx, s.keyName(key)).Result()
	if err == redis.Nil {
		return nil, auth.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load api key: %w", err)
	}
	var record auth.Key
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal api key: %w", err)
	}
	return &record, nil
}

func (s *RedisStore) save(ctx context.Context, record *auth.Key) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal api key: %w", err)
	}
	return s.client.Set(ctx, s.keyName(record.Key), data, 0).Err()
}

// Verify checks an active key and records the access time.
func (s *RedisStore) Verify(ctx context.Context, key string) (string, error) {
	record, err := s.load(ctx, key)
	if err != nil {
		return "", err
	}
	if !record.Active {
		return "", auth.ErrKeyNotFound
	}
	now := time.Now().UTC()
	record.LastUsed = &now
	if err := s.save(ctx, record); err != nil {
		return "", err
	}
	return record.Name, nil
}

// Delete removes a key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	deleted, err := s.client.Del(ctx, s.keyName(key)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	s.client.SRem(ctx, s.setName(), key)
	if deleted == 0 {
		return auth.ErrKeyNotFound
	}
	return nil
}

// Disable deactivates a key without deleting it.
func (s *RedisStore) Disable(ctx context.Context, key string) error {
	record, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	record.Active = false
	return s.save(ctx, record)
}

// List returns all keys, newest first.
func (s *RedisStore) List(ctx context.Context) ([]auth.Key, error) {
	members, err := s.client.SMembers(ctx, s.setName()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}

	keys := make([]auth.Key, 0, len(members))
	for _, member := range members {
		record, err := s.load(ctx, member)
		if err == auth.ErrKeyNotFound {
			s.client.SRem(ctx, s.setName(), member)
			continue
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, *record)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
