package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// Store is the exact-layer backend. Implementations must treat expired
// entries as absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// memoryEntry carries the value with its lazy-eviction deadline.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process LRU store with per-entry TTL. Entries past
// their TTL are evicted lazily on access.
type MemoryStore struct {
	mu  sync.Mutex
	lru *lru.Cache[string, memoryEntry]
	now func() time.Time
}

// NewMemoryStore creates a bounded in-memory store.
func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	if maxEntries < 1 {
		return nil, errors.New("maxEntries must be at least 1")
	}
	l, err := lru.New[string, memoryEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{lru: l, now: time.Now}, nil
}

// Get returns the value for key if present and unexpired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if s.now().After(entry.expiresAt) {
		s.lru.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores the value under key with the given TTL.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Add(key, memoryEntry{value: value, expiresAt: s.now().Add(ttl)})
	return nil
}

// DeletePrefix removes every entry whose key starts with prefix.
func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range s.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			s.lru.Remove(key)
		}
	}
	return nil
}

// RedisStore backs the exact layer with Redis. TTL enforcement is Redis's;
// DeletePrefix scans and deletes in a transaction pipeline.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRedisStoreFromClient wraps an existing client (tests use miniredis).
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the value for key if present.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores the value under key with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// DeletePrefix removes every key matching prefix*.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	pipe := s.client.TxPipeline()
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", 256).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
