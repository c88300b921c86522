package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned for unknown, expired or revoked sessions
var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps the IDs of live sessions
type SessionStore interface {
	Save(ctx context.Context, id, userID string, ttl time.Duration) error
	Lookup(ctx context.Context, id string) (string, error)
	Delete(ctx context.Context, id string) error
}

// RedisSessionStore stores sessions as expiring keys
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionStore connects to Redis and verifies the connection
func NewRedisSessionStore(ctx context.Context, addr, password string, db int) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisSessionStoreFromClient(client), nil
}

// NewRedisSessionStoreFromClient wraps an existing client
func NewRedisSessionStoreFromClient(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: "session:"}
}

// Save implements SessionStore
func (s *RedisSessionStore) Save(ctx context.Context, id, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+id, userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Lookup implements SessionStore
func (s *RedisSessionStore) Lookup(ctx context.Context, id string) (string, error) {
	userID, err := s.client.Get(ctx, s.prefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to lookup session: %w", err)
	}
	return userID, nil
}

// Delete implements SessionStore
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.prefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

type memorySession struct {
	userID    string
	expiresAt time.Time
}

// MemorySessionStore keeps sessions in process memory
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]memorySession
	now      func() time.Time
}

// NewMemorySessionStore creates an empty store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		now:      time.Now,
	}
}

// Save implements SessionStore
func (s *MemorySessionStore) Save(ctx context.Context, id, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = memorySession{userID: userID, expiresAt: s.now().Add(ttl)}
	return nil
}

// Lookup implements SessionStore
func (s *MemorySessionStore) Lookup(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok || !s.now().Before(sess.expiresAt) {
		return "", ErrSessionNotFound
	}
	return sess.userID, nil
}

// Delete implements SessionStore
func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len returns the number of stored sessions, expired ones included
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep drops expired sessions and returns how many were removed
func (s *MemorySessionStore) Sweep(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, sess := range s.sessions {
		if !now.Before(sess.expiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
