package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"ritualflow/internal/models"
)

// SessionStore holds the authoritative SessionState between turns.
// Session state may be volatile; the in-memory store is a conforming
// implementation for single-node deployments, the Redis store survives
// restarts and serves multi-instance setups.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*models.SessionState, error)
	Put(ctx context.Context, session *models.SessionState) error
	Delete(ctx context.Context, sessionID string) error
}

// MemorySessionStore keeps sessions in a mutex-guarded map
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.SessionState
}

// NewMemorySessionStore creates an empty in-memory session store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*models.SessionState),
	}
}

// Get returns the stored session, or nil when the id is unknown
func (s *MemorySessionStore) Get(_ context.Context, sessionID string) (*models.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	// Copy so the orchestrator owns its working state exclusively.
	clone := *session
	clone.Notes = make(map[string]string, len(session.Notes))
	for k, v := range session.Notes {
		clone.Notes[k] = v
	}
	return &clone, nil
}

// Put stores the session, replacing any previous state (last write wins)
func (s *MemorySessionStore) Put(_ context.Context, session *models.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = session
	return nil
}

// Delete removes a session; unknown ids are a no-op
func (s *MemorySessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// IdleSessions returns ids of sessions not updated since the cutoff.
// Used by the janitor job; the chat path never calls this.
func (s *MemorySessionStore) IdleSessions(cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, session := range s.sessions {
		if session.UpdatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// RedisSessionStore persists sessions as JSON values with a TTL
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore creates a Redis-backed session store.
// The URL is parsed redis.ParseURL-style (redis://host:port/db).
func NewRedisSessionStore(redisURL string, ttl time.Duration) (*RedisSessionStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisSessionStore{client: client, ttl: ttl}, nil
}

func sessionKey(sessionID string) string {
	return "ritualflow:session:" + sessionID
}

// Get returns the stored session, or nil when the key is missing or expired
func (s *RedisSessionStore) Get(ctx context.Context, sessionID string) (*models.SessionState, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session models.SessionState
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("stored session %s is unreadable: %w", sessionID, err)
	}
	return &session, nil
}

// Put stores the session with the configured TTL (last write wins)
func (s *RedisSessionStore) Put(ctx context.Context, session *models.SessionState) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Delete removes a session key
func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, sessionKey(sessionID)).Err()
}

// Ping checks Redis health
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
