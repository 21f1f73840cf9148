package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no record exists for the session ID, including
// records that have expired.
var ErrNotFound = errors.New("session not found")

// ErrRedisUnavailable wraps transport failures from [RedisStore].
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrCorrupt is returned when a stored record cannot be decoded.
var ErrCorrupt = errors.New("session record corrupt")

// Store persists token records keyed by an opaque session ID.
type Store interface {
	Get(ctx context.Context, sessionID string) (*Token, error)
	Save(ctx context.Context, sessionID string, t *Token, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

// RedisStore keeps one encoded record per session under "<prefix>:s:<sid>".
type RedisStore struct {
	redis   redis.UniversalClient
	prefix  string
	codec   Codec
	sliding time.Duration
}

// NewRedisStore creates a Redis-backed store. A nil codec selects [BinaryCodec].
// When sliding is positive every successful Get extends the key TTL to sliding.
func NewRedisStore(rdb redis.UniversalClient, prefix string, codec Codec, sliding time.Duration) *RedisStore {
	if codec == nil {
		codec = BinaryCodec{}
	}
	if prefix == "" {
		prefix = "gs"
	}
	return &RedisStore{
		redis:   rdb,
		prefix:  prefix,
		codec:   codec,
		sliding: sliding,
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

// Save writes t under sessionID with the given TTL. A non-positive ttl stores the
// record without expiry.
//
//	Performance: 1 Redis SET.
func (s *RedisStore) Save(ctx context.Context, sessionID string, t *Token, ttl time.Duration) error {
	data, err := s.codec.Encode(t)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.redis.Set(ctx, s.key(sessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads the record for sessionID.
//
//	Performance: 1 Redis GET, plus 1 EXPIRE when sliding is enabled.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Token, error) {
	key := s.key(sessionID)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	t, err := s.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if s.sliding > 0 {
		if err := s.redis.Expire(ctx, key, s.sliding).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return t, nil
}

// Delete removes the record. Deleting a missing session is not an error.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

type memoryEntry struct {
	token     *Token
	expiresAt time.Time
}

// MemoryStore is a process-local [Store]. Records are cloned on the way in and
// out so callers never share a *Token with the store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store. A nil now uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

// Save implements [Store].
func (s *MemoryStore) Save(_ context.Context, sessionID string, t *Token, ttl time.Duration) error {
	if t == nil {
		return errors.New("nil token")
	}
	entry := memoryEntry{token: t.Clone()}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[sessionID] = entry
	s.mu.Unlock()
	return nil
}

// Get implements [Store].
func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.entries, sessionID)
		return nil, ErrNotFound
	}
	return entry.token.Clone(), nil
}

// Delete implements [Store].
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
	return nil
}

// Len reports the number of records held, including ones not yet evicted.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
