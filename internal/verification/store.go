package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Challenge is the single active code for a target. Only the hash of the code is kept.
type Challenge struct {
	Target            Target    `json:"target"`
	CodeHash          string    `json:"code_hash"`
	CreatedAt         time.Time `json:"created_at"`
	ResendAvailableAt time.Time `json:"resend_available_at"`
	Dispatched        bool      `json:"dispatched"`
}

// ChallengeStore keeps at most one challenge per target; Save replaces any previous one.
type ChallengeStore interface {
	Save(ctx context.Context, ch Challenge, ttl time.Duration) error
	// Get returns ErrNoActiveChallenge when there is none or it expired.
	Get(ctx context.Context, t Target) (*Challenge, error)
	Delete(ctx context.Context, t Target) error
}

func challengeKey(t Target) string {
	return fmt.Sprintf("otp:%s:%s:%s", t.Purpose, t.CountryCode, t.Phone)
}

// RedisStore keeps challenges in Redis with a TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, ch Challenge, ttl time.Duration) error {
	raw, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, challengeKey(ch.Target), raw, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, t Target) (*Challenge, error) {
	raw, err := s.client.Get(ctx, challengeKey(t)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoActiveChallenge
	}
	if err != nil {
		return nil, err
	}
	var ch Challenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	return &ch, nil
}

func (s *RedisStore) Delete(ctx context.Context, t Target) error {
	return s.client.Del(ctx, challengeKey(t)).Err()
}

type memoryEntry struct {
	ch        Challenge
	expiresAt time.Time
}

// MemoryStore is an in-process ChallengeStore for development and tests.
type MemoryStore struct {
	mu   sync.Mutex
	m    map[string]memoryEntry
	nowF func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]memoryEntry), nowF: time.Now}
}

func (s *MemoryStore) Save(ctx context.Context, ch Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[challengeKey(ch.Target)] = memoryEntry{ch: ch, expiresAt: s.nowF().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, t Target) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := challengeKey(t)
	e, ok := s.m[key]
	if !ok {
		return nil, ErrNoActiveChallenge
	}
	if !e.expiresAt.After(s.nowF()) {
		delete(s.m, key)
		return nil, ErrNoActiveChallenge
	}
	ch := e.ch
	return &ch, nil
}

func (s *MemoryStore) Delete(ctx context.Context, t Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, challengeKey(t))
	return nil
}
