// Package drafts keeps resumable wizard drafts. The database row is authoritative; the two
// caches here only exist so a flow can be picked up again after a reload or a shared link.
package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/autolead/internal/wizard"
)

// ErrNoDraft means no source could produce a draft; the client must restart the flow.
var ErrNoDraft = errors.New("no recoverable draft")

const (
	sessionKeyPrefix = "current_user_draft"
	durableKeyPrefix = "last_valuation_draft"
)

// Kind tells which pipeline a draft belongs to.
type Kind string

const (
	KindQuote     Kind = "quote"
	KindValuation Kind = "valuation"
)

// Draft is one in-progress wizard.
type Draft struct {
	FlowID    uuid.UUID       `json:"flow_id"`
	Kind      Kind            `json:"kind"`
	ClientKey string          `json:"client_key,omitempty"`
	UserID    *uuid.UUID      `json:"user_id,omitempty"`
	Snapshot  wizard.Snapshot `json:"snapshot"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SessionKey is the short-lived cache key of a flow.
func SessionKey(flowID uuid.UUID) string {
	return sessionKeyPrefix + ":" + flowID.String()
}

// DurableKey is the long-lived cache key of a device.
func DurableKey(clientKey string) string {
	return durableKeyPrefix + ":" + clientKey
}

// Cache stores drafts under a key with a TTL. Get returns ErrNoDraft on a miss.
type Cache interface {
	Put(ctx context.Context, key string, d Draft, ttl time.Duration) error
	Get(ctx context.Context, key string) (*Draft, error)
	Delete(ctx context.Context, key string) error
}

// RedisCache is a Cache backed by Redis strings holding JSON.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Put(ctx context.Context, key string, d Draft, ttl time.Duration) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Draft, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoDraft
	}
	if err != nil {
		return nil, err
	}
	var d Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return &d, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

type memoryItem struct {
	raw       []byte
	expiresAt time.Time
}

// MemoryCache is the in-process Cache used when no Redis is configured.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryItem), now: time.Now}
}

func (c *MemoryCache) Put(_ context.Context, key string, d Draft, ttl time.Duration) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	c.mu.Lock()
	c.items[key] = memoryItem{raw: raw, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Draft, error) {
	c.mu.Lock()
	item, ok := c.items[key]
	if ok && !item.expiresAt.After(c.now()) {
		delete(c.items, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return nil, ErrNoDraft
	}
	var d Draft
	if err := json.Unmarshal(item.raw, &d); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return &d, nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}
