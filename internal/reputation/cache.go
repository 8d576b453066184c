package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"irrl/internal/domain"
	"irrl/internal/platform/redis"
	"irrl/pkg/platform/circuit"
)

// TTL bounds recomputation frequency.
const TTL = 5 * time.Minute

// Cache is the hot-path memoization in front of the repository's reputation
// rows. Implementations must treat misses as cheap.
type Cache interface {
	Get(ctx context.Context, subject, realmID, dom string) (domain.Reputation, bool, error)
	Set(ctx context.Context, rep domain.Reputation) error
	InvalidateSubject(ctx context.Context, subject, realmID string) error
}

// ---------------------------------------------------------------------------
// In-process cache, the default when Redis is not configured.

type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]domain.Reputation
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]domain.Reputation)}
}

func cacheKey(subject, realmID, dom string) string {
	return subject + ":" + realmID + ":" + dom
}

func (c *MemoryCache) Get(_ context.Context, subject, realmID, dom string) (domain.Reputation, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rep, ok := c.entries[cacheKey(subject, realmID, dom)]
	return rep, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, rep domain.Reputation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(rep.Subject, rep.RealmID, rep.Domain)] = rep
	return nil
}

func (c *MemoryCache) InvalidateSubject(_ context.Context, subject, realmID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := subject + ":" + realmID + ":"
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Redis-backed cache for multi-instance deployments. A circuit breaker turns
// sustained Redis failures into cache misses so reputation reads keep working
// off the repository while Redis is down; attempts continue so the circuit
// closes once Redis recovers.

type RedisCache struct {
	client  *redis.Client
	breaker *circuit.Breaker
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		breaker: circuit.New("reputation-cache"),
	}
}

func redisKey(subject, realmID, dom string) string {
	return "irrl:reputation:" + subject + ":" + realmID + ":" + dom
}

func (c *RedisCache) Get(ctx context.Context, subject, realmID, dom string) (domain.Reputation, bool, error) {
	raw, err := c.client.Get(ctx, redisKey(subject, realmID, dom)).Bytes()
	if err == goredis.Nil {
		c.breaker.RecordSuccess()
		return domain.Reputation{}, false, nil
	}
	if err != nil {
		if degraded, _ := c.breaker.RecordFailure(); degraded {
			return domain.Reputation{}, false, nil
		}
		return domain.Reputation{}, false, fmt.Errorf("redis get reputation: %w", err)
	}
	c.breaker.RecordSuccess()
	var rep domain.Reputation
	if err := json.Unmarshal(raw, &rep); err != nil {
		return domain.Reputation{}, false, fmt.Errorf("decode cached reputation: %w", err)
	}
	return rep, true, nil
}

func (c *RedisCache) Set(ctx context.Context, rep domain.Reputation) error {
	raw, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode reputation: %w", err)
	}
	key := redisKey(rep.Subject, rep.RealmID, rep.Domain)
	if err := c.client.Set(ctx, key, raw, TTL).Err(); err != nil {
		if degraded, _ := c.breaker.RecordFailure(); degraded {
			return nil
		}
		return fmt.Errorf("redis set reputation: %w", err)
	}
	c.breaker.RecordSuccess()
	return nil
}

func (c *RedisCache) InvalidateSubject(ctx context.Context, subject, realmID string) error {
	pattern := redisKey(subject, realmID, "*")
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del reputation: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan reputation keys: %w", err)
	}
	return nil
}
