package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const cacheKeyPrefix = "kvcache:"

// Cache wraps a KV with a Redis read-through cache. Writes go to the base
// store first and then replace the cached copy. Misses only fill an empty
// slot, so a slow read can never overwrite a value written after it.
type Cache struct {
	base   KV
	redis  *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewCache creates a caching wrapper around base. A nil client disables
// caching; a zero ttl disables populating the cache.
func NewCache(base KV, client *redis.Client, ttl time.Duration, logger *log.Logger) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Cache{base: base, redis: client, ttl: ttl, logger: logger}
}

func (c *Cache) GetItem(ctx context.Context, key string) (string, bool, error) {
	if v, ok := c.load(ctx, key); ok {
		return v, true, nil
	}
	v, ok, err := c.base.GetItem(ctx, key)
	if err != nil || !ok {
		return v, ok, err
	}
	c.fill(ctx, key, v)
	return v, true, nil
}

func (c *Cache) SetItem(ctx context.Context, key, value string) error {
	if err := c.base.SetItem(ctx, key, value); err != nil {
		return err
	}
	c.store(ctx, key, value)
	return nil
}

func (c *Cache) RemoveItem(ctx context.Context, key string) error {
	if err := c.base.RemoveItem(ctx, key); err != nil {
		return err
	}
	c.evict(ctx, key)
	return nil
}

func (c *Cache) load(ctx context.Context, key string) (string, bool) {
	if c.redis == nil {
		return "", false
	}
	v, err := c.redis.Get(ctx, cacheKey(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// On redis errors fall back to the backing store without failing.
			c.logger.WithError(err).Warn("cache read failed")
			_ = c.redis.Del(ctx, cacheKey(key)).Err()
		}
		return "", false
	}
	return v, true
}

// fill caches a value read from the base store unless the slot is taken.
func (c *Cache) fill(ctx context.Context, key, value string) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	if err := c.redis.SetNX(ctx, cacheKey(key), value, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("cache fill failed")
	}
}

// store replaces the cached copy after a write. A stale copy must not
// survive, so a failed write falls back to eviction.
func (c *Cache) store(ctx context.Context, key, value string) {
	if c.redis == nil {
		return
	}
	if c.ttl == 0 {
		c.evict(ctx, key)
		return
	}
	if err := c.redis.Set(ctx, cacheKey(key), value, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("cache write failed")
		c.evict(ctx, key)
	}
}

func (c *Cache) evict(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, cacheKey(key)).Err(); err != nil {
		c.logger.WithError(err).Warn("cache evict failed")
	}
}

func cacheKey(key string) string {
	return cacheKeyPrefix + key
}
