package cache

import (
	"context"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache creates a memory cache that sweeps expired entries every cleanup interval.
func NewMemoryCache(cleanup time.Duration) *MemoryCache {
	return &MemoryCache{items: gocache.New(gocache.NoExpiration, cleanup)}
}

func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := c.items.Get(key)
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(raw.([]byte), dest)
}

// Set stores value until ttl elapses; a ttl of zero never expires.
func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	c.items.Set(key, data, ttl)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		c.items.Delete(k)
	}
	return nil
}

// Len returns the number of unexpired entries.
func (c *MemoryCache) Len() int {
	return c.items.ItemCount()
}

func (c *MemoryCache) Close() error {
	c.items.Flush()
	return nil
}
