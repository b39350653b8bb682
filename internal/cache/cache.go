// Package cache memoizes data source snapshots. Values are stored as JSON so
// the memory and Redis tiers are interchangeable.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Default TTLs per snapshot kind.
const (
	TTLChips       = time.Hour
	TTLMargin      = time.Hour
	TTLRevenue     = time.Hour
	TTLHeatmap     = 10 * time.Minute
	TTLSectorFlow  = 10 * time.Minute
	TTLRanking     = 10 * time.Minute
	TTLNews        = 30 * time.Minute
	TTLInstruments = 24 * time.Hour
)

// Store is a key/value cache with per-entry expiration.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Remember returns the cached value of key, or calls fn and caches its
// result. Errors from fn are returned as-is and never cached. A nil store
// always calls fn.
func Remember[T any](ctx context.Context, s Store, key string, ttl time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if s == nil {
		return fn(ctx)
	}

	var cached T
	if err := s.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	value, err := fn(ctx)
	if err != nil {
		return value, err
	}
	_ = s.Set(ctx, key, value, ttl)
	return value, nil
}

// Config selects the cache tiers.
type Config struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
}

// New builds the memory tier and, when a Redis address is configured, layers
// it over Redis. A disabled cache returns nil.
func New(cfg Config) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	mem := NewMemoryCache(10 * time.Minute)
	if cfg.RedisAddr == "" {
		return mem, nil
	}
	redis, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Prefix)
	if err != nil {
		return nil, err
	}
	return NewLayered(mem, redis), nil
}
