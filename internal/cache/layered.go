package cache

import (
	"context"
	"time"
)

// backfillTTL bounds how long an L2 hit stays in L1.
const backfillTTL = 5 * time.Minute

// Layered keeps a fast local tier in front of a shared one.
type Layered struct {
	l1 Store
	l2 Store
}

// NewLayered creates a two-level cache.
func NewLayered(l1, l2 Store) *Layered {
	return &Layered{l1: l1, l2: l2}
}

func (lc *Layered) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.l1.Get(ctx, key, dest); err == nil {
		return nil
	}
	if err := lc.l2.Get(ctx, key, dest); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, dest, backfillTTL)
	return nil
}

// Set writes through to both tiers. The local tier is written even when the
// shared tier fails.
func (lc *Layered) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	_ = lc.l1.Set(ctx, key, value, ttl)
	return lc.l2.Set(ctx, key, value, ttl)
}

func (lc *Layered) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *Layered) Close() error {
	_ = lc.l1.Close()
	return lc.l2.Close()
}
