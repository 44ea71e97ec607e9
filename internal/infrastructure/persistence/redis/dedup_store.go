package redis

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK DEDUP STORE
// Keyed by transition ID so each terminal transition notifies consumers at
// most once, no matter how many times the dispatcher redelivers the event.
// ══════════════════════════════════════════════════════════════════════════════

// DedupStore implements eventhandler.DedupStore on Redis SETNX.
type DedupStore struct {
	cache *Cache
}

// NewDedupStore creates a new DedupStore.
func NewDedupStore(cache *Cache) *DedupStore {
	return &DedupStore{cache: cache}
}

// Claim marks the transition as being delivered.
// Returns false if a delivery already claimed it.
func (d *DedupStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return d.cache.SetNX(ctx, WebhookDedupKey(key), "1", ttl)
}

// Unclaim releases a claim after a failed delivery so a retry can pass.
func (d *DedupStore) Unclaim(ctx context.Context, key string) error {
	return d.cache.Delete(ctx, WebhookDedupKey(key))
}
