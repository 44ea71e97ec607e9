package redis

import (
	"context"
	"time"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IDEMPOTENCY GUARD
// Fast first-line duplicate filter in front of the progress event store.
// The store's unique constraint stays authoritative; a missed reservation
// here only costs one extra round trip to PostgreSQL.
// ══════════════════════════════════════════════════════════════════════════════

// IdempotencyGuard implements progress.IdempotencyGuard on Redis SETNX.
type IdempotencyGuard struct {
	cache *Cache
}

// NewIdempotencyGuard creates a new IdempotencyGuard.
func NewIdempotencyGuard(cache *Cache) *IdempotencyGuard {
	return &IdempotencyGuard{cache: cache}
}

// Reserve attempts to claim the key. Returns false if already claimed.
func (g *IdempotencyGuard) Reserve(ctx context.Context, key shared.IdempotencyKey, ttl time.Duration) (bool, error) {
	return g.cache.SetNX(ctx, IdempotencyKey(string(key)), "1", ttl)
}

// Release frees a key claimed by a failed write so a retry can pass.
func (g *IdempotencyGuard) Release(ctx context.Context, key shared.IdempotencyKey) error {
	return g.cache.Delete(ctx, IdempotencyKey(string(key)))
}
