package redis

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION LOCK
// Serializes accept attempts on an open escrow session across workers.
// The lock is advisory: the session's version check-and-set in PostgreSQL
// still rejects whichever loser slips through a TTL expiry.
// ══════════════════════════════════════════════════════════════════════════════

// SessionLock implements escrow.SessionLock on Redis SETNX.
type SessionLock struct {
	cache *Cache
}

// NewSessionLock creates a new SessionLock.
func NewSessionLock(cache *Cache) *SessionLock {
	return &SessionLock{cache: cache}
}

// Acquire claims the session lock for the given TTL.
// Returns false if another worker holds it.
func (l *SessionLock) Acquire(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	return l.cache.SetNX(ctx, SessionLockKey(sessionID), "1", ttl)
}

// Release frees the lock.
func (l *SessionLock) Release(ctx context.Context, sessionID string) error {
	return l.cache.Delete(ctx, SessionLockKey(sessionID))
}
