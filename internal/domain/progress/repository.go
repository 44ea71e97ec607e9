package progress

import (
	"context"
	"time"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines the progress event store.
type Repository interface {
	// Save persists a progress event.
	// Returns ErrDuplicateEvent if the idempotency key is already stored.
	Save(ctx context.Context, event *Event) error

	// GetByID returns an event by its internal ID.
	// Returns shared.ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*Event, error)

	// ExistsByKey checks whether an event with the idempotency key is stored.
	ExistsByKey(ctx context.Context, key shared.IdempotencyKey) (bool, error)

	// ListByLearner returns all events for a learner in a time window,
	// optionally filtered by kind (empty kind = all kinds).
	ListByLearner(ctx context.Context, learnerID shared.LearnerID, kind Kind, window shared.TimeRange) ([]*Event, error)

	// CountByLearner returns the number of events for a learner since the given time.
	CountByLearner(ctx context.Context, learnerID shared.LearnerID, since time.Time) (int, error)
}

// IdempotencyGuard is a fast first-line duplicate filter in front of the
// event store. The store's unique constraint remains the source of truth;
// the guard only saves a round trip on obvious replays.
type IdempotencyGuard interface {
	// Reserve attempts to claim the key. Returns false if already claimed.
	Reserve(ctx context.Context, key shared.IdempotencyKey, ttl time.Duration) (bool, error)

	// Release frees a key claimed by a failed write so a retry can pass.
	Release(ctx context.Context, key shared.IdempotencyKey) error
}
