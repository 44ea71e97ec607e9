package settlement

import (
	"context"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines storage operations for settlement tracking.
type Repository interface {
	// Create persists a new settlement record.
	// Returns shared.ErrAlreadyExists if the idempotency key is tracked.
	Create(ctx context.Context, s *Settlement) error

	// GetByID returns a settlement by ID.
	// Returns ErrSettlementNotFound if absent.
	GetByID(ctx context.Context, id string) (*Settlement, error)

	// GetByKey returns a settlement by idempotency key.
	// Returns ErrSettlementNotFound if absent.
	GetByKey(ctx context.Context, key shared.IdempotencyKey) (*Settlement, error)

	// Update saves a modified settlement using optimistic concurrency:
	// the write succeeds only if the stored version matches s.Version,
	// otherwise shared.ErrOptimisticLock is returned.
	Update(ctx context.Context, s *Settlement) error

	// ListPending returns pending settlements, oldest first, for the poll loop.
	ListPending(ctx context.Context, limit int) ([]*Settlement, error)

	// ListUnsubmitted returns pending settlements without a tx ref yet.
	ListUnsubmitted(ctx context.Context, limit int) ([]*Settlement, error)

	// ListFailed returns failed settlements awaiting an explicit retry.
	ListFailed(ctx context.Context, limit int) ([]*Settlement, error)

	// CountByStatus returns the number of settlements per status.
	CountByStatus(ctx context.Context, status Status) (int, error)
}
