package commitment

import (
	"context"
	"time"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines storage operations for commitments.
type Repository interface {
	// Create persists a new commitment.
	// Returns ErrDuplicateActiveGoal if the learner already has a pending or
	// active commitment for the same goal type.
	Create(ctx context.Context, c *Commitment) error

	// GetByID returns a commitment by ID.
	// Returns ErrCommitmentNotFound if absent.
	GetByID(ctx context.Context, id string) (*Commitment, error)

	// Update saves a modified commitment using optimistic concurrency:
	// the write succeeds only if the stored version matches c.Version,
	// otherwise shared.ErrOptimisticLock is returned and the caller must
	// reload and reapply.
	Update(ctx context.Context, c *Commitment) error

	// ListByLearner returns the learner's commitments, newest first.
	ListByLearner(ctx context.Context, learnerID shared.LearnerID, opts ListOptions) ([]*Commitment, error)

	// ListByStatus returns commitments in the given state.
	ListByStatus(ctx context.Context, status Status, opts ListOptions) ([]*Commitment, error)

	// ListExpired returns active commitments whose deadline passed before now.
	// Used by the deadline sweep.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Commitment, error)

	// ListActiveByLearnerKind returns pending and active commitments that
	// count the given event kind. Used to route incoming progress events.
	ListActiveByLearnerKind(ctx context.Context, learnerID shared.LearnerID, eventKind string) ([]*Commitment, error)

	// HasOpenGoal checks for a pending or active commitment of the goal type.
	HasOpenGoal(ctx context.Context, learnerID shared.LearnerID, goalType GoalType) (bool, error)

	// Count returns the number of commitments per status.
	Count(ctx context.Context, status Status) (int, error)
}

// ListOptions holds pagination parameters for commitment listings.
type ListOptions struct {
	Offset int
	Limit  int
}

// DefaultListOptions returns the default listing window.
func DefaultListOptions() ListOptions {
	return ListOptions{Offset: 0, Limit: 50}
}
