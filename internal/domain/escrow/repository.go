package escrow

import (
	"context"
	"time"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines storage operations for escrow sessions.
type Repository interface {
	// Create persists a new session.
	Create(ctx context.Context, s *Session) error

	// GetByID returns a session by ID.
	// Returns ErrSessionNotFound if absent.
	GetByID(ctx context.Context, id string) (*Session, error)

	// Update saves a modified session using optimistic concurrency:
	// the write succeeds only if the stored version matches s.Version,
	// otherwise shared.ErrOptimisticLock is returned.
	Update(ctx context.Context, s *Session) error

	// ListByLearner returns sessions where the learner is the payer.
	ListByLearner(ctx context.Context, learnerID shared.LearnerID, opts ListOptions) ([]*Session, error)

	// ListByTutor returns sessions where the learner is the tutor.
	ListByTutor(ctx context.Context, tutorID shared.LearnerID, opts ListOptions) ([]*Session, error)

	// ListByStatus returns sessions in the given state.
	ListByStatus(ctx context.Context, status Status, opts ListOptions) ([]*Session, error)
}

// SessionLock serializes accept attempts per session. Backed by Redis:
// whoever acquires the lock runs the transition, everyone else waits or
// fails fast with a conflict.
type SessionLock interface {
	// Acquire claims the session lock for the given TTL.
	// Returns false if another worker holds it.
	Acquire(ctx context.Context, sessionID string, ttl time.Duration) (bool, error)

	// Release frees the lock.
	Release(ctx context.Context, sessionID string) error
}

// ListOptions holds pagination parameters for session listings.
type ListOptions struct {
	Offset int
	Limit  int
}

// DefaultListOptions returns the default listing window.
func DefaultListOptions() ListOptions {
	return ListOptions{Offset: 0, Limit: 50}
}
