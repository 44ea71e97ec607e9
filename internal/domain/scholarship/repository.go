package scholarship

import (
	"context"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// RoundRepository defines storage operations for funding rounds.
type RoundRepository interface {
	// Create persists a new round.
	Create(ctx context.Context, r *Round) error

	// GetByID returns a round by ID.
	// Returns ErrRoundNotFound if absent.
	GetByID(ctx context.Context, id string) (*Round, error)

	// GetOpen returns the currently open round.
	// Returns ErrRoundNotFound if none is open.
	GetOpen(ctx context.Context) (*Round, error)

	// Update saves a modified round using optimistic concurrency:
	// the write succeeds only if the stored version matches r.Version,
	// otherwise shared.ErrOptimisticLock is returned.
	Update(ctx context.Context, r *Round) error

	// ListFinalized returns finalized rounds, newest first.
	ListFinalized(ctx context.Context, opts ListOptions) ([]*Round, error)
}

// ClaimRepository defines storage operations for claims.
type ClaimRepository interface {
	// Create persists a new claim.
	Create(ctx context.Context, c *Claim) error

	// GetByID returns a claim by ID.
	// Returns ErrClaimNotFound if absent.
	GetByID(ctx context.Context, id string) (*Claim, error)

	// Update saves a modified claim using optimistic concurrency.
	Update(ctx context.Context, c *Claim) error

	// ListByRound returns claims in a round, optionally filtered by status
	// (empty status = all).
	ListByRound(ctx context.Context, roundID string, status ClaimStatus) ([]*Claim, error)

	// ListByLearner returns a learner's claims, newest first.
	ListByLearner(ctx context.Context, learnerID shared.LearnerID, opts ListOptions) ([]*Claim, error)
}

// DonationRepository defines storage operations for donations.
type DonationRepository interface {
	// Create persists a donation. Donations are never updated.
	Create(ctx context.Context, d *Donation) error

	// ListByRound returns all donations in a round.
	ListByRound(ctx context.Context, roundID string) ([]*Donation, error)

	// ListByClaim returns donations toward a claim.
	ListByClaim(ctx context.Context, claimID string) ([]*Donation, error)
}

// ListOptions holds pagination parameters for scholarship listings.
type ListOptions struct {
	Offset int
	Limit  int
}

// DefaultListOptions returns the default listing window.
func DefaultListOptions() ListOptions {
	return ListOptions{Offset: 0, Limit: 50}
}
