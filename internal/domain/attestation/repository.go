package attestation

import (
	"context"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository defines storage operations for attestations.
type Repository interface {
	// Save persists an issued attestation.
	// Returns ErrAlreadyIssued if a live attestation already exists for the
	// same subject kind and subject ID.
	Save(ctx context.Context, a *Attestation) error

	// GetByID returns an attestation by ID.
	// Returns ErrAttestationNotFound if absent.
	GetByID(ctx context.Context, id string) (*Attestation, error)

	// GetLiveBySubject returns the unexpired attestation for a subject.
	// Returns ErrAttestationNotFound if none is live.
	GetLiveBySubject(ctx context.Context, kind SubjectKind, subjectID string) (*Attestation, error)

	// ListByLearner returns a learner's attestations, newest first.
	ListByLearner(ctx context.Context, learnerID shared.LearnerID, opts ListOptions) ([]*Attestation, error)
}

// ListOptions holds pagination parameters for attestation listings.
type ListOptions struct {
	Offset int
	Limit  int
	Kind   SubjectKind // empty = all kinds
}

// DefaultListOptions returns the default listing window.
func DefaultListOptions() ListOptions {
	return ListOptions{Offset: 0, Limit: 50}
}
