// Package settlement contains the pending-settlement queue and the port to
// the external settlement layer. The engine never assumes a submission went
// through: every money movement is tracked here until the layer confirms or
// rejects it, and a failed settlement is only ever re-submitted explicitly.
package settlement

import (
	"strings"
	"time"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Kind identifies the owning component and purpose of a settlement.
type Kind string

const (
	// KindCommitmentStake - stake funding for a new commitment.
	KindCommitmentStake Kind = "commitment_stake"
	// KindCommitmentPayout - reward payout for a completed commitment.
	KindCommitmentPayout Kind = "commitment_payout"
	// KindStakeForfeiture - failed-commitment stake routed to the pool.
	KindStakeForfeiture Kind = "stake_forfeiture"
	// KindEscrowFunding - funds locked for a tutoring session.
	KindEscrowFunding Kind = "escrow_funding"
	// KindEscrowRelease - tutor's share of a terminally released escrow.
	KindEscrowRelease Kind = "escrow_release"
	// KindEscrowRefund - learner's share of a terminally released escrow.
	KindEscrowRefund Kind = "escrow_refund"
	// KindScholarshipReward - matched reward from a finalized round.
	KindScholarshipReward Kind = "scholarship_reward"
)

// IsValid checks that the kind is known.
func (k Kind) IsValid() bool {
	switch k {
	case KindCommitmentStake, KindCommitmentPayout, KindStakeForfeiture,
		KindEscrowFunding, KindEscrowRelease, KindEscrowRefund, KindScholarshipReward:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (k Kind) String() string {
	return string(k)
}

// Status represents the settlement tracking state.
type Status string

const (
	// StatusPending - submitted or awaiting submission, outcome unknown.
	StatusPending Status = "pending"
	// StatusConfirmed - the layer confirmed the transaction.
	StatusConfirmed Status = "confirmed"
	// StatusFailed - the layer rejected it; waits for an explicit retry.
	StatusFailed Status = "failed"
)

// IsValid checks that the status is known.
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusFailed
}

// String returns the string representation.
func (s Status) String() string {
	return string(s)
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: PENDING SETTLEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Settlement tracks one money movement through the external layer.
type Settlement struct {
	// ID - internal unique identifier (UUID in string form).
	ID string

	// Kind - purpose and owning component.
	Kind Kind

	// SubjectID - the aggregate this settlement belongs to.
	SubjectID string

	// LearnerID - the beneficiary (or payer, for stakes and funding).
	LearnerID shared.LearnerID

	// Amount - the amount being moved.
	Amount shared.Amount

	// IdempotencyKey - submitted with the payload so a duplicated Submit
	// cannot double-spend on the layer side.
	IdempotencyKey shared.IdempotencyKey

	// TxRef - the layer's reference once submitted.
	TxRef shared.TxRef

	// Status - tracking state.
	Status Status

	// Attempts - how many times this settlement was submitted.
	Attempts int

	// LastError - the latest failure reason.
	LastError string

	CreatedAt   time.Time
	SubmittedAt time.Time
	ResolvedAt  time.Time
	UpdatedAt   time.Time

	// Version - optimistic lock counter, incremented by the repository on save.
	Version int
}

// NewSettlementParams holds the parameters for tracking a settlement.
type NewSettlementParams struct {
	ID        string
	Kind      string
	SubjectID string
	LearnerID string
	Amount    shared.Amount
	Now       time.Time
}

// NewSettlement creates a pending settlement record.
// The idempotency key is derived from the subject and kind, so tracking the
// same movement twice yields the same key and the store rejects the second.
func NewSettlement(p NewSettlementParams) (*Settlement, error) {
	kind := Kind(strings.TrimSpace(p.Kind))
	if !kind.IsValid() {
		return nil, shared.NewDomainError("settlement", "Track", shared.ErrInvalidInput, "unknown settlement kind")
	}
	if strings.TrimSpace(p.SubjectID) == "" {
		return nil, shared.NewDomainError("settlement", "Track", shared.ErrEmptyValue, "subject ID is required")
	}
	learnerID, err := shared.NewLearnerID(p.LearnerID)
	if err != nil {
		return nil, err
	}
	if !p.Amount.IsPositive() {
		return nil, shared.NewDomainError("settlement", "Track", shared.ErrValueOutOfRange, "amount must be positive")
	}

	key, err := shared.NewIdempotencyKey(p.SubjectID, string(kind))
	if err != nil {
		return nil, err
	}

	now := p.Now.UTC()
	return &Settlement{
		ID:             p.ID,
		Kind:           kind,
		SubjectID:      strings.TrimSpace(p.SubjectID),
		LearnerID:      learnerID,
		Amount:         p.Amount,
		IdempotencyKey: key,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}, nil
}

// MarkSubmitted records the layer's transaction reference.
func (s *Settlement) MarkSubmitted(txRef shared.TxRef, now time.Time) error {
	if s.Status != StatusPending {
		return shared.WrapError("settlement", "MarkSubmitted", shared.ErrInvalidState,
			"settlement is not pending", nil)
	}
	if !txRef.IsValid() {
		return shared.NewDomainError("settlement", "MarkSubmitted", shared.ErrEmptyValue, "tx ref is required")
	}
	s.TxRef = txRef
	s.Attempts++
	s.SubmittedAt = now.UTC()
	s.UpdatedAt = now.UTC()
	return nil
}

// Confirm marks the settlement confirmed by the layer.
func (s *Settlement) Confirm(now time.Time) error {
	if s.Status != StatusPending {
		return shared.WrapError("settlement", "Confirm", shared.ErrInvalidState,
			"settlement is not pending", nil)
	}
	s.Status = StatusConfirmed
	s.ResolvedAt = now.UTC()
	s.UpdatedAt = now.UTC()
	return nil
}

// Fail marks the settlement rejected. The owning aggregate enters its
// settlement-failed substate; nothing is re-submitted until Retry.
func (s *Settlement) Fail(reason string, now time.Time) error {
	if s.Status != StatusPending {
		return shared.WrapError("settlement", "Fail", shared.ErrInvalidState,
			"settlement is not pending", nil)
	}
	s.Status = StatusFailed
	s.LastError = strings.TrimSpace(reason)
	s.ResolvedAt = now.UTC()
	s.UpdatedAt = now.UTC()
	return nil
}

// Retry moves a failed settlement back to pending for explicit re-submission.
// The tx ref is cleared: the retry is a fresh submission with the same
// idempotency key, never a blind replay of the old reference.
func (s *Settlement) Retry(now time.Time) error {
	if s.Status != StatusFailed {
		return shared.ErrSettlementNotFailed
	}
	s.Status = StatusPending
	s.TxRef = ""
	s.LastError = ""
	s.ResolvedAt = time.Time{}
	s.UpdatedAt = now.UTC()
	return nil
}

// IsSubmitted reports whether a layer reference has been recorded.
func (s *Settlement) IsSubmitted() bool {
	return s.TxRef.IsValid()
}
