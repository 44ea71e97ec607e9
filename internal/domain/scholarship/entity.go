// Package scholarship contains the quadratic funding round aggregate.
// Donors contribute to verified improvement claims; when the round closes
// the pool is matched quadratically: many small donors beat one whale.
package scholarship

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// RoundStatus represents the funding round lifecycle state.
type RoundStatus string

const (
	// RoundOpen - accepting claims and donations.
	RoundOpen RoundStatus = "open"
	// RoundFinalized - matching computed, rewards persisted.
	RoundFinalized RoundStatus = "finalized"
)

// IsValid checks that the status is known.
func (s RoundStatus) IsValid() bool {
	return s == RoundOpen || s == RoundFinalized
}

// ClaimStatus represents the claim lifecycle state.
type ClaimStatus string

const (
	// ClaimSubmitted - waiting for eligibility verification.
	ClaimSubmitted ClaimStatus = "submitted"
	// ClaimVerified - eligible, participates in matching.
	ClaimVerified ClaimStatus = "verified"
	// ClaimRejected - failed eligibility.
	ClaimRejected ClaimStatus = "rejected"
	// ClaimRewarded - round closed, reward persisted.
	ClaimRewarded ClaimStatus = "rewarded"
)

// IsValid checks that the status is known.
func (s ClaimStatus) IsValid() bool {
	switch s {
	case ClaimSubmitted, ClaimVerified, ClaimRejected, ClaimRewarded:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUND
// ══════════════════════════════════════════════════════════════════════════════

// Round is a scholarship funding round.
// The pool grows from forfeited commitment stakes and direct top-ups;
// rollover from the previous round seeds the next one.
type Round struct {
	// ID - internal unique identifier (UUID in string form).
	ID string

	// Status - lifecycle state.
	Status RoundStatus

	// Pool - the matching pool available at close.
	Pool shared.Amount

	// Distributed - total matched out at finalization.
	Distributed shared.Amount

	// Rollover - remainder carried into the next round.
	Rollover shared.Amount

	// Window - the submission and donation window.
	Window shared.TimeRange

	// TransitionID - unique ID of the finalization, webhook dedup key.
	TransitionID string

	CreatedAt   time.Time
	FinalizedAt time.Time
	UpdatedAt   time.Time

	// Version - optimistic lock counter, incremented by the repository on save.
	Version int
}

// NewRoundParams holds the parameters for opening a round.
type NewRoundParams struct {
	ID       string
	SeedPool shared.Amount
	Window   shared.TimeRange
	Now      time.Time
}

// NewRound opens a funding round seeded with the previous round's rollover.
func NewRound(p NewRoundParams) (*Round, error) {
	if !p.Window.IsValid() {
		return nil, shared.NewDomainError("scholarship", "NewRound", shared.ErrInvalidInput, "invalid round window")
	}
	now := p.Now.UTC()
	return &Round{
		ID:          p.ID,
		Status:      RoundOpen,
		Pool:        p.SeedPool,
		Distributed: shared.ZeroAmount,
		Rollover:    shared.ZeroAmount,
		Window:      p.Window,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}, nil
}

// AddToPool grows the matching pool (forfeited stake, platform top-up).
func (r *Round) AddToPool(amount shared.Amount, now time.Time) error {
	if r.Status != RoundOpen {
		return shared.ErrRoundClosed
	}
	if !amount.IsPositive() {
		return shared.NewDomainError("scholarship", "AddToPool", shared.ErrValueOutOfRange, "amount must be positive")
	}
	r.Pool = r.Pool.Add(amount)
	r.UpdatedAt = now.UTC()
	return nil
}

// Finalize records the matching outcome. The caller computes the result
// with ComputeMatching and persists rewards atomically with this.
func (r *Round) Finalize(distributed, rollover shared.Amount, transitionID string, now time.Time) error {
	if r.Status != RoundOpen {
		return shared.ErrRoundClosed
	}
	total := distributed.Add(rollover)
	if !total.Equal(r.Pool) {
		return shared.NewDomainError("scholarship", "Finalize", shared.ErrInvalidState,
			"distributed plus rollover must equal the pool")
	}
	r.Status = RoundFinalized
	r.Distributed = distributed
	r.Rollover = rollover
	r.TransitionID = transitionID
	r.FinalizedAt = now.UTC()
	r.UpdatedAt = now.UTC()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CLAIM
// ══════════════════════════════════════════════════════════════════════════════

// Claim is a learner's verified-improvement scholarship application.
type Claim struct {
	// ID - internal unique identifier (UUID in string form).
	ID string

	// RoundID - the round the claim belongs to.
	RoundID string

	// LearnerID - the applicant.
	LearnerID shared.LearnerID

	// ImprovementPercent - measured improvement over the timeframe.
	ImprovementPercent decimal.Decimal

	// TimeframeDays - over how many days the improvement was measured.
	TimeframeDays int

	// Evidence - free-form pointer to the supporting data.
	Evidence string

	// Status - lifecycle state.
	Status ClaimStatus

	// Reward - matched amount, set at round finalization.
	Reward shared.Amount

	CreatedAt  time.Time
	VerifiedAt time.Time
	UpdatedAt  time.Time

	// Version - optimistic lock counter, incremented by the repository on save.
	Version int
}

// NewClaimParams holds the parameters for submitting a claim.
type NewClaimParams struct {
	ID                 string
	RoundID            string
	LearnerID          string
	ImprovementPercent decimal.Decimal
	TimeframeDays      int
	Evidence           string
	Now                time.Time
}

// NewClaim submits a claim into an open round.
func NewClaim(p NewClaimParams) (*Claim, error) {
	learnerID, err := shared.NewLearnerID(p.LearnerID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.RoundID) == "" {
		return nil, shared.NewDomainError("scholarship", "NewClaim", shared.ErrEmptyValue, "round ID is required")
	}
	if p.ImprovementPercent.IsNegative() {
		return nil, shared.NewDomainError("scholarship", "NewClaim", shared.ErrNegativeValue, "improvement cannot be negative")
	}
	if p.TimeframeDays <= 0 {
		return nil, shared.NewDomainError("scholarship", "NewClaim", shared.ErrValueOutOfRange, "timeframe must be positive")
	}

	now := p.Now.UTC()
	return &Claim{
		ID:                 p.ID,
		RoundID:            p.RoundID,
		LearnerID:          learnerID,
		ImprovementPercent: p.ImprovementPercent,
		TimeframeDays:      p.TimeframeDays,
		Evidence:           strings.TrimSpace(p.Evidence),
		Status:             ClaimSubmitted,
		Reward:             shared.ZeroAmount,
		CreatedAt:          now,
		UpdatedAt:          now,
		Version:            1,
	}, nil
}

// EligibilityRules holds the verification thresholds.
type EligibilityRules struct {
	// MinImprovementPercent - claims below this improvement are rejected.
	MinImprovementPercent decimal.Decimal

	// MinTimeframeDays - improvement must span at least this many days.
	MinTimeframeDays int
}

// Verify runs eligibility checks and moves the claim to verified or rejected.
// An ineligible claim returns the eligibility error and stays queryable as
// rejected.
func (c *Claim) Verify(rules EligibilityRules, now time.Time) error {
	if c.Status != ClaimSubmitted {
		return shared.WrapError("scholarship", "VerifyClaim", shared.ErrInvalidTransition,
			"claim is not awaiting verification", nil)
	}

	if c.ImprovementPercent.LessThan(rules.MinImprovementPercent) || c.TimeframeDays < rules.MinTimeframeDays {
		c.Status = ClaimRejected
		c.UpdatedAt = now.UTC()
		return shared.ErrClaimNotEligible
	}

	c.Status = ClaimVerified
	c.VerifiedAt = now.UTC()
	c.UpdatedAt = now.UTC()
	return nil
}

// SetReward records the matched amount at round finalization.
func (c *Claim) SetReward(reward shared.Amount, now time.Time) error {
	if c.Status != ClaimVerified {
		return shared.ErrClaimNotVerified
	}
	c.Status = ClaimRewarded
	c.Reward = reward
	c.UpdatedAt = now.UTC()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DONATION
// ══════════════════════════════════════════════════════════════════════════════

// Donation is a donor's contribution toward a specific claim.
// Donations are append-only; matching reads them at round close.
type Donation struct {
	// ID - internal unique identifier (UUID in string form).
	ID string

	// RoundID - the round the donation belongs to.
	RoundID string

	// ClaimID - the claim being supported.
	ClaimID string

	// DonorID - the contributing account.
	DonorID shared.LearnerID

	// Amount - the contributed amount.
	Amount shared.Amount

	// TxRef - settlement reference for the transfer.
	TxRef shared.TxRef

	CreatedAt time.Time
}

// NewDonationParams holds the parameters for recording a donation.
type NewDonationParams struct {
	ID      string
	RoundID string
	ClaimID string
	DonorID string
	Amount  shared.Amount
	TxRef   shared.TxRef
	Now     time.Time
}

// NewDonation records a validated donation.
func NewDonation(p NewDonationParams) (*Donation, error) {
	donorID, err := shared.NewLearnerID(p.DonorID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.RoundID) == "" || strings.TrimSpace(p.ClaimID) == "" {
		return nil, shared.NewDomainError("scholarship", "NewDonation", shared.ErrEmptyValue, "round and claim IDs are required")
	}
	if !p.Amount.IsPositive() {
		return nil, shared.NewDomainError("scholarship", "NewDonation", shared.ErrValueOutOfRange, "amount must be positive")
	}
	if !p.TxRef.IsValid() {
		return nil, shared.NewDomainError("scholarship", "NewDonation", shared.ErrEmptyValue, "settlement reference is required")
	}
	return &Donation{
		ID:        p.ID,
		RoundID:   p.RoundID,
		ClaimID:   p.ClaimID,
		DonorID:   donorID,
		Amount:    p.Amount,
		TxRef:     p.TxRef,
		CreatedAt: p.Now.UTC(),
	}, nil
}
