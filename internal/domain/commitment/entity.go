// Package commitment contains the staked learning goal aggregate.
// A commitment locks a stake against a measurable goal: reach the target
// before the deadline and the stake comes back with a reward, miss it and
// the stake is forfeited to the scholarship pool.
package commitment

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/olgagaga/web3-learning/internal/domain/progress"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// GoalType determines how progress events are aggregated toward the target.
type GoalType string

const (
	// GoalStreak - activity on N distinct consecutive calendar days.
	GoalStreak GoalType = "streak"
	// GoalItemCount - complete N items (lessons, exercises).
	GoalItemCount GoalType = "item_count"
	// GoalScoreThreshold - reach a score of at least N on any single attempt.
	GoalScoreThreshold GoalType = "score_threshold"
	// GoalTimeSpent - accumulate N minutes of study time.
	GoalTimeSpent GoalType = "time_spent"
)

// IsValid checks that the goal type is known.
func (g GoalType) IsValid() bool {
	switch g {
	case GoalStreak, GoalItemCount, GoalScoreThreshold, GoalTimeSpent:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (g GoalType) String() string {
	return string(g)
}

// DefaultEventKind returns the progress kind this goal type counts by default.
func (g GoalType) DefaultEventKind() progress.Kind {
	switch g {
	case GoalStreak:
		return progress.KindDailyCheckin
	case GoalItemCount:
		return progress.KindExerciseSolved
	case GoalScoreThreshold:
		return progress.KindQuizScored
	case GoalTimeSpent:
		return progress.KindStudyTime
	default:
		return ""
	}
}

// Status represents the commitment lifecycle state.
type Status string

const (
	// StatusPending - created, stake funding not yet confirmed.
	StatusPending Status = "pending"
	// StatusActive - funded and accumulating progress.
	StatusActive Status = "active"
	// StatusCompleted - target reached before the deadline.
	StatusCompleted Status = "completed"
	// StatusFailed - deadline passed without reaching the target.
	StatusFailed Status = "failed"
	// StatusClaimed - terminal outcome settled and acknowledged.
	StatusClaimed Status = "claimed"
)

// IsValid checks that the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusFailed, StatusClaimed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for completed, failed and claimed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusClaimed
}

// AcceptsProgress returns true if progress events may be recorded against
// a commitment in this state. Pending commitments buffer events; they only
// count once the commitment activates.
func (s Status) AcceptsProgress() bool {
	return s == StatusPending || s == StatusActive
}

// String returns the string representation.
func (s Status) String() string {
	return string(s)
}

// canTransition encodes the legal state machine edges.
func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusActive
	case StatusActive:
		return to == StatusCompleted || to == StatusFailed
	case StatusCompleted, StatusFailed:
		return to == StatusClaimed
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: COMMITMENT
// ══════════════════════════════════════════════════════════════════════════════

// Commitment is the staked goal aggregate.
// All transitions go through methods so invariants cannot be bypassed;
// the Version field backs optimistic concurrency in the repository.
type Commitment struct {
	// ID - internal unique identifier (UUID in string form).
	ID string

	// LearnerID - the learner who staked.
	LearnerID shared.LearnerID

	// GoalType - how progress is aggregated.
	GoalType GoalType

	// EventKind - which progress kind counts toward this goal.
	EventKind progress.Kind

	// Target - goal-type-specific target (days, items, score, minutes).
	Target int64

	// Progress - current aggregated value. Monotonic: recomputation over a
	// grown event set never decreases it.
	Progress int64

	// Stake - the amount locked behind the goal.
	Stake shared.Amount

	// Payout - set on completion: stake multiplied by the reward rate.
	Payout shared.Amount

	// Status - lifecycle state.
	Status Status

	// Deadline - end of the goal window (exclusive).
	Deadline time.Time

	// StakeTxRef - settlement reference for the funding transaction.
	StakeTxRef shared.TxRef

	// PayoutTxRef - settlement reference for the payout or forfeiture.
	PayoutTxRef shared.TxRef

	// TransitionID - unique ID of the latest terminal transition,
	// used for exactly-once webhook dispatch.
	TransitionID string

	CreatedAt   time.Time
	ActivatedAt time.Time
	ResolvedAt  time.Time
	ClaimedAt   time.Time
	UpdatedAt   time.Time

	// Version - optimistic lock counter, incremented by the repository on save.
	Version int
}

// NewCommitmentParams holds the parameters for creating a commitment.
type NewCommitmentParams struct {
	ID        string
	LearnerID string
	GoalType  string
	EventKind string
	Target    int64
	Stake     shared.Amount
	Duration  time.Duration
	Now       time.Time
}

// DurationBounds limits how long a commitment window may be.
type DurationBounds struct {
	Min time.Duration
	Max time.Duration
}

// NewCommitment creates a pending commitment with validation.
// The commitment stays pending until the stake funding is confirmed.
func NewCommitment(p NewCommitmentParams, bounds DurationBounds) (*Commitment, error) {
	learnerID, err := shared.NewLearnerID(p.LearnerID)
	if err != nil {
		return nil, err
	}

	goalType := GoalType(strings.TrimSpace(p.GoalType))
	if !goalType.IsValid() {
		return nil, shared.ErrInvalidGoalType
	}

	eventKind := progress.Kind(strings.TrimSpace(p.EventKind))
	if eventKind == "" {
		eventKind = goalType.DefaultEventKind()
	}
	if !eventKind.IsValid() {
		return nil, shared.NewDomainError("commitment", "Create", shared.ErrInvalidInput, "unknown event kind")
	}

	if p.Target <= 0 {
		return nil, shared.NewDomainError("commitment", "Create", shared.ErrValueOutOfRange, "target must be positive")
	}

	if !p.Stake.IsPositive() {
		return nil, shared.NewDomainError("commitment", "Create", shared.ErrValueOutOfRange, "stake must be positive")
	}

	if p.Duration < bounds.Min || p.Duration > bounds.Max {
		return nil, shared.ErrInvalidDuration
	}

	now := p.Now.UTC()
	return &Commitment{
		ID:        p.ID,
		LearnerID: learnerID,
		GoalType:  goalType,
		EventKind: eventKind,
		Target:    p.Target,
		Stake:     p.Stake,
		Payout:    shared.ZeroAmount,
		Status:    StatusPending,
		Deadline:  now.Add(p.Duration),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────
// Transitions
// ──────────────────────────────────────────────────────────────────────────

// Activate confirms stake funding and opens the goal window.
func (c *Commitment) Activate(txRef shared.TxRef, now time.Time) error {
	if !canTransition(c.Status, StatusActive) {
		return shared.WrapError("commitment", "Activate", shared.ErrInvalidTransition,
			"cannot activate from "+c.Status.String(), nil)
	}
	if !txRef.IsValid() {
		return shared.NewDomainError("commitment", "Activate", shared.ErrEmptyValue, "settlement reference is required")
	}
	c.Status = StatusActive
	c.StakeTxRef = txRef
	c.ActivatedAt = now.UTC()
	c.UpdatedAt = now.UTC()
	return nil
}

// ApplyProgress sets the aggregated progress value and completes the
// commitment when the target is reached within the window.
// The value comes from recomputing the aggregator over the full stored
// event set, so ordering of individual reports does not matter.
func (c *Commitment) ApplyProgress(value int64, transitionID string, now time.Time) error {
	if c.Status != StatusActive {
		return shared.ErrCommitmentNotActive
	}
	if value < c.Progress {
		// Aggregators are monotonic over a growing event set; a smaller
		// value means a recompute raced an older snapshot. Keep the max.
		value = c.Progress
	}
	c.Progress = value
	c.UpdatedAt = now.UTC()

	if c.Progress >= c.Target {
		return c.complete(transitionID, now)
	}
	return nil
}

// complete moves an active commitment to completed.
func (c *Commitment) complete(transitionID string, now time.Time) error {
	if !canTransition(c.Status, StatusCompleted) {
		return shared.WrapError("commitment", "Complete", shared.ErrInvalidTransition,
			"cannot complete from "+c.Status.String(), nil)
	}
	c.Status = StatusCompleted
	c.TransitionID = transitionID
	c.ResolvedAt = now.UTC()
	c.UpdatedAt = now.UTC()
	return nil
}

// Expire resolves an active commitment whose deadline has passed.
// If the target was already met the commitment completes, otherwise it fails.
func (c *Commitment) Expire(transitionID string, now time.Time) error {
	if c.Status != StatusActive {
		return shared.WrapError("commitment", "Expire", shared.ErrInvalidTransition,
			"cannot expire from "+c.Status.String(), nil)
	}
	if !now.UTC().After(c.Deadline) {
		return shared.NewDomainError("commitment", "Expire", shared.ErrInvalidState, "deadline has not passed")
	}
	if c.Progress >= c.Target {
		return c.complete(transitionID, now)
	}
	c.Status = StatusFailed
	c.TransitionID = transitionID
	c.ResolvedAt = now.UTC()
	c.UpdatedAt = now.UTC()
	return nil
}

// SetPayout records the reward computed from the policy multiplier.
// Only meaningful on a completed commitment.
func (c *Commitment) SetPayout(multiplier decimal.Decimal, now time.Time) error {
	if c.Status != StatusCompleted {
		return shared.WrapError("commitment", "SetPayout", shared.ErrInvalidState,
			"payout applies to completed commitments only", nil)
	}
	c.Payout = c.Stake.MulFraction(multiplier)
	c.UpdatedAt = now.UTC()
	return nil
}

// Claim acknowledges the settled terminal outcome.
// Requires the payout (or forfeiture) settlement reference to be recorded.
func (c *Commitment) Claim(now time.Time) error {
	if !canTransition(c.Status, StatusClaimed) {
		return shared.ErrCommitmentNotClaimable
	}
	if !c.PayoutTxRef.IsValid() {
		return shared.NewDomainError("commitment", "Claim", shared.ErrInvalidState,
			"terminal settlement has not been confirmed")
	}
	c.Status = StatusClaimed
	c.ClaimedAt = now.UTC()
	c.UpdatedAt = now.UTC()
	return nil
}

// RecordSettlement stores the payout/forfeiture settlement reference once
// the settlement layer confirms it.
func (c *Commitment) RecordSettlement(txRef shared.TxRef, now time.Time) error {
	if !c.Status.IsTerminal() {
		return shared.ErrSubjectNotTerminal
	}
	if !txRef.IsValid() {
		return shared.NewDomainError("commitment", "RecordSettlement", shared.ErrEmptyValue, "settlement reference is required")
	}
	c.PayoutTxRef = txRef
	c.UpdatedAt = now.UTC()
	return nil
}

// ──────────────────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────────────────

// IsExpired reports whether the deadline has passed.
func (c *Commitment) IsExpired(now time.Time) bool {
	return now.UTC().After(c.Deadline)
}

// Remaining returns the distance to the target, never negative.
func (c *Commitment) Remaining() int64 {
	if c.Progress >= c.Target {
		return 0
	}
	return c.Target - c.Progress
}

// Window returns the goal window as a time range.
// Events reported while the commitment was still pending fall inside the
// window and count once the commitment activates.
func (c *Commitment) Window() shared.TimeRange {
	return shared.TimeRange{From: c.CreatedAt, To: c.Deadline}
}
