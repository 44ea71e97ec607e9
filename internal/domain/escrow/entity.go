// Package escrow contains the tutoring session aggregate.
// Funds are locked when the session is created and released only through
// one of the terminal dispositions: tutor payout, learner refund, or a
// dispute resolution split. A disputed session freezes its funds until an
// external decision arrives.
package escrow

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Status represents the session lifecycle state.
type Status string

const (
	// StatusCreated - funds escrowed, waiting for the tutor to accept.
	StatusCreated Status = "created"
	// StatusInProgress - tutor accepted, session underway.
	StatusInProgress Status = "in_progress"
	// StatusPendingReview - tutor submitted work, learner reviewing.
	StatusPendingReview Status = "pending_review"
	// StatusCompleted - learner verified, tutor paid out.
	StatusCompleted Status = "completed"
	// StatusDisputed - learner disputed, funds frozen.
	StatusDisputed Status = "disputed"
	// StatusCancelled - learner cancelled before acceptance, refunded.
	StatusCancelled Status = "cancelled"
	// StatusResolved - dispute closed by an external decision.
	StatusResolved Status = "resolved"
)

// IsValid checks that the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusInProgress, StatusPendingReview,
		StatusCompleted, StatusDisputed, StatusCancelled, StatusResolved:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once funds have a final disposition.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusResolved
}

// String returns the string representation.
func (s Status) String() string {
	return string(s)
}

// canTransition encodes the legal state machine edges.
func canTransition(from, to Status) bool {
	switch from {
	case StatusCreated:
		return to == StatusInProgress || to == StatusCancelled
	case StatusInProgress:
		return to == StatusPendingReview
	case StatusPendingReview:
		return to == StatusCompleted || to == StatusDisputed
	case StatusDisputed:
		return to == StatusResolved
	default:
		return false
	}
}

// Disposition records where the escrowed funds went.
type Disposition string

const (
	// DispositionEscrowed - funds still held by the engine.
	DispositionEscrowed Disposition = "escrowed"
	// DispositionTutor - paid out to the tutor (minus platform fee).
	DispositionTutor Disposition = "tutor"
	// DispositionRefund - returned to the learner in full.
	DispositionRefund Disposition = "refund"
	// DispositionSplit - divided between parties by dispute decision.
	DispositionSplit Disposition = "split"
)

// Decision is the external ruling that closes a disputed session.
type Decision string

const (
	// DecisionReleaseToTutor - the tutor delivered, pay out.
	DecisionReleaseToTutor Decision = "release_to_tutor"
	// DecisionRefundLearner - the work was not delivered, refund.
	DecisionRefundLearner Decision = "refund_learner"
	// DecisionSplit - partial delivery, split by the given fraction.
	DecisionSplit Decision = "split"
)

// IsValid checks that the decision is known.
func (d Decision) IsValid() bool {
	switch d {
	case DecisionReleaseToTutor, DecisionRefundLearner, DecisionSplit:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Session is the escrowed tutoring session aggregate.
// The Version field backs optimistic concurrency; Accept additionally runs
// under a per-session lock in the application layer so two tutors cannot
// both win the race.
type Session struct {
	// ID - internal unique identifier (UUID in string form).
	ID string

	// LearnerID - the learner paying for tutoring.
	LearnerID shared.LearnerID

	// TutorID - the tutor; empty until accepted when created open.
	TutorID shared.LearnerID

	// Topic - what the session covers.
	Topic string

	// Amount - the escrowed amount.
	Amount shared.Amount

	// Status - lifecycle state.
	Status Status

	// Disposition - where the funds went (escrowed until terminal).
	Disposition Disposition

	// TutorPayout - amount released to the tutor, set on completion/resolution.
	TutorPayout shared.Amount

	// LearnerRefund - amount returned to the learner, set on cancel/resolution.
	LearnerRefund shared.Amount

	// PlatformFee - fee withheld from the tutor payout.
	PlatformFee shared.Amount

	// WorkSummary - tutor's submission notes.
	WorkSummary string

	// DisputeReason - learner's dispute notes.
	DisputeReason string

	// FundsTxRef - settlement reference for the escrow funding.
	FundsTxRef shared.TxRef

	// PayoutTxRef - settlement reference for the terminal release.
	PayoutTxRef shared.TxRef

	// TransitionID - unique ID of the latest transition, webhook dedup key.
	TransitionID string

	CreatedAt   time.Time
	AcceptedAt  time.Time
	SubmittedAt time.Time
	ResolvedAt  time.Time
	UpdatedAt   time.Time

	// Version - optimistic lock counter, incremented by the repository on save.
	Version int
}

// NewSessionParams holds the parameters for creating a session.
type NewSessionParams struct {
	ID        string
	LearnerID string
	TutorID   string
	Topic     string
	Amount    shared.Amount
	FundsTx   shared.TxRef
	Now       time.Time
}

// NewSession creates a session with escrowed funds.
func NewSession(p NewSessionParams) (*Session, error) {
	learnerID, err := shared.NewLearnerID(p.LearnerID)
	if err != nil {
		return nil, err
	}

	tutorID, err := shared.NewLearnerID(p.TutorID)
	if err != nil {
		return nil, err
	}
	if tutorID == learnerID {
		return nil, shared.NewDomainError("escrow", "Create", shared.ErrInvalidInput, "learner cannot tutor themselves")
	}

	if strings.TrimSpace(p.Topic) == "" {
		return nil, shared.NewDomainError("escrow", "Create", shared.ErrEmptyValue, "topic is required")
	}

	if !p.Amount.IsPositive() {
		return nil, shared.NewDomainError("escrow", "Create", shared.ErrValueOutOfRange, "amount must be positive")
	}

	if !p.FundsTx.IsValid() {
		return nil, shared.NewDomainError("escrow", "Create", shared.ErrEmptyValue, "escrow funding reference is required")
	}

	now := p.Now.UTC()
	return &Session{
		ID:            p.ID,
		LearnerID:     learnerID,
		TutorID:       tutorID,
		Topic:         strings.TrimSpace(p.Topic),
		Amount:        p.Amount,
		Status:        StatusCreated,
		Disposition:   DispositionEscrowed,
		TutorPayout:   shared.ZeroAmount,
		LearnerRefund: shared.ZeroAmount,
		PlatformFee:   shared.ZeroAmount,
		FundsTxRef:    p.FundsTx,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────
// Transitions
// ──────────────────────────────────────────────────────────────────────────

// Accept marks the session in progress. Only the assigned tutor may accept.
func (s *Session) Accept(tutorID shared.LearnerID, transitionID string, now time.Time) error {
	if !canTransition(s.Status, StatusInProgress) {
		return shared.ErrSessionLocked
	}
	if tutorID != s.TutorID {
		return shared.ErrNotSessionTutor
	}
	s.Status = StatusInProgress
	s.TransitionID = transitionID
	s.AcceptedAt = now.UTC()
	s.UpdatedAt = now.UTC()
	return nil
}

// SubmitWork moves the session to pending review.
func (s *Session) SubmitWork(tutorID shared.LearnerID, summary, transitionID string, now time.Time) error {
	if !canTransition(s.Status, StatusPendingReview) {
		return shared.ErrSessionLocked
	}
	if tutorID != s.TutorID {
		return shared.ErrNotSessionTutor
	}
	s.Status = StatusPendingReview
	s.WorkSummary = strings.TrimSpace(summary)
	s.TransitionID = transitionID
	s.SubmittedAt = now.UTC()
	s.UpdatedAt = now.UTC()
	return nil
}

// Verify completes the session: the tutor is paid the amount minus the
// platform fee, and the fee stays with the platform.
func (s *Session) Verify(learnerID shared.LearnerID, feeRate decimal.Decimal, transitionID string, now time.Time) error {
	if !canTransition(s.Status, StatusCompleted) {
		return shared.ErrSessionLocked
	}
	if learnerID != s.LearnerID {
		return shared.ErrNotSessionLearner
	}

	fee := s.Amount.MulFraction(feeRate)
	payout, err := s.Amount.Sub(fee)
	if err != nil {
		return shared.WrapError("escrow", "Verify", shared.ErrValueOutOfRange, "fee exceeds escrowed amount", err)
	}

	s.Status = StatusCompleted
	s.Disposition = DispositionTutor
	s.PlatformFee = fee
	s.TutorPayout = payout
	s.TransitionID = transitionID
	s.ResolvedAt = now.UTC()
	s.UpdatedAt = now.UTC()
	return nil
}

// Dispute freezes the session funds pending an external decision.
func (s *Session) Dispute(learnerID shared.LearnerID, reason, transitionID string, now time.Time) error {
	if !canTransition(s.Status, StatusDisputed) {
		return shared.ErrSessionLocked
	}
	if learnerID != s.LearnerID {
		return shared.ErrNotSessionLearner
	}
	s.Status = StatusDisputed
	s.DisputeReason = strings.TrimSpace(reason)
	s.TransitionID = transitionID
	s.UpdatedAt = now.UTC()
	return nil
}

// Cancel refunds the learner. Only allowed before the tutor accepts.
func (s *Session) Cancel(learnerID shared.LearnerID, transitionID string, now time.Time) error {
	if !canTransition(s.Status, StatusCancelled) {
		return shared.ErrSessionLocked
	}
	if learnerID != s.LearnerID {
		return shared.ErrNotSessionLearner
	}
	s.Status = StatusCancelled
	s.Disposition = DispositionRefund
	s.LearnerRefund = s.Amount
	s.TransitionID = transitionID
	s.ResolvedAt = now.UTC()
	s.UpdatedAt = now.UTC()
	return nil
}

// ResolveDispute applies an external final decision to a disputed session.
// tutorShare applies only to split decisions and is the fraction of the
// escrowed amount released to the tutor.
func (s *Session) ResolveDispute(decision Decision, tutorShare decimal.Decimal, feeRate decimal.Decimal, transitionID string, now time.Time) error {
	if s.Status != StatusDisputed {
		return shared.ErrSessionNotDisputed
	}
	if !decision.IsValid() {
		return shared.NewDomainError("escrow", "ResolveDispute", shared.ErrInvalidInput, "unknown decision")
	}

	switch decision {
	case DecisionReleaseToTutor:
		fee := s.Amount.MulFraction(feeRate)
		payout, err := s.Amount.Sub(fee)
		if err != nil {
			return shared.WrapError("escrow", "ResolveDispute", shared.ErrValueOutOfRange, "fee exceeds escrowed amount", err)
		}
		s.Disposition = DispositionTutor
		s.PlatformFee = fee
		s.TutorPayout = payout

	case DecisionRefundLearner:
		s.Disposition = DispositionRefund
		s.LearnerRefund = s.Amount

	case DecisionSplit:
		if tutorShare.IsNegative() || tutorShare.GreaterThan(decimal.NewFromInt(1)) {
			return shared.NewDomainError("escrow", "ResolveDispute", shared.ErrValueOutOfRange, "tutor share must be within [0, 1]")
		}
		tutorGross := s.Amount.MulFraction(tutorShare)
		fee := tutorGross.MulFraction(feeRate)
		payout, err := tutorGross.Sub(fee)
		if err != nil {
			return shared.WrapError("escrow", "ResolveDispute", shared.ErrValueOutOfRange, "fee exceeds tutor share", err)
		}
		refund, err := s.Amount.Sub(tutorGross)
		if err != nil {
			return shared.WrapError("escrow", "ResolveDispute", shared.ErrValueOutOfRange, "split exceeds escrowed amount", err)
		}
		s.Disposition = DispositionSplit
		s.PlatformFee = fee
		s.TutorPayout = payout
		s.LearnerRefund = refund
	}

	s.Status = StatusResolved
	s.TransitionID = transitionID
	s.ResolvedAt = now.UTC()
	s.UpdatedAt = now.UTC()
	return nil
}

// RecordSettlement stores the terminal release settlement reference.
func (s *Session) RecordSettlement(txRef shared.TxRef, now time.Time) error {
	if !s.Status.IsTerminal() {
		return shared.ErrSubjectNotTerminal
	}
	if !txRef.IsValid() {
		return shared.NewDomainError("escrow", "RecordSettlement", shared.ErrEmptyValue, "settlement reference is required")
	}
	s.PayoutTxRef = txRef
	s.UpdatedAt = now.UTC()
	return nil
}

// ──────────────────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────────────────

// FundsAccounted checks the disposition invariant: on any terminal state
// payout + refund + fee equals the escrowed amount exactly.
func (s *Session) FundsAccounted() bool {
	if !s.Status.IsTerminal() {
		return s.Disposition == DispositionEscrowed
	}
	total := s.TutorPayout.Add(s.LearnerRefund).Add(s.PlatformFee)
	return total.Equal(s.Amount)
}
