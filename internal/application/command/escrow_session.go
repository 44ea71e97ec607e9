package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/olgagaga/web3-learning/internal/domain/escrow"
	"github.com/olgagaga/web3-learning/internal/domain/settlement"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ESCROW SESSION COMMANDS
// The session lifecycle: create (funds locked) → accept → submit work →
// verify / dispute → resolve, plus cancel before acceptance. Accept runs
// under a per-session lock so concurrent accepts cannot both win.
// ══════════════════════════════════════════════════════════════════════════════

// acceptLockTTL bounds how long an accept attempt may hold the session lock.
const acceptLockTTL = 10 * time.Second

// CreateSessionCommand contains the data to open an escrowed session.
type CreateSessionCommand struct {
	LearnerID string
	TutorID   string
	Topic     string
	Amount    string
	// FundsTxRef is the confirmed funding settlement reference.
	FundsTxRef string

	CorrelationID string
}

// Validate validates the command.
func (c CreateSessionCommand) Validate() error {
	if c.LearnerID == "" {
		return errors.New("create_session: learner_id is required")
	}
	if c.TutorID == "" {
		return errors.New("create_session: tutor_id is required")
	}
	if c.Amount == "" {
		return errors.New("create_session: amount is required")
	}
	if c.FundsTxRef == "" {
		return errors.New("create_session: funds_tx_ref is required")
	}
	return nil
}

// SessionResult is the shared result shape of session commands.
type SessionResult struct {
	Session *escrow.Session
}

// SessionHandler handles all escrow session commands.
type SessionHandler struct {
	sessionRepo    escrow.Repository
	sessionLock    escrow.SessionLock
	settlementRepo settlement.Repository
	eventPublisher shared.EventPublisher

	feeRate decimal.Decimal
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(
	sessionRepo escrow.Repository,
	sessionLock escrow.SessionLock,
	settlementRepo settlement.Repository,
	eventPublisher shared.EventPublisher,
	feeRate decimal.Decimal,
) *SessionHandler {
	return &SessionHandler{
		sessionRepo:    sessionRepo,
		sessionLock:    sessionLock,
		settlementRepo: settlementRepo,
		eventPublisher: eventPublisher,
		feeRate:        feeRate,
	}
}

// CreateSession opens a session with escrowed funds.
func (h *SessionHandler) CreateSession(ctx context.Context, cmd CreateSessionCommand) (*SessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("create_session: validation failed: %w", err)
	}

	amount, err := shared.NewAmount(cmd.Amount)
	if err != nil {
		return nil, fmt.Errorf("create_session: %w", err)
	}

	s, err := escrow.NewSession(escrow.NewSessionParams{
		ID:        uuid.NewString(),
		LearnerID: cmd.LearnerID,
		TutorID:   cmd.TutorID,
		Topic:     cmd.Topic,
		Amount:    amount,
		FundsTx:   shared.TxRef(cmd.FundsTxRef),
		Now:       time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("create_session: %w", err)
	}

	if err := h.sessionRepo.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create_session: failed to persist: %w", err)
	}

	h.publishTransition(shared.EventSessionCreated, s, "", cmd.CorrelationID)
	return &SessionResult{Session: s}, nil
}

// AcceptSession marks the session in progress under the per-session lock.
func (h *SessionHandler) AcceptSession(ctx context.Context, sessionID, tutorID string) (*SessionResult, error) {
	acquired, err := h.sessionLock.Acquire(ctx, sessionID, acceptLockTTL)
	if err != nil {
		return nil, fmt.Errorf("accept_session: lock: %w", err)
	}
	if !acquired {
		return nil, shared.NewDomainError("escrow", "Accept", shared.ErrConflict,
			"another accept is in flight for this session")
	}
	defer func() { _ = h.sessionLock.Release(ctx, sessionID) }()

	return h.transition(ctx, sessionID, func(s *escrow.Session, transitionID string, now time.Time) (shared.EventType, error) {
		tutor, err := shared.NewLearnerID(tutorID)
		if err != nil {
			return "", err
		}
		if err := s.Accept(tutor, transitionID, now); err != nil {
			return "", err
		}
		return shared.EventSessionAccepted, nil
	})
}

// SubmitWork moves the session to pending review.
func (h *SessionHandler) SubmitWork(ctx context.Context, sessionID, tutorID, summary string) (*SessionResult, error) {
	return h.transition(ctx, sessionID, func(s *escrow.Session, transitionID string, now time.Time) (shared.EventType, error) {
		tutor, err := shared.NewLearnerID(tutorID)
		if err != nil {
			return "", err
		}
		if err := s.SubmitWork(tutor, summary, transitionID, now); err != nil {
			return "", err
		}
		return shared.EventWorkSubmitted, nil
	})
}

// VerifySession completes the session and queues the tutor payout.
func (h *SessionHandler) VerifySession(ctx context.Context, sessionID, learnerID string) (*SessionResult, error) {
	result, err := h.transition(ctx, sessionID, func(s *escrow.Session, transitionID string, now time.Time) (shared.EventType, error) {
		learner, err := shared.NewLearnerID(learnerID)
		if err != nil {
			return "", err
		}
		if err := s.Verify(learner, h.feeRate, transitionID, now); err != nil {
			return "", err
		}
		return shared.EventSessionVerified, nil
	})
	if err != nil {
		return nil, err
	}
	if err := h.trackRelease(ctx, result.Session); err != nil {
		return result, fmt.Errorf("verify_session: %w", err)
	}
	return result, nil
}

// DisputeSession freezes the session funds pending resolution.
func (h *SessionHandler) DisputeSession(ctx context.Context, sessionID, learnerID, reason string) (*SessionResult, error) {
	return h.transition(ctx, sessionID, func(s *escrow.Session, transitionID string, now time.Time) (shared.EventType, error) {
		learner, err := shared.NewLearnerID(learnerID)
		if err != nil {
			return "", err
		}
		if err := s.Dispute(learner, reason, transitionID, now); err != nil {
			return "", err
		}
		return shared.EventSessionDisputed, nil
	})
}

// CancelSession refunds the learner before the tutor accepts.
func (h *SessionHandler) CancelSession(ctx context.Context, sessionID, learnerID string) (*SessionResult, error) {
	result, err := h.transition(ctx, sessionID, func(s *escrow.Session, transitionID string, now time.Time) (shared.EventType, error) {
		learner, err := shared.NewLearnerID(learnerID)
		if err != nil {
			return "", err
		}
		if err := s.Cancel(learner, transitionID, now); err != nil {
			return "", err
		}
		return shared.EventSessionCancelled, nil
	})
	if err != nil {
		return nil, err
	}
	if err := h.trackRelease(ctx, result.Session); err != nil {
		return result, fmt.Errorf("cancel_session: %w", err)
	}
	return result, nil
}

// ResolveDispute applies an external final decision to a disputed session.
func (h *SessionHandler) ResolveDispute(ctx context.Context, sessionID string, decision escrow.Decision, tutorShare decimal.Decimal) (*SessionResult, error) {
	result, err := h.transition(ctx, sessionID, func(s *escrow.Session, transitionID string, now time.Time) (shared.EventType, error) {
		if err := s.ResolveDispute(decision, tutorShare, h.feeRate, transitionID, now); err != nil {
			return "", err
		}
		return shared.EventDisputeResolved, nil
	})
	if err != nil {
		return nil, err
	}
	if err := h.trackRelease(ctx, result.Session); err != nil {
		return result, fmt.Errorf("resolve_dispute: %w", err)
	}
	return result, nil
}

// transition loads, mutates, and persists a session, retrying lock conflicts.
func (h *SessionHandler) transition(
	ctx context.Context,
	sessionID string,
	apply func(s *escrow.Session, transitionID string, now time.Time) (shared.EventType, error),
) (*SessionResult, error) {
	const maxRetries = 3
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		s, err := h.sessionRepo.GetByID(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		from := s.Status.String()
		eventType, err := apply(s, uuid.NewString(), time.Now().UTC())
		if err != nil {
			return nil, err
		}

		if err := h.sessionRepo.Update(ctx, s); err != nil {
			if errors.Is(err, shared.ErrOptimisticLock) {
				lastErr = err
				continue
			}
			return nil, err
		}

		h.publishTransition(eventType, s, from, "")
		return &SessionResult{Session: s}, nil
	}
	return nil, fmt.Errorf("escrow: gave up after %d lock conflicts: %w", maxRetries, lastErr)
}

// trackRelease queues the terminal fund release with the settlement layer.
// One instruction per disposition leg: the tutor payout (net of the platform
// fee, which stays with the platform account on the layer) and the learner
// refund. A split resolution queues both.
func (h *SessionHandler) trackRelease(ctx context.Context, s *escrow.Session) error {
	now := time.Now().UTC()
	if s.TutorPayout.IsPositive() {
		if err := h.trackLeg(ctx, s, settlement.KindEscrowRelease, s.TutorID, s.TutorPayout, now); err != nil {
			return err
		}
	}
	if s.LearnerRefund.IsPositive() {
		if err := h.trackLeg(ctx, s, settlement.KindEscrowRefund, s.LearnerID, s.LearnerRefund, now); err != nil {
			return err
		}
	}
	return nil
}

func (h *SessionHandler) trackLeg(ctx context.Context, s *escrow.Session, kind settlement.Kind, beneficiary shared.LearnerID, amount shared.Amount, now time.Time) error {
	leg, err := settlement.NewSettlement(settlement.NewSettlementParams{
		ID:        uuid.NewString(),
		Kind:      string(kind),
		SubjectID: s.ID,
		LearnerID: string(beneficiary),
		Amount:    amount,
		Now:       now,
	})
	if err != nil {
		return err
	}
	if err := h.settlementRepo.Create(ctx, leg); err != nil && !errors.Is(err, shared.ErrAlreadyExists) {
		return err
	}
	return nil
}

func (h *SessionHandler) publishTransition(eventType shared.EventType, s *escrow.Session, from, correlationID string) {
	event := shared.NewSessionStateChangedEvent(
		eventType,
		s.ID,
		string(s.LearnerID),
		string(s.TutorID),
		from,
		s.Status.String(),
		s.Amount.String(),
		s.TransitionID,
	)
	if correlationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(correlationID)
	}
	_ = h.eventPublisher.Publish(event)
}
