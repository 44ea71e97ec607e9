package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/olgagaga/web3-learning/internal/domain/commitment"
	"github.com/olgagaga/web3-learning/internal/domain/escrow"
	"github.com/olgagaga/web3-learning/internal/domain/settlement"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLY SETTLEMENT OUTCOME COMMAND
// The settlement sync: takes a polled layer outcome and applies it to the
// pending settlement and its owning aggregate. Confirmation of a stake
// funding activates the commitment; confirmation of a terminal movement
// records the reference on the aggregate; rejection parks the settlement
// as failed until an operator retries it.
// ══════════════════════════════════════════════════════════════════════════════

// ApplySettlementOutcomeCommand contains one polled outcome.
type ApplySettlementOutcomeCommand struct {
	// SettlementID is the tracked settlement.
	SettlementID string

	// Status is the layer-reported transaction status.
	Status settlement.TxStatus

	// Reason carries the rejection reason when Status is rejected.
	Reason string
}

// Validate validates the command.
func (c ApplySettlementOutcomeCommand) Validate() error {
	if c.SettlementID == "" {
		return errors.New("apply_settlement: settlement_id is required")
	}
	switch c.Status {
	case settlement.TxConfirmed, settlement.TxRejected, settlement.TxPending, settlement.TxUnknown:
		return nil
	default:
		return fmt.Errorf("apply_settlement: unknown tx status: %s", c.Status)
	}
}

// ApplySettlementOutcomeHandler handles the ApplySettlementOutcomeCommand.
type ApplySettlementOutcomeHandler struct {
	settlementRepo settlement.Repository
	commitmentRepo commitment.Repository
	sessionRepo    escrow.Repository
	eventPublisher shared.EventPublisher
}

// NewApplySettlementOutcomeHandler creates a new ApplySettlementOutcomeHandler.
func NewApplySettlementOutcomeHandler(
	settlementRepo settlement.Repository,
	commitmentRepo commitment.Repository,
	sessionRepo escrow.Repository,
	eventPublisher shared.EventPublisher,
) *ApplySettlementOutcomeHandler {
	return &ApplySettlementOutcomeHandler{
		settlementRepo: settlementRepo,
		commitmentRepo: commitmentRepo,
		sessionRepo:    sessionRepo,
		eventPublisher: eventPublisher,
	}
}

// Handle applies one settlement outcome.
func (h *ApplySettlementOutcomeHandler) Handle(ctx context.Context, cmd ApplySettlementOutcomeCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	// Pending and unknown outcomes leave the settlement untouched; the next
	// poll cycle asks again.
	if cmd.Status == settlement.TxPending || cmd.Status == settlement.TxUnknown {
		return nil
	}

	s, err := h.settlementRepo.GetByID(ctx, cmd.SettlementID)
	if err != nil {
		return fmt.Errorf("apply_settlement: %w", err)
	}
	if s.Status != settlement.StatusPending {
		// Already resolved by a concurrent poll.
		return nil
	}

	now := time.Now().UTC()
	confirmed := cmd.Status == settlement.TxConfirmed

	if confirmed {
		if err := s.Confirm(now); err != nil {
			return fmt.Errorf("apply_settlement: %w", err)
		}
	} else {
		if err := s.Fail(cmd.Reason, now); err != nil {
			return fmt.Errorf("apply_settlement: %w", err)
		}
	}

	if err := h.settlementRepo.Update(ctx, s); err != nil {
		if errors.Is(err, shared.ErrOptimisticLock) {
			return nil
		}
		return fmt.Errorf("apply_settlement: persist: %w", err)
	}

	if confirmed {
		if err := h.dispatchConfirmation(ctx, s, now); err != nil {
			return fmt.Errorf("apply_settlement: dispatch: %w", err)
		}
	}

	outcome := shared.NewSettlementOutcomeEvent(
		s.ID,
		string(s.TxRef),
		string(s.Kind),
		string(s.IdempotencyKey),
		confirmed,
		cmd.Reason,
	)
	_ = h.eventPublisher.Publish(outcome)
	return nil
}

// dispatchConfirmation routes a confirmed settlement to its owning aggregate.
func (h *ApplySettlementOutcomeHandler) dispatchConfirmation(ctx context.Context, s *settlement.Settlement, now time.Time) error {
	switch s.Kind {
	case settlement.KindCommitmentStake:
		c, err := h.commitmentRepo.GetByID(ctx, s.SubjectID)
		if err != nil {
			return err
		}
		if c.Status != commitment.StatusPending {
			// Replaying the recorded proof is idempotent; a different proof
			// for an already funded commitment is a conflict.
			if c.StakeTxRef.IsValid() && c.StakeTxRef != s.TxRef {
				return shared.ErrConflictingFundingProof
			}
			return nil
		}
		if err := c.Activate(s.TxRef, now); err != nil {
			return err
		}
		if err := h.commitmentRepo.Update(ctx, c); err != nil {
			return err
		}
		activated := shared.NewCommitmentActivatedEvent(
			c.ID,
			string(c.LearnerID),
			string(c.GoalType),
			c.Stake.String(),
			string(s.TxRef),
		)
		_ = h.eventPublisher.Publish(activated)
		return nil

	case settlement.KindCommitmentPayout, settlement.KindStakeForfeiture:
		c, err := h.commitmentRepo.GetByID(ctx, s.SubjectID)
		if err != nil {
			return err
		}
		if c.PayoutTxRef.IsValid() {
			return nil
		}
		if err := c.RecordSettlement(s.TxRef, now); err != nil {
			return err
		}
		return h.commitmentRepo.Update(ctx, c)

	case settlement.KindEscrowRelease, settlement.KindEscrowRefund:
		session, err := h.sessionRepo.GetByID(ctx, s.SubjectID)
		if err != nil {
			return err
		}
		if session.PayoutTxRef.IsValid() {
			return nil
		}
		if err := session.RecordSettlement(s.TxRef, now); err != nil {
			return err
		}
		return h.sessionRepo.Update(ctx, session)

	case settlement.KindEscrowFunding, settlement.KindScholarshipReward:
		// Funding references are recorded at session creation; reward
		// transfers have no aggregate-side reference field.
		return nil

	default:
		return shared.NewDomainError("settlement", "Dispatch", shared.ErrInvalidInput, "unknown settlement kind")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRY SETTLEMENT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// RetrySettlementCommand moves a failed settlement back to pending.
type RetrySettlementCommand struct {
	SettlementID string
}

// RetrySettlementHandler handles the RetrySettlementCommand.
type RetrySettlementHandler struct {
	settlementRepo settlement.Repository
}

// NewRetrySettlementHandler creates a new RetrySettlementHandler.
func NewRetrySettlementHandler(settlementRepo settlement.Repository) *RetrySettlementHandler {
	return &RetrySettlementHandler{settlementRepo: settlementRepo}
}

// Handle executes the retry. The settlement re-enters the submission queue
// with its original idempotency key; the layer deduplicates on its side.
func (h *RetrySettlementHandler) Handle(ctx context.Context, cmd RetrySettlementCommand) (*settlement.Settlement, error) {
	if cmd.SettlementID == "" {
		return nil, errors.New("retry_settlement: settlement_id is required")
	}

	s, err := h.settlementRepo.GetByID(ctx, cmd.SettlementID)
	if err != nil {
		return nil, fmt.Errorf("retry_settlement: %w", err)
	}

	if err := s.Retry(time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("retry_settlement: %w", err)
	}

	if err := h.settlementRepo.Update(ctx, s); err != nil {
		return nil, fmt.Errorf("retry_settlement: persist: %w", err)
	}
	return s, nil
}
