package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/olgagaga/web3-learning/internal/domain/commitment"
	"github.com/olgagaga/web3-learning/internal/domain/scholarship"
	"github.com/olgagaga/web3-learning/internal/domain/settlement"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE COMMITMENTS COMMAND
// Deadline sweep: resolves every active commitment whose window has ended.
// Commitments that met their target complete and earn the payout; the rest
// fail and their forfeited stake feeds the open scholarship round's pool.
// ══════════════════════════════════════════════════════════════════════════════

// ExpireCommitmentsCommand contains sweep parameters.
type ExpireCommitmentsCommand struct {
	// BatchSize limits how many commitments one sweep resolves.
	BatchSize int

	// Now is the sweep reference time (defaults to now if zero).
	Now time.Time
}

// ExpireCommitmentsResult contains sweep counts.
type ExpireCommitmentsResult struct {
	Examined  int
	Completed int
	Failed    int
	Errors    map[string]error
}

// ExpireCommitmentsHandler handles the ExpireCommitmentsCommand.
type ExpireCommitmentsHandler struct {
	commitmentRepo commitment.Repository
	settlementRepo settlement.Repository
	roundRepo      scholarship.RoundRepository
	eventPublisher shared.EventPublisher

	rewardMultiplier decimal.Decimal
}

// NewExpireCommitmentsHandler creates a new ExpireCommitmentsHandler.
func NewExpireCommitmentsHandler(
	commitmentRepo commitment.Repository,
	settlementRepo settlement.Repository,
	roundRepo scholarship.RoundRepository,
	eventPublisher shared.EventPublisher,
	rewardMultiplier decimal.Decimal,
) *ExpireCommitmentsHandler {
	return &ExpireCommitmentsHandler{
		commitmentRepo:   commitmentRepo,
		settlementRepo:   settlementRepo,
		roundRepo:        roundRepo,
		eventPublisher:   eventPublisher,
		rewardMultiplier: rewardMultiplier,
	}
}

// Handle executes the deadline sweep.
func (h *ExpireCommitmentsHandler) Handle(ctx context.Context, cmd ExpireCommitmentsCommand) (*ExpireCommitmentsResult, error) {
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	batch := cmd.BatchSize
	if batch <= 0 {
		batch = 100
	}

	expired, err := h.commitmentRepo.ListExpired(ctx, now, batch)
	if err != nil {
		return nil, fmt.Errorf("expire_commitments: failed to list expired: %w", err)
	}

	result := &ExpireCommitmentsResult{
		Examined: len(expired),
		Errors:   make(map[string]error),
	}

	for _, c := range expired {
		if err := h.resolve(ctx, c, now); err != nil {
			result.Errors[c.ID] = err
			continue
		}
		if c.Status == commitment.StatusCompleted {
			result.Completed++
		} else {
			result.Failed++
		}
	}

	return result, nil
}

// resolve expires one commitment and tracks the resulting money movement.
func (h *ExpireCommitmentsHandler) resolve(ctx context.Context, c *commitment.Commitment, now time.Time) error {
	transitionID := uuid.NewString()
	if err := c.Expire(transitionID, now); err != nil {
		return err
	}

	outcome := "failed"
	payout := shared.ZeroAmount
	if c.Status == commitment.StatusCompleted {
		outcome = "completed"
		if err := c.SetPayout(h.rewardMultiplier, now); err != nil {
			return err
		}
		payout = c.Payout
	}

	if err := h.commitmentRepo.Update(ctx, c); err != nil {
		// A concurrent progress recompute may have resolved it first; the
		// next sweep will skip it.
		if errors.Is(err, shared.ErrOptimisticLock) {
			return nil
		}
		return err
	}

	if c.Status == commitment.StatusCompleted {
		if err := h.trackSettlement(ctx, c, settlement.KindCommitmentPayout, c.Payout, now); err != nil {
			return err
		}
	} else {
		if err := h.trackSettlement(ctx, c, settlement.KindStakeForfeiture, c.Stake, now); err != nil {
			return err
		}
		if err := h.feedPool(ctx, c, now); err != nil {
			return err
		}
	}

	resolved := shared.NewCommitmentResolvedEvent(
		c.ID,
		string(c.LearnerID),
		string(c.GoalType),
		outcome,
		c.Stake.String(),
		payout.String(),
		c.TransitionID,
	)
	_ = h.eventPublisher.Publish(resolved)
	return nil
}

func (h *ExpireCommitmentsHandler) trackSettlement(ctx context.Context, c *commitment.Commitment, kind settlement.Kind, amount shared.Amount, now time.Time) error {
	s, err := settlement.NewSettlement(settlement.NewSettlementParams{
		ID:        uuid.NewString(),
		Kind:      string(kind),
		SubjectID: c.ID,
		LearnerID: string(c.LearnerID),
		Amount:    amount,
		Now:       now,
	})
	if err != nil {
		return err
	}
	if err := h.settlementRepo.Create(ctx, s); err != nil && !errors.Is(err, shared.ErrAlreadyExists) {
		return err
	}
	return nil
}

// feedPool routes a forfeited stake into the open scholarship round.
// No open round means the forfeiture stays tracked in the settlement queue
// and the next round opening picks it up through its seed.
func (h *ExpireCommitmentsHandler) feedPool(ctx context.Context, c *commitment.Commitment, now time.Time) error {
	round, err := h.roundRepo.GetOpen(ctx)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil
		}
		return err
	}

	if err := round.AddToPool(c.Stake, now); err != nil {
		return err
	}
	if err := h.roundRepo.Update(ctx, round); err != nil {
		return err
	}

	increased := shared.NewPoolIncreasedEvent(round.ID, c.Stake.String(), "forfeited_stake")
	increased.CommitmentID = c.ID
	_ = h.eventPublisher.Publish(increased)
	return nil
}
