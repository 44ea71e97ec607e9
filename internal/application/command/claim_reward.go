package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/olgagaga/web3-learning/internal/domain/commitment"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLAIM REWARD COMMAND
// Acknowledges a resolved commitment once its terminal settlement confirmed.
// ══════════════════════════════════════════════════════════════════════════════

// ClaimRewardCommand contains the data to claim a resolved commitment.
type ClaimRewardCommand struct {
	// CommitmentID is the commitment being claimed.
	CommitmentID string

	// LearnerID must match the commitment's owner.
	LearnerID string
}

// Validate validates the command.
func (c ClaimRewardCommand) Validate() error {
	if c.CommitmentID == "" {
		return errors.New("claim_reward: commitment_id is required")
	}
	if c.LearnerID == "" {
		return errors.New("claim_reward: learner_id is required")
	}
	return nil
}

// ClaimRewardResult contains the claimed outcome.
type ClaimRewardResult struct {
	// Outcome is the terminal state that was claimed (completed or failed).
	Outcome string

	// Payout is the reward amount (zero for failed commitments).
	Payout shared.Amount

	// TxRef is the confirmed settlement reference.
	TxRef shared.TxRef

	// ClaimedAt is when the claim was recorded.
	ClaimedAt time.Time
}

// ClaimRewardHandler handles the ClaimRewardCommand.
type ClaimRewardHandler struct {
	commitmentRepo commitment.Repository
}

// NewClaimRewardHandler creates a new ClaimRewardHandler.
func NewClaimRewardHandler(commitmentRepo commitment.Repository) *ClaimRewardHandler {
	return &ClaimRewardHandler{commitmentRepo: commitmentRepo}
}

// Handle executes the claim reward command.
func (h *ClaimRewardHandler) Handle(ctx context.Context, cmd ClaimRewardCommand) (*ClaimRewardResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("claim_reward: validation failed: %w", err)
	}

	c, err := h.commitmentRepo.GetByID(ctx, cmd.CommitmentID)
	if err != nil {
		return nil, fmt.Errorf("claim_reward: %w", err)
	}

	learnerID, err := shared.NewLearnerID(cmd.LearnerID)
	if err != nil {
		return nil, fmt.Errorf("claim_reward: %w", err)
	}
	if c.LearnerID != learnerID {
		return nil, shared.NewDomainError("commitment", "Claim", shared.ErrNotEligible,
			"commitment belongs to another learner")
	}

	// Replaying a claim is idempotent: the recorded result comes back
	// unchanged instead of a transition error.
	if c.Status == commitment.StatusClaimed {
		return claimedResult(c), nil
	}

	outcome := c.Status.String()
	now := time.Now().UTC()
	if err := c.Claim(now); err != nil {
		return nil, fmt.Errorf("claim_reward: %w", err)
	}

	if err := h.commitmentRepo.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("claim_reward: failed to persist: %w", err)
	}

	return &ClaimRewardResult{
		Outcome:   outcome,
		Payout:    c.Payout,
		TxRef:     c.PayoutTxRef,
		ClaimedAt: c.ClaimedAt,
	}, nil
}

// claimedResult reconstructs the result of an earlier claim. The terminal
// outcome is recoverable from the payout: only completions carry one.
func claimedResult(c *commitment.Commitment) *ClaimRewardResult {
	outcome := commitment.StatusFailed.String()
	if c.Payout.IsPositive() {
		outcome = commitment.StatusCompleted.String()
	}
	return &ClaimRewardResult{
		Outcome:   outcome,
		Payout:    c.Payout,
		TxRef:     c.PayoutTxRef,
		ClaimedAt: c.ClaimedAt,
	}
}
