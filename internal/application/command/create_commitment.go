package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/olgagaga/web3-learning/internal/domain/commitment"
	"github.com/olgagaga/web3-learning/internal/domain/settlement"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE COMMITMENT COMMAND
// Opens a pending staked goal and queues the stake funding with the
// settlement layer. The commitment activates only when funding confirms.
// ══════════════════════════════════════════════════════════════════════════════

// CreateCommitmentCommand contains the data to open a commitment.
type CreateCommitmentCommand struct {
	// LearnerID is the internal ID of the learner staking.
	LearnerID string

	// GoalType is how progress is aggregated (streak, item_count, ...).
	GoalType string

	// EventKind optionally overrides the goal type's default counted kind.
	EventKind string

	// Target is the goal-type-specific target value.
	Target int64

	// Stake is the staked amount as a decimal string.
	Stake string

	// Duration is the goal window length.
	Duration time.Duration

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CreateCommitmentCommand) Validate() error {
	if c.LearnerID == "" {
		return errors.New("create_commitment: learner_id is required")
	}
	if c.GoalType == "" {
		return errors.New("create_commitment: goal_type is required")
	}
	if c.Target <= 0 {
		return errors.New("create_commitment: target must be positive")
	}
	if c.Stake == "" {
		return errors.New("create_commitment: stake is required")
	}
	if c.Duration <= 0 {
		return errors.New("create_commitment: duration must be positive")
	}
	return nil
}

// CreateCommitmentResult contains the result of opening a commitment.
type CreateCommitmentResult struct {
	// Commitment is the created pending commitment.
	Commitment *commitment.Commitment

	// SettlementID tracks the stake funding transaction.
	SettlementID string
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CreateCommitmentHandler handles the CreateCommitmentCommand.
type CreateCommitmentHandler struct {
	commitmentRepo commitment.Repository
	settlementRepo settlement.Repository

	bounds commitment.DurationBounds
}

// NewCreateCommitmentHandler creates a new CreateCommitmentHandler.
func NewCreateCommitmentHandler(
	commitmentRepo commitment.Repository,
	settlementRepo settlement.Repository,
	bounds commitment.DurationBounds,
) *CreateCommitmentHandler {
	return &CreateCommitmentHandler{
		commitmentRepo: commitmentRepo,
		settlementRepo: settlementRepo,
		bounds:         bounds,
	}
}

// Handle executes the create commitment command.
func (h *CreateCommitmentHandler) Handle(ctx context.Context, cmd CreateCommitmentCommand) (*CreateCommitmentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("create_commitment: validation failed: %w", err)
	}

	stake, err := shared.NewAmount(cmd.Stake)
	if err != nil {
		return nil, fmt.Errorf("create_commitment: %w", err)
	}

	c, err := commitment.NewCommitment(commitment.NewCommitmentParams{
		ID:        uuid.NewString(),
		LearnerID: cmd.LearnerID,
		GoalType:  cmd.GoalType,
		EventKind: cmd.EventKind,
		Target:    cmd.Target,
		Stake:     stake,
		Duration:  cmd.Duration,
		Now:       time.Now().UTC(),
	}, h.bounds)
	if err != nil {
		return nil, fmt.Errorf("create_commitment: %w", err)
	}

	// One open goal per type per learner. The repository's constraint is the
	// backstop for races between this check and Create.
	open, err := h.commitmentRepo.HasOpenGoal(ctx, c.LearnerID, c.GoalType)
	if err != nil {
		return nil, fmt.Errorf("create_commitment: failed to check open goals: %w", err)
	}
	if open {
		return nil, shared.ErrDuplicateActiveGoal
	}

	if err := h.commitmentRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create_commitment: failed to persist: %w", err)
	}

	funding, err := settlement.NewSettlement(settlement.NewSettlementParams{
		ID:        uuid.NewString(),
		Kind:      string(settlement.KindCommitmentStake),
		SubjectID: c.ID,
		LearnerID: cmd.LearnerID,
		Amount:    stake,
		Now:       time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("create_commitment: %w", err)
	}
	if err := h.settlementRepo.Create(ctx, funding); err != nil {
		return nil, fmt.Errorf("create_commitment: failed to track stake funding: %w", err)
	}

	return &CreateCommitmentResult{
		Commitment:   c,
		SettlementID: funding.ID,
	}, nil
}
