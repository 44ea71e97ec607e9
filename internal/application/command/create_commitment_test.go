package command

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olgagaga/web3-learning/internal/domain/commitment"
	"github.com/olgagaga/web3-learning/internal/domain/settlement"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

func TestCreateCommitment(t *testing.T) {
	ctx := context.Background()

	newFixture := func() (*CreateCommitmentHandler, *fakeCommitmentRepo, *fakeSettlementRepo) {
		commitmentRepo := newFakeCommitmentRepo()
		settlementRepo := newFakeSettlementRepo()
		handler := NewCreateCommitmentHandler(commitmentRepo, settlementRepo, testBounds)
		return handler, commitmentRepo, settlementRepo
	}

	validCmd := func() CreateCommitmentCommand {
		return CreateCommitmentCommand{
			LearnerID: testLearnerID,
			GoalType:  string(commitment.GoalStreak),
			Target:    7,
			Stake:     "25.00",
			Duration:  14 * 24 * time.Hour,
		}
	}

	t.Run("opens pending commitment and queues stake funding", func(t *testing.T) {
		handler, commitmentRepo, settlementRepo := newFixture()

		result, err := handler.Handle(ctx, validCmd())
		require.NoError(t, err)

		assert.Equal(t, commitment.StatusPending, result.Commitment.Status)
		require.NotEmpty(t, result.SettlementID)

		stored, err := commitmentRepo.GetByID(ctx, result.Commitment.ID)
		require.NoError(t, err)
		assert.Equal(t, commitment.GoalStreak, stored.GoalType)

		funding, err := settlementRepo.GetByID(ctx, result.SettlementID)
		require.NoError(t, err)
		assert.Equal(t, settlement.KindCommitmentStake, funding.Kind)
		assert.Equal(t, result.Commitment.ID, funding.SubjectID)
		assert.True(t, funding.Amount.Equal(shared.MustAmount("25.00")))
		assert.Equal(t, settlement.StatusPending, funding.Status)
	})

	t.Run("rejects second open goal of the same type", func(t *testing.T) {
		handler, _, _ := newFixture()

		_, err := handler.Handle(ctx, validCmd())
		require.NoError(t, err)

		_, err = handler.Handle(ctx, validCmd())
		assert.ErrorIs(t, err, shared.ErrDuplicateActiveGoal)
	})

	t.Run("allows different goal types in parallel", func(t *testing.T) {
		handler, _, _ := newFixture()

		_, err := handler.Handle(ctx, validCmd())
		require.NoError(t, err)

		other := validCmd()
		other.GoalType = string(commitment.GoalItemCount)
		other.Target = 50
		_, err = handler.Handle(ctx, other)
		assert.NoError(t, err)
	})

	t.Run("rejects duration outside bounds", func(t *testing.T) {
		handler, _, _ := newFixture()

		cmd := validCmd()
		cmd.Duration = time.Hour
		_, err := handler.Handle(ctx, cmd)
		assert.ErrorIs(t, err, shared.ErrInvalidDuration)
	})

	t.Run("rejects malformed stake", func(t *testing.T) {
		handler, _, _ := newFixture()

		cmd := validCmd()
		cmd.Stake = "a lot"
		_, err := handler.Handle(ctx, cmd)
		assert.Error(t, err)
	})
}

func TestClaimReward(t *testing.T) {
	ctx := context.Background()

	// settledCommitment is completed with a confirmed payout reference,
	// which is the only state Claim accepts.
	settledCommitment := func(t *testing.T) *commitment.Commitment {
		t.Helper()
		c := newActiveCommitment(t, 1)
		now := time.Now().UTC()
		require.NoError(t, c.ApplyProgress(1, "trans-1", now))
		require.NoError(t, c.SetPayout(decimal.RequireFromString("1.10"), now))
		require.NoError(t, c.RecordSettlement(shared.TxRef("tx-payout-1"), now))
		return c
	}

	t.Run("claims settled completed commitment", func(t *testing.T) {
		commitmentRepo := newFakeCommitmentRepo()
		c := settledCommitment(t)
		commitmentRepo.put(c)
		handler := NewClaimRewardHandler(commitmentRepo)

		result, err := handler.Handle(ctx, ClaimRewardCommand{CommitmentID: c.ID, LearnerID: testLearnerID})
		require.NoError(t, err)

		assert.Equal(t, "completed", result.Outcome)
		assert.True(t, result.Payout.Equal(shared.MustAmount("22.00")))
		assert.Equal(t, shared.TxRef("tx-payout-1"), result.TxRef)

		stored, err := commitmentRepo.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, commitment.StatusClaimed, stored.Status)
	})

	t.Run("repeated claim returns the recorded result", func(t *testing.T) {
		commitmentRepo := newFakeCommitmentRepo()
		c := settledCommitment(t)
		commitmentRepo.put(c)
		handler := NewClaimRewardHandler(commitmentRepo)

		first, err := handler.Handle(ctx, ClaimRewardCommand{CommitmentID: c.ID, LearnerID: testLearnerID})
		require.NoError(t, err)

		second, err := handler.Handle(ctx, ClaimRewardCommand{CommitmentID: c.ID, LearnerID: testLearnerID})
		require.NoError(t, err)

		assert.Equal(t, first.Outcome, second.Outcome)
		assert.True(t, first.Payout.Equal(second.Payout))
		assert.Equal(t, first.TxRef, second.TxRef)
		assert.Equal(t, first.ClaimedAt, second.ClaimedAt)
	})

	t.Run("rejects claim by another learner", func(t *testing.T) {
		commitmentRepo := newFakeCommitmentRepo()
		c := settledCommitment(t)
		commitmentRepo.put(c)
		handler := NewClaimRewardHandler(commitmentRepo)

		_, err := handler.Handle(ctx, ClaimRewardCommand{CommitmentID: c.ID, LearnerID: testTutorID})
		assert.ErrorIs(t, err, shared.ErrNotEligible)
	})

	t.Run("rejects claim before settlement confirms", func(t *testing.T) {
		commitmentRepo := newFakeCommitmentRepo()
		c := newActiveCommitment(t, 1)
		now := time.Now().UTC()
		require.NoError(t, c.ApplyProgress(1, "trans-1", now))
		commitmentRepo.put(c)
		handler := NewClaimRewardHandler(commitmentRepo)

		_, err := handler.Handle(ctx, ClaimRewardCommand{CommitmentID: c.ID, LearnerID: testLearnerID})
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	t.Run("unknown commitment", func(t *testing.T) {
		handler := NewClaimRewardHandler(newFakeCommitmentRepo())

		_, err := handler.Handle(ctx, ClaimRewardCommand{CommitmentID: "missing", LearnerID: testLearnerID})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
