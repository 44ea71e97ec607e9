package command

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olgagaga/web3-learning/internal/domain/commitment"
	"github.com/olgagaga/web3-learning/internal/domain/scholarship"
	"github.com/olgagaga/web3-learning/internal/domain/settlement"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

type expireFixture struct {
	handler        *ExpireCommitmentsHandler
	commitmentRepo *fakeCommitmentRepo
	settlementRepo *fakeSettlementRepo
	roundRepo      *fakeRoundRepo
	publisher      *capturePublisher
}

func newExpireFixture() *expireFixture {
	f := &expireFixture{
		commitmentRepo: newFakeCommitmentRepo(),
		settlementRepo: newFakeSettlementRepo(),
		roundRepo:      newFakeRoundRepo(),
		publisher:      &capturePublisher{},
	}
	f.handler = NewExpireCommitmentsHandler(
		f.commitmentRepo, f.settlementRepo, f.roundRepo, f.publisher,
		decimal.RequireFromString("1.10"),
	)
	return f
}

// pastDeadlineCommitment is active with its window already ended, carrying
// the given progress toward the target.
func pastDeadlineCommitment(t *testing.T, target, progress int64) *commitment.Commitment {
	t.Helper()
	created := time.Now().UTC().Add(-48 * time.Hour)
	c, err := commitment.NewCommitment(commitment.NewCommitmentParams{
		ID:        uuid.NewString(),
		LearnerID: testLearnerID,
		GoalType:  string(commitment.GoalItemCount),
		Target:    target,
		Stake:     shared.MustAmount("20.00"),
		Duration:  24 * time.Hour,
		Now:       created,
	}, testBounds)
	require.NoError(t, err)
	require.NoError(t, c.Activate(shared.TxRef("tx-stake-1"), created.Add(time.Minute)))
	if progress > 0 {
		require.NoError(t, c.ApplyProgress(progress, uuid.NewString(), created.Add(time.Hour)))
	}
	return c
}

func (f *expireFixture) openRound(t *testing.T, seed string) *scholarship.Round {
	t.Helper()
	now := time.Now().UTC()
	round, err := scholarship.NewRound(scholarship.NewRoundParams{
		ID:       uuid.NewString(),
		SeedPool: shared.MustAmount(seed),
		Window:   shared.TimeRange{From: now.Add(-time.Hour), To: now.Add(24 * time.Hour)},
		Now:      now.Add(-time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, f.roundRepo.Create(context.Background(), round))
	return round
}

func TestExpireCommitments(t *testing.T) {
	ctx := context.Background()

	t.Run("missed target forfeits stake into the open round", func(t *testing.T) {
		f := newExpireFixture()
		round := f.openRound(t, "10.00")
		c := pastDeadlineCommitment(t, 10, 4)
		f.commitmentRepo.put(c)

		result, err := f.handler.Handle(ctx, ExpireCommitmentsCommand{})
		require.NoError(t, err)

		assert.Equal(t, 1, result.Examined)
		assert.Equal(t, 1, result.Failed)
		assert.Empty(t, result.Errors)

		stored, err := f.commitmentRepo.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, commitment.StatusFailed, stored.Status)

		forfeitures, err := f.settlementRepo.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, forfeitures, 1)
		assert.Equal(t, settlement.KindStakeForfeiture, forfeitures[0].Kind)
		assert.True(t, forfeitures[0].Amount.Equal(shared.MustAmount("20.00")))

		// The stake lands in the scholarship pool.
		fed, err := f.roundRepo.GetByID(ctx, round.ID)
		require.NoError(t, err)
		assert.True(t, fed.Pool.Equal(shared.MustAmount("30.00")), "pool %s", fed.Pool)

		assert.Len(t, f.publisher.published(shared.EventPoolIncreased), 1)
		assert.Len(t, f.publisher.published(shared.EventCommitmentFailed), 1)
	})

	t.Run("met target completes with payout at the deadline", func(t *testing.T) {
		f := newExpireFixture()
		c := pastDeadlineCommitment(t, 5, 4)
		// A recompute that lands exactly at the deadline can leave the target
		// met but the commitment unresolved; the sweep settles it.
		c.Progress = 5
		f.commitmentRepo.put(c)

		result, err := f.handler.Handle(ctx, ExpireCommitmentsCommand{})
		require.NoError(t, err)

		assert.Equal(t, 1, result.Completed)
		assert.Equal(t, 0, result.Failed)

		stored, err := f.commitmentRepo.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, commitment.StatusCompleted, stored.Status)
		assert.True(t, stored.Payout.Equal(shared.MustAmount("22.00")))

		payouts, err := f.settlementRepo.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, payouts, 1)
		assert.Equal(t, settlement.KindCommitmentPayout, payouts[0].Kind)

		assert.Len(t, f.publisher.published(shared.EventCommitmentCompleted), 1)
	})

	t.Run("no open round still tracks the forfeiture", func(t *testing.T) {
		f := newExpireFixture()
		c := pastDeadlineCommitment(t, 10, 0)
		f.commitmentRepo.put(c)

		result, err := f.handler.Handle(ctx, ExpireCommitmentsCommand{})
		require.NoError(t, err)

		assert.Equal(t, 1, result.Failed)
		assert.Empty(t, result.Errors)

		forfeitures, err := f.settlementRepo.ListPending(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, forfeitures, 1)
		assert.Empty(t, f.publisher.published(shared.EventPoolIncreased))
	})

	t.Run("sweep ignores commitments still inside their window", func(t *testing.T) {
		f := newExpireFixture()
		f.commitmentRepo.put(newActiveCommitment(t, 10))

		result, err := f.handler.Handle(ctx, ExpireCommitmentsCommand{})
		require.NoError(t, err)
		assert.Equal(t, 0, result.Examined)
	})
}
