package command

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olgagaga/web3-learning/internal/domain/scholarship"
	"github.com/olgagaga/web3-learning/internal/domain/settlement"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

type scholarshipFixture struct {
	handler        *ScholarshipHandler
	roundRepo      *fakeRoundRepo
	claimRepo      *fakeClaimRepo
	donationRepo   *fakeDonationRepo
	settlementRepo *fakeSettlementRepo
	publisher      *capturePublisher
}

func newScholarshipFixture() *scholarshipFixture {
	f := &scholarshipFixture{
		roundRepo:      newFakeRoundRepo(),
		claimRepo:      newFakeClaimRepo(),
		donationRepo:   newFakeDonationRepo(),
		settlementRepo: newFakeSettlementRepo(),
		publisher:      &capturePublisher{},
	}
	f.handler = NewScholarshipHandler(
		f.roundRepo, f.claimRepo, f.donationRepo, f.settlementRepo, f.publisher,
		scholarship.EligibilityRules{
			MinImprovementPercent: decimal.RequireFromString("10"),
			MinTimeframeDays:      14,
		},
		decimal.RequireFromString("0.25"),
		30*24*time.Hour,
	)
	return f
}

func (f *scholarshipFixture) openRound(t *testing.T, seed string) *scholarship.Round {
	t.Helper()
	now := time.Now().UTC()
	round, err := f.handler.OpenRound(context.Background(), OpenRoundCommand{
		SeedPool: seed,
		Window:   shared.TimeRange{From: now, To: now.Add(14 * 24 * time.Hour)},
	})
	require.NoError(t, err)
	return round
}

func (f *scholarshipFixture) verifiedClaim(t *testing.T, learnerID, improvement string) *scholarship.Claim {
	t.Helper()
	ctx := context.Background()
	claim, err := f.handler.SubmitClaim(ctx, SubmitClaimCommand{
		LearnerID:          learnerID,
		ImprovementPercent: improvement,
		TimeframeDays:      30,
		Evidence:           "assessment history",
	})
	require.NoError(t, err)
	verified, err := f.handler.VerifyClaim(ctx, VerifyClaimCommand{ClaimID: claim.ID})
	require.NoError(t, err)
	return verified
}

func TestScholarshipRound(t *testing.T) {
	ctx := context.Background()

	t.Run("only one open round at a time", func(t *testing.T) {
		f := newScholarshipFixture()
		f.openRound(t, "100.00")

		now := time.Now().UTC()
		_, err := f.handler.OpenRound(ctx, OpenRoundCommand{
			Window: shared.TimeRange{From: now, To: now.Add(24 * time.Hour)},
		})
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("ineligible claim persists as rejected", func(t *testing.T) {
		f := newScholarshipFixture()
		f.openRound(t, "100.00")

		claim, err := f.handler.SubmitClaim(ctx, SubmitClaimCommand{
			LearnerID:          testLearnerID,
			ImprovementPercent: "3",
			TimeframeDays:      30,
		})
		require.NoError(t, err)

		_, err = f.handler.VerifyClaim(ctx, VerifyClaimCommand{ClaimID: claim.ID})
		assert.ErrorIs(t, err, shared.ErrNotEligible)

		stored, err := f.claimRepo.GetByID(ctx, claim.ID)
		require.NoError(t, err)
		assert.Equal(t, scholarship.ClaimRejected, stored.Status)
	})

	t.Run("donation requires a verified claim", func(t *testing.T) {
		f := newScholarshipFixture()
		f.openRound(t, "100.00")

		claim, err := f.handler.SubmitClaim(ctx, SubmitClaimCommand{
			LearnerID:          testLearnerID,
			ImprovementPercent: "25",
			TimeframeDays:      30,
		})
		require.NoError(t, err)

		_, err = f.handler.Donate(ctx, DonateCommand{
			ClaimID: claim.ID,
			DonorID: testTutorID,
			Amount:  "5.00",
			TxRef:   "tx-don-1",
		})
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	t.Run("close before window end requires force", func(t *testing.T) {
		f := newScholarshipFixture()
		f.openRound(t, "100.00")

		_, err := f.handler.CloseRound(ctx, CloseRoundCommand{})
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	t.Run("close runs matching and rolls over into the next round", func(t *testing.T) {
		f := newScholarshipFixture()
		round := f.openRound(t, "100.00")

		claimA := f.verifiedClaim(t, testLearnerID, "25")
		claimB := f.verifiedClaim(t, "bbbbbbbb-cccc-dddd-eeee-ffffffffffff", "40")

		_, err := f.handler.Donate(ctx, DonateCommand{
			ClaimID: claimA.ID, DonorID: testTutorID, Amount: "16.00", TxRef: "tx-don-a",
		})
		require.NoError(t, err)
		_, err = f.handler.Donate(ctx, DonateCommand{
			ClaimID: claimB.ID, DonorID: testTutorID, Amount: "4.00", TxRef: "tx-don-b",
		})
		require.NoError(t, err)

		result, err := f.handler.CloseRound(ctx, CloseRoundCommand{Force: true})
		require.NoError(t, err)

		// One donor each: weights 16 and 4 give raw shares 80 and 20, both
		// ending at the 25% cap, so half the pool rolls over.
		assert.Equal(t, round.ID, result.RoundID)
		assert.Equal(t, 2, result.Rewarded)
		assert.True(t, result.Distributed.Equal(shared.MustAmount("50")), "distributed %s", result.Distributed)
		assert.True(t, result.Rollover.Equal(shared.MustAmount("50")), "rollover %s", result.Rollover)

		storedA, err := f.claimRepo.GetByID(ctx, claimA.ID)
		require.NoError(t, err)
		assert.Equal(t, scholarship.ClaimRewarded, storedA.Status)
		assert.True(t, storedA.Reward.Equal(shared.MustAmount("25")))

		finalized, err := f.roundRepo.GetByID(ctx, round.ID)
		require.NoError(t, err)
		assert.Equal(t, scholarship.RoundFinalized, finalized.Status)

		// Rollover conservation: the successor opens with the remainder.
		next, err := f.roundRepo.GetOpen(ctx)
		require.NoError(t, err)
		assert.Equal(t, result.NextRoundID, next.ID)
		assert.True(t, next.Pool.Equal(shared.MustAmount("50")))

		// Each rewarded claim gets a settlement instruction.
		rewards, err := f.settlementRepo.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, rewards, 2)
		for _, r := range rewards {
			assert.Equal(t, settlement.KindScholarshipReward, r.Kind)
		}

		assert.Len(t, f.publisher.published(shared.EventRoundFinalized), 1)
	})

	t.Run("round with no donations rolls the whole pool over", func(t *testing.T) {
		f := newScholarshipFixture()
		f.openRound(t, "75.00")
		f.verifiedClaim(t, testLearnerID, "25")

		result, err := f.handler.CloseRound(ctx, CloseRoundCommand{Force: true})
		require.NoError(t, err)

		assert.Equal(t, 0, result.Rewarded)
		assert.True(t, result.Distributed.IsZero())
		assert.True(t, result.Rollover.Equal(shared.MustAmount("75.00")))
	})
}
