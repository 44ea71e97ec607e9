package scholarship

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

var testRules = EligibilityRules{
	MinImprovementPercent: decimal.RequireFromString("10"),
	MinTimeframeDays:      14,
}

func openRound(t *testing.T) *Round {
	t.Helper()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	r, err := NewRound(NewRoundParams{
		ID:       "round-1",
		SeedPool: shared.MustAmount("100"),
		Window:   shared.TimeRange{From: now, To: now.AddDate(0, 1, 0)},
		Now:      now,
	})
	require.NoError(t, err)
	return r
}

func TestRound(t *testing.T) {
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)

	t.Run("pool grows from forfeited stakes", func(t *testing.T) {
		r := openRound(t)
		require.NoError(t, r.AddToPool(shared.MustAmount("25"), now))
		assert.True(t, r.Pool.Equal(shared.MustAmount("125")))
	})

	t.Run("finalize conserves the pool", func(t *testing.T) {
		r := openRound(t)
		err := r.Finalize(shared.MustAmount("60"), shared.MustAmount("30"), "t1", now)
		assert.ErrorIs(t, err, shared.ErrInvalidState)

		require.NoError(t, r.Finalize(shared.MustAmount("60"), shared.MustAmount("40"), "t1", now))
		assert.Equal(t, RoundFinalized, r.Status)
	})

	t.Run("finalized round rejects contributions", func(t *testing.T) {
		r := openRound(t)
		require.NoError(t, r.Finalize(shared.MustAmount("0"), shared.MustAmount("100"), "t1", now))

		err := r.AddToPool(shared.MustAmount("5"), now)
		assert.ErrorIs(t, err, shared.ErrRoundClosed)
	})
}

func TestClaimVerify(t *testing.T) {
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)

	newClaim := func(improvement string, days int) *Claim {
		c, err := NewClaim(NewClaimParams{
			ID:                 "claim-1",
			RoundID:            "round-1",
			LearnerID:          "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			ImprovementPercent: decimal.RequireFromString(improvement),
			TimeframeDays:      days,
			Now:                now,
		})
		require.NoError(t, err)
		return c
	}

	t.Run("eligible claim verifies", func(t *testing.T) {
		c := newClaim("12.5", 30)
		require.NoError(t, c.Verify(testRules, now))
		assert.Equal(t, ClaimVerified, c.Status)
	})

	t.Run("weak improvement is rejected", func(t *testing.T) {
		c := newClaim("9.9", 30)
		err := c.Verify(testRules, now)
		assert.ErrorIs(t, err, shared.ErrNotEligible)
		assert.Equal(t, ClaimRejected, c.Status)
	})

	t.Run("short timeframe is rejected", func(t *testing.T) {
		c := newClaim("50", 7)
		err := c.Verify(testRules, now)
		assert.ErrorIs(t, err, shared.ErrNotEligible)
	})

	t.Run("double verification is rejected", func(t *testing.T) {
		c := newClaim("12.5", 30)
		require.NoError(t, c.Verify(testRules, now))
		err := c.Verify(testRules, now)
		assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	})

	t.Run("reward requires verification", func(t *testing.T) {
		c := newClaim("12.5", 30)
		err := c.SetReward(shared.MustAmount("10"), now)
		assert.ErrorIs(t, err, shared.ErrClaimNotVerified)

		require.NoError(t, c.Verify(testRules, now))
		require.NoError(t, c.SetReward(shared.MustAmount("10"), now))
		assert.Equal(t, ClaimRewarded, c.Status)
	})
}
