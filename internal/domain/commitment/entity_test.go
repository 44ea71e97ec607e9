package commitment

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

var testBounds = DurationBounds{Min: 24 * time.Hour, Max: 90 * 24 * time.Hour}

func newTestCommitment(t *testing.T, goalType GoalType, target int64, duration time.Duration) *Commitment {
	t.Helper()
	c, err := NewCommitment(NewCommitmentParams{
		ID:        "11111111-2222-3333-4444-555555555555",
		LearnerID: "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		GoalType:  string(goalType),
		Target:    target,
		Stake:     shared.MustAmount("25.00"),
		Duration:  duration,
		Now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}, testBounds)
	require.NoError(t, err)
	return c
}

func TestNewCommitment(t *testing.T) {
	t.Run("creates pending commitment", func(t *testing.T) {
		c := newTestCommitment(t, GoalStreak, 7, 10*24*time.Hour)

		assert.Equal(t, StatusPending, c.Status)
		assert.Equal(t, int64(7), c.Target)
		assert.Equal(t, int64(0), c.Progress)
		assert.Equal(t, 1, c.Version)
		assert.True(t, c.Deadline.After(c.CreatedAt))
	})

	t.Run("defaults event kind from goal type", func(t *testing.T) {
		c := newTestCommitment(t, GoalTimeSpent, 600, 14*24*time.Hour)
		assert.Equal(t, GoalTimeSpent.DefaultEventKind(), c.EventKind)
	})

	t.Run("rejects unknown goal type", func(t *testing.T) {
		_, err := NewCommitment(NewCommitmentParams{
			ID:        "11111111-2222-3333-4444-555555555555",
			LearnerID: "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			GoalType:  "marathon",
			Target:    1,
			Stake:     shared.MustAmount("1"),
			Duration:  48 * time.Hour,
			Now:       time.Now(),
		}, testBounds)
		assert.ErrorIs(t, err, shared.ErrInvalidGoalType)
	})

	t.Run("rejects zero stake", func(t *testing.T) {
		_, err := NewCommitment(NewCommitmentParams{
			ID:        "11111111-2222-3333-4444-555555555555",
			LearnerID: "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			GoalType:  string(GoalItemCount),
			Target:    10,
			Stake:     shared.ZeroAmount,
			Duration:  48 * time.Hour,
			Now:       time.Now(),
		}, testBounds)
		assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
	})

	t.Run("rejects duration outside bounds", func(t *testing.T) {
		_, err := NewCommitment(NewCommitmentParams{
			ID:        "11111111-2222-3333-4444-555555555555",
			LearnerID: "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			GoalType:  string(GoalItemCount),
			Target:    10,
			Stake:     shared.MustAmount("5"),
			Duration:  time.Hour,
			Now:       time.Now(),
		}, testBounds)
		assert.ErrorIs(t, err, shared.ErrInvalidDuration)
	})
}

func TestCommitmentLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	t.Run("pending to active requires tx ref", func(t *testing.T) {
		c := newTestCommitment(t, GoalItemCount, 10, 10*24*time.Hour)

		err := c.Activate("", now)
		assert.ErrorIs(t, err, shared.ErrEmptyValue)

		err = c.Activate("tx-abc", now)
		require.NoError(t, err)
		assert.Equal(t, StatusActive, c.Status)
		assert.Equal(t, shared.TxRef("tx-abc"), c.StakeTxRef)
	})

	t.Run("cannot activate twice", func(t *testing.T) {
		c := newTestCommitment(t, GoalItemCount, 10, 10*24*time.Hour)
		require.NoError(t, c.Activate("tx-abc", now))

		err := c.Activate("tx-def", now)
		assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	})

	t.Run("progress completes at target", func(t *testing.T) {
		c := newTestCommitment(t, GoalItemCount, 10, 10*24*time.Hour)
		require.NoError(t, c.Activate("tx-abc", now))

		require.NoError(t, c.ApplyProgress(4, "t1", now))
		assert.Equal(t, StatusActive, c.Status)

		require.NoError(t, c.ApplyProgress(10, "t2", now))
		assert.Equal(t, StatusCompleted, c.Status)
		assert.Equal(t, "t2", c.TransitionID)
	})

	t.Run("progress never decreases", func(t *testing.T) {
		c := newTestCommitment(t, GoalItemCount, 100, 10*24*time.Hour)
		require.NoError(t, c.Activate("tx-abc", now))

		require.NoError(t, c.ApplyProgress(40, "t1", now))
		require.NoError(t, c.ApplyProgress(25, "t2", now))
		assert.Equal(t, int64(40), c.Progress)
	})

	t.Run("progress rejected when not active", func(t *testing.T) {
		c := newTestCommitment(t, GoalItemCount, 10, 10*24*time.Hour)
		err := c.ApplyProgress(3, "t1", now)
		assert.ErrorIs(t, err, shared.ErrCommitmentNotActive)
	})

	t.Run("expire fails an unmet goal", func(t *testing.T) {
		c := newTestCommitment(t, GoalItemCount, 10, 2*24*time.Hour)
		require.NoError(t, c.Activate("tx-abc", now))
		require.NoError(t, c.ApplyProgress(6, "t1", now))

		after := c.Deadline.Add(time.Minute)
		require.NoError(t, c.Expire("t2", after))
		assert.Equal(t, StatusFailed, c.Status)
	})

	t.Run("expire completes a met goal", func(t *testing.T) {
		c := newTestCommitment(t, GoalItemCount, 10, 2*24*time.Hour)
		require.NoError(t, c.Activate("tx-abc", now))
		c.Progress = 10

		after := c.Deadline.Add(time.Minute)
		require.NoError(t, c.Expire("t2", after))
		assert.Equal(t, StatusCompleted, c.Status)
	})

	t.Run("expire before deadline is rejected", func(t *testing.T) {
		c := newTestCommitment(t, GoalItemCount, 10, 10*24*time.Hour)
		require.NoError(t, c.Activate("tx-abc", now))

		err := c.Expire("t2", now)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	t.Run("claim requires confirmed settlement", func(t *testing.T) {
		c := newTestCommitment(t, GoalItemCount, 10, 10*24*time.Hour)
		require.NoError(t, c.Activate("tx-abc", now))
		require.NoError(t, c.ApplyProgress(10, "t1", now))

		err := c.Claim(now)
		assert.ErrorIs(t, err, shared.ErrInvalidState)

		require.NoError(t, c.RecordSettlement("tx-payout", now))
		require.NoError(t, c.Claim(now))
		assert.Equal(t, StatusClaimed, c.Status)
	})

	t.Run("claim from active is rejected", func(t *testing.T) {
		c := newTestCommitment(t, GoalItemCount, 10, 10*24*time.Hour)
		require.NoError(t, c.Activate("tx-abc", now))

		err := c.Claim(now)
		assert.True(t, errors.Is(err, shared.ErrCommitmentNotClaimable))
	})
}

func TestCommitmentPayout(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	t.Run("payout applies reward multiplier", func(t *testing.T) {
		c := newTestCommitment(t, GoalItemCount, 10, 10*24*time.Hour)
		require.NoError(t, c.Activate("tx-abc", now))
		require.NoError(t, c.ApplyProgress(10, "t1", now))

		multiplier := decimal.RequireFromString("1.10")
		require.NoError(t, c.SetPayout(multiplier, now))
		assert.True(t, c.Payout.Equal(shared.MustAmount("27.50")), "got %s", c.Payout)
	})

	t.Run("payout rejected unless completed", func(t *testing.T) {
		c := newTestCommitment(t, GoalItemCount, 10, 10*24*time.Hour)
		err := c.SetPayout(decimal.RequireFromString("1.10"), now)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})
}
