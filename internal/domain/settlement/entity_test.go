package settlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

func newTestSettlement(t *testing.T) *Settlement {
	t.Helper()
	s, err := NewSettlement(NewSettlementParams{
		ID:        "11111111-2222-3333-4444-555555555555",
		Kind:      string(KindCommitmentPayout),
		SubjectID: "commitment-1",
		LearnerID: "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		Amount:    shared.MustAmount("27.50"),
		Now:       time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return s
}

func TestSettlementTracking(t *testing.T) {
	now := time.Date(2026, 6, 1, 11, 0, 0, 0, time.UTC)

	t.Run("key is derived from subject and kind", func(t *testing.T) {
		s := newTestSettlement(t)
		assert.Equal(t, shared.IdempotencyKey("commitment-1:commitment_payout"), s.IdempotencyKey)
		assert.Equal(t, StatusPending, s.Status)
	})

	t.Run("submit then confirm", func(t *testing.T) {
		s := newTestSettlement(t)
		require.NoError(t, s.MarkSubmitted("tx-1", now))
		assert.Equal(t, 1, s.Attempts)

		require.NoError(t, s.Confirm(now))
		assert.Equal(t, StatusConfirmed, s.Status)
	})

	t.Run("confirm is final", func(t *testing.T) {
		s := newTestSettlement(t)
		require.NoError(t, s.MarkSubmitted("tx-1", now))
		require.NoError(t, s.Confirm(now))

		assert.ErrorIs(t, s.Fail("late failure", now), shared.ErrInvalidState)
		assert.ErrorIs(t, s.Confirm(now), shared.ErrInvalidState)
	})

	t.Run("fail waits for explicit retry", func(t *testing.T) {
		s := newTestSettlement(t)
		require.NoError(t, s.MarkSubmitted("tx-1", now))
		require.NoError(t, s.Fail("insufficient balance", now))
		assert.Equal(t, StatusFailed, s.Status)
		assert.Equal(t, "insufficient balance", s.LastError)

		// No silent re-submission: submitting a failed settlement is an error.
		assert.ErrorIs(t, s.MarkSubmitted("tx-2", now), shared.ErrInvalidState)
	})

	t.Run("retry clears the old reference", func(t *testing.T) {
		s := newTestSettlement(t)
		require.NoError(t, s.MarkSubmitted("tx-1", now))
		require.NoError(t, s.Fail("timeout", now))

		require.NoError(t, s.Retry(now))
		assert.Equal(t, StatusPending, s.Status)
		assert.False(t, s.IsSubmitted())
		assert.Empty(t, s.LastError)

		require.NoError(t, s.MarkSubmitted("tx-2", now))
		assert.Equal(t, 2, s.Attempts)
	})

	t.Run("retry requires failed state", func(t *testing.T) {
		s := newTestSettlement(t)
		assert.ErrorIs(t, s.Retry(now), shared.ErrSettlementNotFailed)
	})
}
