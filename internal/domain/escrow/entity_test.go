package escrow

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

const (
	learnerID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
	tutorID   = "ffffffff-0000-1111-2222-333333333333"
)

var feeRate = decimal.RequireFromString("0.05")

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(NewSessionParams{
		ID:        "11111111-2222-3333-4444-555555555555",
		LearnerID: learnerID,
		TutorID:   tutorID,
		Topic:     "goroutine leaks",
		Amount:    shared.MustAmount("100.00"),
		FundsTx:   "tx-escrow-1",
		Now:       time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return s
}

func advanceToPendingReview(t *testing.T, s *Session, now time.Time) {
	t.Helper()
	require.NoError(t, s.Accept(shared.LearnerID(tutorID), "t-accept", now))
	require.NoError(t, s.SubmitWork(shared.LearnerID(tutorID), "covered channels and leaks", "t-submit", now))
}

func TestNewSession(t *testing.T) {
	t.Run("creates escrowed session", func(t *testing.T) {
		s := newTestSession(t)
		assert.Equal(t, StatusCreated, s.Status)
		assert.Equal(t, DispositionEscrowed, s.Disposition)
		assert.True(t, s.FundsAccounted())
	})

	t.Run("rejects self-tutoring", func(t *testing.T) {
		_, err := NewSession(NewSessionParams{
			ID:        "11111111-2222-3333-4444-555555555555",
			LearnerID: learnerID,
			TutorID:   learnerID,
			Topic:     "x",
			Amount:    shared.MustAmount("10"),
			FundsTx:   "tx-1",
			Now:       time.Now(),
		})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("rejects missing funding reference", func(t *testing.T) {
		_, err := NewSession(NewSessionParams{
			ID:        "11111111-2222-3333-4444-555555555555",
			LearnerID: learnerID,
			TutorID:   tutorID,
			Topic:     "x",
			Amount:    shared.MustAmount("10"),
			Now:       time.Now(),
		})
		assert.ErrorIs(t, err, shared.ErrEmptyValue)
	})
}

func TestSessionHappyPath(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	t.Run("verify pays tutor minus platform fee", func(t *testing.T) {
		s := newTestSession(t)
		advanceToPendingReview(t, s, now)

		require.NoError(t, s.Verify(shared.LearnerID(learnerID), feeRate, "t-verify", now))

		assert.Equal(t, StatusCompleted, s.Status)
		assert.Equal(t, DispositionTutor, s.Disposition)
		assert.True(t, s.TutorPayout.Equal(shared.MustAmount("95.00")), "got %s", s.TutorPayout)
		assert.True(t, s.PlatformFee.Equal(shared.MustAmount("5.00")), "got %s", s.PlatformFee)
		assert.True(t, s.FundsAccounted())
	})

	t.Run("only assigned tutor can accept", func(t *testing.T) {
		s := newTestSession(t)
		err := s.Accept(shared.LearnerID(learnerID), "t-accept", now)
		assert.ErrorIs(t, err, shared.ErrNotSessionTutor)
	})

	t.Run("only learner can verify", func(t *testing.T) {
		s := newTestSession(t)
		advanceToPendingReview(t, s, now)
		err := s.Verify(shared.LearnerID(tutorID), feeRate, "t-verify", now)
		assert.ErrorIs(t, err, shared.ErrNotSessionLearner)
	})

	t.Run("cancel before accept refunds in full", func(t *testing.T) {
		s := newTestSession(t)
		require.NoError(t, s.Cancel(shared.LearnerID(learnerID), "t-cancel", now))

		assert.Equal(t, StatusCancelled, s.Status)
		assert.Equal(t, DispositionRefund, s.Disposition)
		assert.True(t, s.LearnerRefund.Equal(s.Amount))
		assert.True(t, s.FundsAccounted())
	})

	t.Run("cancel after accept is rejected", func(t *testing.T) {
		s := newTestSession(t)
		require.NoError(t, s.Accept(shared.LearnerID(tutorID), "t-accept", now))

		err := s.Cancel(shared.LearnerID(learnerID), "t-cancel", now)
		assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	})
}

func TestSessionDispute(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	t.Run("dispute locks the session", func(t *testing.T) {
		s := newTestSession(t)
		advanceToPendingReview(t, s, now)

		require.NoError(t, s.Dispute(shared.LearnerID(learnerID), "no show", "t-dispute", now))
		assert.Equal(t, StatusDisputed, s.Status)
		assert.Equal(t, DispositionEscrowed, s.Disposition)

		// No transition except resolution is allowed from disputed.
		assert.ErrorIs(t, s.Verify(shared.LearnerID(learnerID), feeRate, "t", now), shared.ErrInvalidTransition)
		assert.ErrorIs(t, s.Cancel(shared.LearnerID(learnerID), "t", now), shared.ErrInvalidTransition)
		assert.ErrorIs(t, s.SubmitWork(shared.LearnerID(tutorID), "x", "t", now), shared.ErrInvalidTransition)
	})

	t.Run("resolve refund returns everything to learner", func(t *testing.T) {
		s := newTestSession(t)
		advanceToPendingReview(t, s, now)
		require.NoError(t, s.Dispute(shared.LearnerID(learnerID), "no show", "t-dispute", now))

		require.NoError(t, s.ResolveDispute(DecisionRefundLearner, decimal.Zero, feeRate, "t-resolve", now))
		assert.Equal(t, StatusResolved, s.Status)
		assert.True(t, s.LearnerRefund.Equal(s.Amount))
		assert.True(t, s.FundsAccounted())
	})

	t.Run("resolve split divides funds exactly", func(t *testing.T) {
		s := newTestSession(t)
		advanceToPendingReview(t, s, now)
		require.NoError(t, s.Dispute(shared.LearnerID(learnerID), "partial delivery", "t-dispute", now))

		tutorShare := decimal.RequireFromString("0.6")
		require.NoError(t, s.ResolveDispute(DecisionSplit, tutorShare, feeRate, "t-resolve", now))

		// 60.00 gross to tutor: 3.00 fee, 57.00 payout; 40.00 refund.
		assert.True(t, s.TutorPayout.Equal(shared.MustAmount("57.00")), "got %s", s.TutorPayout)
		assert.True(t, s.PlatformFee.Equal(shared.MustAmount("3.00")), "got %s", s.PlatformFee)
		assert.True(t, s.LearnerRefund.Equal(shared.MustAmount("40.00")), "got %s", s.LearnerRefund)
		assert.True(t, s.FundsAccounted())
	})

	t.Run("resolve on non-disputed session is rejected", func(t *testing.T) {
		s := newTestSession(t)
		err := s.ResolveDispute(DecisionRefundLearner, decimal.Zero, feeRate, "t-resolve", now)
		assert.ErrorIs(t, err, shared.ErrSessionNotDisputed)
	})
}
