package command

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olgagaga/web3-learning/internal/domain/escrow"
	"github.com/olgagaga/web3-learning/internal/domain/settlement"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

type escrowFixture struct {
	handler        *SessionHandler
	sessionRepo    *fakeSessionRepo
	sessionLock    *fakeSessionLock
	settlementRepo *fakeSettlementRepo
	publisher      *capturePublisher
}

func newEscrowFixture() *escrowFixture {
	f := &escrowFixture{
		sessionRepo:    newFakeSessionRepo(),
		sessionLock:    newFakeSessionLock(),
		settlementRepo: newFakeSettlementRepo(),
		publisher:      &capturePublisher{},
	}
	f.handler = NewSessionHandler(
		f.sessionRepo, f.sessionLock, f.settlementRepo, f.publisher,
		decimal.RequireFromString("0.10"),
	)
	return f
}

func (f *escrowFixture) createSession(t *testing.T) *escrow.Session {
	t.Helper()
	result, err := f.handler.CreateSession(context.Background(), CreateSessionCommand{
		LearnerID:  testLearnerID,
		TutorID:    testTutorID,
		Topic:      "pointer arithmetic",
		Amount:     "100.00",
		FundsTxRef: "tx-escrow-funding",
	})
	require.NoError(t, err)
	return result.Session
}

func TestEscrowSessionLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("create locks funds in escrow", func(t *testing.T) {
		f := newEscrowFixture()
		s := f.createSession(t)

		assert.Equal(t, escrow.StatusCreated, s.Status)
		assert.Equal(t, escrow.DispositionEscrowed, s.Disposition)
		assert.Equal(t, shared.TxRef("tx-escrow-funding"), s.FundsTxRef)
		assert.Len(t, f.publisher.published(shared.EventSessionCreated), 1)
	})

	t.Run("verify pays tutor minus platform fee", func(t *testing.T) {
		f := newEscrowFixture()
		s := f.createSession(t)

		_, err := f.handler.AcceptSession(ctx, s.ID, testTutorID)
		require.NoError(t, err)
		_, err = f.handler.SubmitWork(ctx, s.ID, testTutorID, "covered pointers and arrays")
		require.NoError(t, err)

		result, err := f.handler.VerifySession(ctx, s.ID, testLearnerID)
		require.NoError(t, err)

		final := result.Session
		assert.Equal(t, escrow.StatusCompleted, final.Status)
		assert.Equal(t, escrow.DispositionTutor, final.Disposition)
		assert.True(t, final.TutorPayout.Equal(shared.MustAmount("90.00")))
		assert.True(t, final.PlatformFee.Equal(shared.MustAmount("10.00")))
		assert.True(t, final.FundsAccounted())

		// The layer gets the net tutor payout, not the full escrowed amount.
		releases, err := f.settlementRepo.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, releases, 1)
		assert.Equal(t, settlement.KindEscrowRelease, releases[0].Kind)
		assert.Equal(t, s.ID, releases[0].SubjectID)
		assert.Equal(t, shared.LearnerID(testTutorID), releases[0].LearnerID)
		assert.True(t, releases[0].Amount.Equal(shared.MustAmount("90.00")), "release %s", releases[0].Amount)

		assert.Len(t, f.publisher.published(shared.EventSessionVerified), 1)
	})

	t.Run("cancel before accept refunds learner", func(t *testing.T) {
		f := newEscrowFixture()
		s := f.createSession(t)

		result, err := f.handler.CancelSession(ctx, s.ID, testLearnerID)
		require.NoError(t, err)

		final := result.Session
		assert.Equal(t, escrow.StatusCancelled, final.Status)
		assert.Equal(t, escrow.DispositionRefund, final.Disposition)
		assert.True(t, final.LearnerRefund.Equal(shared.MustAmount("100.00")))

		releases, err := f.settlementRepo.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, releases, 1)
		assert.Equal(t, settlement.KindEscrowRefund, releases[0].Kind)
		assert.Equal(t, shared.LearnerID(testLearnerID), releases[0].LearnerID)
		assert.True(t, releases[0].Amount.Equal(shared.MustAmount("100.00")))
	})

	t.Run("cancel after accept is rejected", func(t *testing.T) {
		f := newEscrowFixture()
		s := f.createSession(t)

		_, err := f.handler.AcceptSession(ctx, s.ID, testTutorID)
		require.NoError(t, err)

		_, err = f.handler.CancelSession(ctx, s.ID, testLearnerID)
		assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	})

	t.Run("accept fails fast when lock is held", func(t *testing.T) {
		f := newEscrowFixture()
		s := f.createSession(t)
		f.sessionLock.deny = true

		_, err := f.handler.AcceptSession(ctx, s.ID, testTutorID)
		assert.ErrorIs(t, err, shared.ErrConflict)
	})

	t.Run("only the session tutor can submit work", func(t *testing.T) {
		f := newEscrowFixture()
		s := f.createSession(t)

		_, err := f.handler.AcceptSession(ctx, s.ID, testTutorID)
		require.NoError(t, err)

		_, err = f.handler.SubmitWork(ctx, s.ID, testLearnerID, "not my work")
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("split resolution accounts for every unit", func(t *testing.T) {
		f := newEscrowFixture()
		s := f.createSession(t)

		_, err := f.handler.AcceptSession(ctx, s.ID, testTutorID)
		require.NoError(t, err)
		_, err = f.handler.SubmitWork(ctx, s.ID, testTutorID, "half the agenda")
		require.NoError(t, err)
		_, err = f.handler.DisputeSession(ctx, s.ID, testLearnerID, "second half missing")
		require.NoError(t, err)

		result, err := f.handler.ResolveDispute(ctx, s.ID, escrow.DecisionSplit, decimal.RequireFromString("0.5"))
		require.NoError(t, err)

		final := result.Session
		assert.Equal(t, escrow.StatusResolved, final.Status)
		assert.Equal(t, escrow.DispositionSplit, final.Disposition)
		assert.True(t, final.TutorPayout.Equal(shared.MustAmount("45.00")))
		assert.True(t, final.PlatformFee.Equal(shared.MustAmount("5.00")))
		assert.True(t, final.LearnerRefund.Equal(shared.MustAmount("50.00")))
		assert.True(t, final.FundsAccounted())

		// A split queues one instruction per beneficiary.
		legs, err := f.settlementRepo.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, legs, 2)
		byKind := map[settlement.Kind]*settlement.Settlement{}
		for _, leg := range legs {
			byKind[leg.Kind] = leg
		}
		payout := byKind[settlement.KindEscrowRelease]
		require.NotNil(t, payout)
		assert.Equal(t, shared.LearnerID(testTutorID), payout.LearnerID)
		assert.True(t, payout.Amount.Equal(shared.MustAmount("45.00")), "payout %s", payout.Amount)
		refund := byKind[settlement.KindEscrowRefund]
		require.NotNil(t, refund)
		assert.Equal(t, shared.LearnerID(testLearnerID), refund.LearnerID)
		assert.True(t, refund.Amount.Equal(shared.MustAmount("50.00")), "refund %s", refund.Amount)

		assert.Len(t, f.publisher.published(shared.EventDisputeResolved), 1)
	})

	t.Run("resolve without dispute is rejected", func(t *testing.T) {
		f := newEscrowFixture()
		s := f.createSession(t)

		_, err := f.handler.ResolveDispute(ctx, s.ID, escrow.DecisionRefundLearner, decimal.Zero)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})
}
