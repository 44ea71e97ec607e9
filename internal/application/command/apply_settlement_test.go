package command

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olgagaga/web3-learning/internal/domain/commitment"
	"github.com/olgagaga/web3-learning/internal/domain/settlement"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

type settlementFixture struct {
	handler        *ApplySettlementOutcomeHandler
	settlementRepo *fakeSettlementRepo
	commitmentRepo *fakeCommitmentRepo
	sessionRepo    *fakeSessionRepo
	publisher      *capturePublisher
}

func newSettlementFixture() *settlementFixture {
	f := &settlementFixture{
		settlementRepo: newFakeSettlementRepo(),
		commitmentRepo: newFakeCommitmentRepo(),
		sessionRepo:    newFakeSessionRepo(),
		publisher:      &capturePublisher{},
	}
	f.handler = NewApplySettlementOutcomeHandler(
		f.settlementRepo, f.commitmentRepo, f.sessionRepo, f.publisher,
	)
	return f
}

// submittedSettlement is pending with a layer reference recorded, the state
// the poll loop sees when it asks about an outcome.
func (f *settlementFixture) submittedSettlement(t *testing.T, kind settlement.Kind, subjectID, amount string) *settlement.Settlement {
	t.Helper()
	now := time.Now().UTC()
	s, err := settlement.NewSettlement(settlement.NewSettlementParams{
		ID:        uuid.NewString(),
		Kind:      string(kind),
		SubjectID: subjectID,
		LearnerID: testLearnerID,
		Amount:    shared.MustAmount(amount),
		Now:       now,
	})
	require.NoError(t, err)
	require.NoError(t, s.MarkSubmitted(shared.TxRef("tx-"+s.ID[:8]), now))
	require.NoError(t, f.settlementRepo.Create(context.Background(), s))
	return s
}

func TestApplySettlementOutcome(t *testing.T) {
	ctx := context.Background()

	t.Run("confirmed stake activates the commitment", func(t *testing.T) {
		f := newSettlementFixture()

		created := time.Now().UTC()
		c, err := commitment.NewCommitment(commitment.NewCommitmentParams{
			ID:        uuid.NewString(),
			LearnerID: testLearnerID,
			GoalType:  string(commitment.GoalStreak),
			Target:    7,
			Stake:     shared.MustAmount("25.00"),
			Duration:  14 * 24 * time.Hour,
			Now:       created,
		}, testBounds)
		require.NoError(t, err)
		f.commitmentRepo.put(c)

		s := f.submittedSettlement(t, settlement.KindCommitmentStake, c.ID, "25.00")

		err = f.handler.Handle(ctx, ApplySettlementOutcomeCommand{
			SettlementID: s.ID,
			Status:       settlement.TxConfirmed,
		})
		require.NoError(t, err)

		stored, err := f.settlementRepo.GetByID(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, settlement.StatusConfirmed, stored.Status)

		activated, err := f.commitmentRepo.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, commitment.StatusActive, activated.Status)
		assert.Equal(t, s.TxRef, activated.StakeTxRef)

		assert.Len(t, f.publisher.published(shared.EventCommitmentActivated), 1)
		assert.Len(t, f.publisher.published(shared.EventSettlementConfirmed), 1)
	})

	t.Run("replayed stake proof is idempotent", func(t *testing.T) {
		f := newSettlementFixture()

		c := newActiveCommitment(t, 3)
		f.commitmentRepo.put(c)

		now := time.Now().UTC()
		s, err := settlement.NewSettlement(settlement.NewSettlementParams{
			ID:        uuid.NewString(),
			Kind:      string(settlement.KindCommitmentStake),
			SubjectID: c.ID,
			LearnerID: testLearnerID,
			Amount:    shared.MustAmount("20.00"),
			Now:       now,
		})
		require.NoError(t, err)
		require.NoError(t, s.MarkSubmitted(c.StakeTxRef, now))
		require.NoError(t, f.settlementRepo.Create(ctx, s))

		err = f.handler.Handle(ctx, ApplySettlementOutcomeCommand{
			SettlementID: s.ID,
			Status:       settlement.TxConfirmed,
		})
		assert.NoError(t, err)
	})

	t.Run("different proof for a funded commitment is a conflict", func(t *testing.T) {
		f := newSettlementFixture()

		c := newActiveCommitment(t, 3)
		f.commitmentRepo.put(c)

		s := f.submittedSettlement(t, settlement.KindCommitmentStake, c.ID, "20.00")
		require.NotEqual(t, c.StakeTxRef, s.TxRef)

		err := f.handler.Handle(ctx, ApplySettlementOutcomeCommand{
			SettlementID: s.ID,
			Status:       settlement.TxConfirmed,
		})
		assert.ErrorIs(t, err, shared.ErrConflictingFundingProof)

		// The recorded funding proof stays untouched.
		stored, err := f.commitmentRepo.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.StakeTxRef, stored.StakeTxRef)
	})

	t.Run("confirmed payout records the reference on the commitment", func(t *testing.T) {
		f := newSettlementFixture()

		c := newActiveCommitment(t, 1)
		now := time.Now().UTC()
		require.NoError(t, c.ApplyProgress(1, uuid.NewString(), now))
		f.commitmentRepo.put(c)

		s := f.submittedSettlement(t, settlement.KindCommitmentPayout, c.ID, "22.00")

		err := f.handler.Handle(ctx, ApplySettlementOutcomeCommand{
			SettlementID: s.ID,
			Status:       settlement.TxConfirmed,
		})
		require.NoError(t, err)

		stored, err := f.commitmentRepo.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, s.TxRef, stored.PayoutTxRef)
	})

	t.Run("confirmed release records the reference on the session", func(t *testing.T) {
		f := newSettlementFixture()

		escrowF := newEscrowFixture()
		session := escrowF.createSession(t)
		_, err := escrowF.handler.AcceptSession(ctx, session.ID, testTutorID)
		require.NoError(t, err)
		_, err = escrowF.handler.SubmitWork(ctx, session.ID, testTutorID, "done")
		require.NoError(t, err)
		result, err := escrowF.handler.VerifySession(ctx, session.ID, testLearnerID)
		require.NoError(t, err)
		f.sessionRepo = escrowF.sessionRepo
		f.handler = NewApplySettlementOutcomeHandler(
			f.settlementRepo, f.commitmentRepo, f.sessionRepo, f.publisher,
		)

		s := f.submittedSettlement(t, settlement.KindEscrowRelease, result.Session.ID, "90.00")

		err = f.handler.Handle(ctx, ApplySettlementOutcomeCommand{
			SettlementID: s.ID,
			Status:       settlement.TxConfirmed,
		})
		require.NoError(t, err)

		stored, err := f.sessionRepo.GetByID(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, s.TxRef, stored.PayoutTxRef)
	})

	t.Run("rejection parks the settlement as failed", func(t *testing.T) {
		f := newSettlementFixture()
		s := f.submittedSettlement(t, settlement.KindScholarshipReward, uuid.NewString(), "10.00")

		err := f.handler.Handle(ctx, ApplySettlementOutcomeCommand{
			SettlementID: s.ID,
			Status:       settlement.TxRejected,
			Reason:       "insufficient pool balance",
		})
		require.NoError(t, err)

		stored, err := f.settlementRepo.GetByID(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, settlement.StatusFailed, stored.Status)
		assert.Equal(t, "insufficient pool balance", stored.LastError)

		assert.Len(t, f.publisher.published(shared.EventSettlementFailed), 1)
	})

	t.Run("pending and unknown outcomes are no-ops", func(t *testing.T) {
		f := newSettlementFixture()
		s := f.submittedSettlement(t, settlement.KindScholarshipReward, uuid.NewString(), "10.00")

		for _, status := range []settlement.TxStatus{settlement.TxPending, settlement.TxUnknown} {
			require.NoError(t, f.handler.Handle(ctx, ApplySettlementOutcomeCommand{
				SettlementID: s.ID,
				Status:       status,
			}))
		}

		stored, err := f.settlementRepo.GetByID(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, settlement.StatusPending, stored.Status)
		assert.Empty(t, f.publisher.events)
	})

	t.Run("already resolved settlement is skipped", func(t *testing.T) {
		f := newSettlementFixture()
		s := f.submittedSettlement(t, settlement.KindScholarshipReward, uuid.NewString(), "10.00")

		require.NoError(t, f.handler.Handle(ctx, ApplySettlementOutcomeCommand{
			SettlementID: s.ID, Status: settlement.TxConfirmed,
		}))
		require.NoError(t, f.handler.Handle(ctx, ApplySettlementOutcomeCommand{
			SettlementID: s.ID, Status: settlement.TxRejected, Reason: "late duplicate",
		}))

		stored, err := f.settlementRepo.GetByID(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, settlement.StatusConfirmed, stored.Status)
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		f := newSettlementFixture()
		err := f.handler.Handle(ctx, ApplySettlementOutcomeCommand{
			SettlementID: "x", Status: settlement.TxStatus("exploded"),
		})
		assert.Error(t, err)
	})
}

func TestRetrySettlement(t *testing.T) {
	ctx := context.Background()

	t.Run("failed settlement re-enters the queue", func(t *testing.T) {
		f := newSettlementFixture()
		s := f.submittedSettlement(t, settlement.KindCommitmentPayout, uuid.NewString(), "22.00")
		require.NoError(t, f.handler.Handle(ctx, ApplySettlementOutcomeCommand{
			SettlementID: s.ID, Status: settlement.TxRejected, Reason: "layer timeout",
		}))

		handler := NewRetrySettlementHandler(f.settlementRepo)
		retried, err := handler.Handle(ctx, RetrySettlementCommand{SettlementID: s.ID})
		require.NoError(t, err)

		assert.Equal(t, settlement.StatusPending, retried.Status)
		assert.False(t, retried.IsSubmitted())
		assert.Empty(t, retried.LastError)
	})

	t.Run("retry requires a failed settlement", func(t *testing.T) {
		f := newSettlementFixture()
		s := f.submittedSettlement(t, settlement.KindCommitmentPayout, uuid.NewString(), "22.00")

		handler := NewRetrySettlementHandler(f.settlementRepo)
		_, err := handler.Handle(ctx, RetrySettlementCommand{SettlementID: s.ID})
		assert.ErrorIs(t, err, shared.ErrSettlementNotFailed)
	})
}
