package command

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olgagaga/web3-learning/internal/domain/commitment"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

var testBounds = commitment.DurationBounds{Min: 24 * time.Hour, Max: 90 * 24 * time.Hour}

const (
	testLearnerID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"
	testTutorID   = "99999999-8888-7777-6666-555555555555"
)

// newActiveCommitment builds an item-count commitment that has been active
// for a day, so freshly reported events fall inside its window.
func newActiveCommitment(t *testing.T, target int64) *commitment.Commitment {
	t.Helper()
	created := time.Now().UTC().Add(-24 * time.Hour)
	c, err := commitment.NewCommitment(commitment.NewCommitmentParams{
		ID:        "11111111-2222-3333-4444-555555555555",
		LearnerID: testLearnerID,
		GoalType:  string(commitment.GoalItemCount),
		Target:    target,
		Stake:     shared.MustAmount("20.00"),
		Duration:  10 * 24 * time.Hour,
		Now:       created,
	}, testBounds)
	require.NoError(t, err)
	require.NoError(t, c.Activate(shared.TxRef("tx-stake-1"), created.Add(time.Minute)))
	return c
}

func newReportProgressFixture() (*ReportProgressHandler, *fakeProgressRepo, *fakeCommitmentRepo, *fakeSettlementRepo, *capturePublisher) {
	eventRepo := newFakeProgressRepo()
	commitmentRepo := newFakeCommitmentRepo()
	settlementRepo := newFakeSettlementRepo()
	publisher := &capturePublisher{}
	handler := NewReportProgressHandler(
		eventRepo, newFakeGuard(), commitmentRepo, settlementRepo, publisher,
		ReportProgressHandlerConfig{
			RewardMultiplier: decimal.RequireFromString("1.10"),
			GuardTTL:         time.Hour,
			MaxLockRetries:   3,
		},
	)
	return handler, eventRepo, commitmentRepo, settlementRepo, publisher
}

func reportCmd(sourceID string, magnitude int64) ReportProgressCommand {
	return ReportProgressCommand{
		LearnerID:  testLearnerID,
		Kind:       "exercise_solved",
		Magnitude:  magnitude,
		SourceID:   sourceID,
		OccurredAt: time.Now().UTC().Add(-time.Hour),
	}
}

func TestReportProgress(t *testing.T) {
	ctx := context.Background()

	t.Run("records event and publishes", func(t *testing.T) {
		handler, eventRepo, _, _, publisher := newReportProgressFixture()

		result, err := handler.Handle(ctx, reportCmd("src-1", 2))
		require.NoError(t, err)

		assert.False(t, result.Duplicate)
		assert.NotEmpty(t, result.EventID)

		stored, err := eventRepo.GetByID(ctx, result.EventID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stored.Magnitude)

		assert.Len(t, publisher.published(shared.EventProgressRecorded), 1)
	})

	t.Run("same source report is a duplicate", func(t *testing.T) {
		handler, _, _, _, _ := newReportProgressFixture()

		first, err := handler.Handle(ctx, reportCmd("src-dup", 1))
		require.NoError(t, err)
		require.False(t, first.Duplicate)

		second, err := handler.Handle(ctx, reportCmd("src-dup", 1))
		require.NoError(t, err)
		assert.True(t, second.Duplicate)
		assert.Empty(t, second.EventID)
	})

	t.Run("store constraint catches duplicates without guard", func(t *testing.T) {
		eventRepo := newFakeProgressRepo()
		publisher := &capturePublisher{}
		handler := NewReportProgressHandler(
			eventRepo, nil, newFakeCommitmentRepo(), newFakeSettlementRepo(), publisher,
			ReportProgressHandlerConfig{
				RewardMultiplier: decimal.RequireFromString("1.10"),
				GuardTTL:         time.Hour,
				MaxLockRetries:   3,
			},
		)

		_, err := handler.Handle(ctx, reportCmd("src-store", 1))
		require.NoError(t, err)

		second, err := handler.Handle(ctx, reportCmd("src-store", 1))
		require.NoError(t, err)
		assert.True(t, second.Duplicate)
	})

	t.Run("routes to active commitment and completes at target", func(t *testing.T) {
		handler, _, commitmentRepo, settlementRepo, publisher := newReportProgressFixture()
		c := newActiveCommitment(t, 3)
		commitmentRepo.put(c)

		result, err := handler.Handle(ctx, reportCmd("src-complete", 3))
		require.NoError(t, err)

		assert.Equal(t, 1, result.RoutedCommitments)
		require.Contains(t, result.CompletedCommitments, c.ID)

		stored, err := commitmentRepo.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, commitment.StatusCompleted, stored.Status)
		assert.Equal(t, int64(3), stored.Progress)
		assert.True(t, stored.Payout.Equal(shared.MustAmount("22.00")), "payout = stake * 1.10, got %s", stored.Payout)

		// Completion queues the payout with the settlement layer.
		payouts, err := settlementRepo.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, payouts, 1)
		assert.Equal(t, c.ID, payouts[0].SubjectID)
		assert.True(t, payouts[0].Amount.Equal(shared.MustAmount("22.00")))

		assert.Len(t, publisher.published(shared.EventCommitmentCompleted), 1)
	})

	t.Run("partial progress stays active", func(t *testing.T) {
		handler, _, commitmentRepo, _, publisher := newReportProgressFixture()
		c := newActiveCommitment(t, 10)
		commitmentRepo.put(c)

		result, err := handler.Handle(ctx, reportCmd("src-partial", 4))
		require.NoError(t, err)

		assert.Equal(t, 1, result.RoutedCommitments)
		assert.Empty(t, result.CompletedCommitments)

		stored, err := commitmentRepo.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, commitment.StatusActive, stored.Status)
		assert.Equal(t, int64(4), stored.Progress)
		assert.Empty(t, publisher.published(shared.EventCommitmentCompleted))
	})

	t.Run("pending commitment buffers without recompute", func(t *testing.T) {
		handler, _, commitmentRepo, _, _ := newReportProgressFixture()
		c, err := commitment.NewCommitment(commitment.NewCommitmentParams{
			ID:        "22222222-3333-4444-5555-666666666666",
			LearnerID: testLearnerID,
			GoalType:  string(commitment.GoalItemCount),
			Target:    5,
			Stake:     shared.MustAmount("10.00"),
			Duration:  10 * 24 * time.Hour,
			Now:       time.Now().UTC().Add(-time.Hour),
		}, testBounds)
		require.NoError(t, err)
		commitmentRepo.put(c)

		result, err := handler.Handle(ctx, reportCmd("src-pending", 5))
		require.NoError(t, err)

		assert.Equal(t, 0, result.RoutedCommitments)
		stored, err := commitmentRepo.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, commitment.StatusPending, stored.Status)
		assert.Equal(t, int64(0), stored.Progress)
	})

	t.Run("rejects invalid commands", func(t *testing.T) {
		handler, _, _, _, _ := newReportProgressFixture()

		_, err := handler.Handle(ctx, ReportProgressCommand{Kind: "exercise_solved", Magnitude: 1, SourceID: "s"})
		assert.Error(t, err)

		_, err = handler.Handle(ctx, ReportProgressCommand{LearnerID: testLearnerID, Kind: "exercise_solved", Magnitude: 0, SourceID: "s"})
		assert.Error(t, err)

		_, err = handler.Handle(ctx, ReportProgressCommand{LearnerID: testLearnerID, Kind: "exercise_solved", Magnitude: 1})
		assert.Error(t, err)
	})
}
