package commitment

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olgagaga/web3-learning/internal/domain/progress"
)

func testEvent(t *testing.T, kind progress.Kind, magnitude int64, occurredAt time.Time, seq int) *progress.Event {
	t.Helper()
	e, err := progress.NewEvent(progress.NewEventParams{
		ID:         "99999999-0000-1111-2222-333333333333",
		LearnerID:  "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		Kind:       string(kind),
		Magnitude:  magnitude,
		SourceID:   fmt.Sprintf("src-%d", seq),
		OccurredAt: occurredAt,
	})
	require.NoError(t, err)
	return e
}

func TestAggregateStreak(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c := newTestCommitment(t, GoalStreak, 7, 14*24*time.Hour)
	// CreatedAt is 2026-03-01; events below stay inside the window.

	t.Run("seven consecutive days complete the streak", func(t *testing.T) {
		var events []*progress.Event
		for i := 0; i < 7; i++ {
			events = append(events, testEvent(t, progress.KindDailyCheckin, 1, base.AddDate(0, 0, i), i))
		}
		assert.Equal(t, int64(7), Aggregate(c, events))
		assert.True(t, MeetsTarget(c, events))
	})

	t.Run("same day counts once", func(t *testing.T) {
		events := []*progress.Event{
			testEvent(t, progress.KindDailyCheckin, 1, base, 0),
			testEvent(t, progress.KindDailyCheckin, 1, base.Add(3*time.Hour), 1),
			testEvent(t, progress.KindDailyCheckin, 1, base.Add(9*time.Hour), 2),
		}
		assert.Equal(t, int64(1), Aggregate(c, events))
	})

	t.Run("gap resets the run", func(t *testing.T) {
		events := []*progress.Event{
			testEvent(t, progress.KindDailyCheckin, 1, base, 0),
			testEvent(t, progress.KindDailyCheckin, 1, base.AddDate(0, 0, 1), 1),
			// day 2 missed
			testEvent(t, progress.KindDailyCheckin, 1, base.AddDate(0, 0, 3), 2),
			testEvent(t, progress.KindDailyCheckin, 1, base.AddDate(0, 0, 4), 3),
			testEvent(t, progress.KindDailyCheckin, 1, base.AddDate(0, 0, 5), 4),
		}
		assert.Equal(t, int64(3), Aggregate(c, events))
	})

	t.Run("order of delivery does not matter", func(t *testing.T) {
		events := []*progress.Event{
			testEvent(t, progress.KindDailyCheckin, 1, base.AddDate(0, 0, 2), 0),
			testEvent(t, progress.KindDailyCheckin, 1, base, 1),
			testEvent(t, progress.KindDailyCheckin, 1, base.AddDate(0, 0, 1), 2),
		}
		assert.Equal(t, int64(3), Aggregate(c, events))
	})
}

func TestAggregateSumAndMax(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	t.Run("item count sums magnitudes", func(t *testing.T) {
		c := newTestCommitment(t, GoalItemCount, 20, 14*24*time.Hour)
		events := []*progress.Event{
			testEvent(t, progress.KindExerciseSolved, 3, base, 0),
			testEvent(t, progress.KindExerciseSolved, 5, base.AddDate(0, 0, 1), 1),
			testEvent(t, progress.KindExerciseSolved, 4, base.AddDate(0, 0, 2), 2),
		}
		assert.Equal(t, int64(12), Aggregate(c, events))
		assert.False(t, MeetsTarget(c, events))
	})

	t.Run("score threshold takes the best attempt", func(t *testing.T) {
		c := newTestCommitment(t, GoalScoreThreshold, 90, 14*24*time.Hour)
		events := []*progress.Event{
			testEvent(t, progress.KindQuizScored, 70, base, 0),
			testEvent(t, progress.KindQuizScored, 92, base.AddDate(0, 0, 1), 1),
			testEvent(t, progress.KindQuizScored, 85, base.AddDate(0, 0, 2), 2),
		}
		assert.Equal(t, int64(92), Aggregate(c, events))
		assert.True(t, MeetsTarget(c, events))
	})

	t.Run("other kinds are ignored", func(t *testing.T) {
		c := newTestCommitment(t, GoalItemCount, 20, 14*24*time.Hour)
		events := []*progress.Event{
			testEvent(t, progress.KindExerciseSolved, 3, base, 0),
			testEvent(t, progress.KindStudyTime, 120, base, 1),
		}
		assert.Equal(t, int64(3), Aggregate(c, events))
	})

	t.Run("events outside the window are ignored", func(t *testing.T) {
		c := newTestCommitment(t, GoalItemCount, 20, 2*24*time.Hour)
		events := []*progress.Event{
			testEvent(t, progress.KindExerciseSolved, 3, base, 0),
			testEvent(t, progress.KindExerciseSolved, 5, c.CreatedAt.Add(-time.Hour), 1),
		}
		assert.Equal(t, int64(3), Aggregate(c, events))
	})

	t.Run("event stamped exactly at the deadline does not count", func(t *testing.T) {
		c := newTestCommitment(t, GoalItemCount, 20, 2*24*time.Hour)
		events := []*progress.Event{
			testEvent(t, progress.KindExerciseSolved, 3, base, 0),
			testEvent(t, progress.KindExerciseSolved, 5, c.Deadline, 1),
		}
		assert.Equal(t, int64(3), Aggregate(c, events))
	})

	t.Run("monotonic under growth", func(t *testing.T) {
		c := newTestCommitment(t, GoalItemCount, 100, 14*24*time.Hour)
		events := []*progress.Event{
			testEvent(t, progress.KindExerciseSolved, 3, base, 0),
		}
		before := Aggregate(c, events)
		events = append(events, testEvent(t, progress.KindExerciseSolved, 2, base.AddDate(0, 0, 1), 1))
		assert.GreaterOrEqual(t, Aggregate(c, events), before)
	})
}
