package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronExpression(t *testing.T) {
	t.Run("valid expressions", func(t *testing.T) {
		for _, expr := range []string{
			EveryMinute,
			Every5Minutes,
			EveryHour,
			EveryDayMidnight,
			"30 4 * * 1-5",
			"0,30 9-17 * * *",
		} {
			_, err := ParseCronExpression(expr)
			assert.NoError(t, err, expr)
		}
	})

	t.Run("invalid expressions", func(t *testing.T) {
		for _, expr := range []string{
			"",
			"* * * *",
			"61 * * * *",
			"* 25 * * *",
			"*/0 * * * *",
			"x * * * *",
		} {
			_, err := ParseCronExpression(expr)
			assert.Error(t, err, expr)
		}
	})
}

func TestCronExpressionNext(t *testing.T) {
	base := time.Date(2025, 3, 10, 14, 37, 12, 0, time.UTC) // a Monday

	t.Run("every five minutes", func(t *testing.T) {
		ce, err := ParseCronExpression(Every5Minutes)
		require.NoError(t, err)

		next := ce.Next(base)
		assert.Equal(t, time.Date(2025, 3, 10, 14, 40, 0, 0, time.UTC), next)
	})

	t.Run("daily at midnight", func(t *testing.T) {
		ce, err := ParseCronExpression(EveryDayMidnight)
		require.NoError(t, err)

		next := ce.Next(base)
		assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), next)
	})

	t.Run("weekday constraint", func(t *testing.T) {
		// 04:30 Monday through Friday; from Friday evening the next
		// firing is Monday morning.
		ce, err := ParseCronExpression("30 4 * * 1-5")
		require.NoError(t, err)

		friday := time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)
		next := ce.Next(friday)
		assert.Equal(t, time.Date(2025, 3, 17, 4, 30, 0, 0, time.UTC), next)
	})
}

func TestCronSchedule(t *testing.T) {
	t.Run("implements Schedule", func(t *testing.T) {
		s, err := NewCronSchedule(EveryHour)
		require.NoError(t, err)

		var _ Schedule = s
		assert.Equal(t, "cron(0 * * * *)", s.String())

		base := time.Date(2025, 3, 10, 14, 37, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC), s.Next(base))
	})

	t.Run("rejects malformed expression", func(t *testing.T) {
		_, err := NewCronSchedule("not cron")
		assert.Error(t, err)
	})
}
