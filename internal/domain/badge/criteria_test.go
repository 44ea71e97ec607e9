package badge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

func TestEvaluator(t *testing.T) {
	eval := NewEvaluator()

	streakBadge := Definition{
		Code:  "iron_streak",
		Title: "Iron Streak",
		Criteria: []Criterion{
			{Key: "streak_days", Required: 30},
		},
	}

	scholarBadge := Definition{
		Code:  "scholar",
		Title: "Scholar",
		Criteria: []Criterion{
			{Key: "items_completed", Required: 100},
			{Key: "commitments_completed", Required: 5},
		},
	}

	t.Run("single criterion partial progress", func(t *testing.T) {
		res, err := eval.Evaluate(streakBadge, Snapshot{"streak_days": 15})
		require.NoError(t, err)
		assert.InDelta(t, 0.5, res.Progress, 1e-9)
		assert.False(t, res.Met)
	})

	t.Run("overshoot clamps to one", func(t *testing.T) {
		res, err := eval.Evaluate(streakBadge, Snapshot{"streak_days": 45})
		require.NoError(t, err)
		assert.Equal(t, 1.0, res.Progress)
		assert.True(t, res.Met)
	})

	t.Run("default rule averages criteria", func(t *testing.T) {
		res, err := eval.Evaluate(scholarBadge, Snapshot{
			"items_completed":       50,
			"commitments_completed": 5,
		})
		require.NoError(t, err)
		// (0.5 + 1.0) / 2
		assert.InDelta(t, 0.75, res.Progress, 1e-9)
		assert.False(t, res.Met)
		assert.Equal(t, []float64{0.5, 1.0}, res.Ratios)
	})

	t.Run("missing stat counts as zero", func(t *testing.T) {
		res, err := eval.Evaluate(scholarBadge, Snapshot{"items_completed": 100})
		require.NoError(t, err)
		assert.InDelta(t, 0.5, res.Progress, 1e-9)
	})

	t.Run("custom combine rule", func(t *testing.T) {
		def := Definition{
			Code:  "all_rounder",
			Title: "All-Rounder",
			Criteria: []Criterion{
				{Key: "sessions_tutored", Required: 10},
				{Key: "claims_rewarded", Required: 2},
			},
			// Earned only when every criterion is fully met.
			CombineRule: "min(ratios)",
		}
		res, err := eval.Evaluate(def, Snapshot{
			"sessions_tutored": 10,
			"claims_rewarded":  1,
		})
		require.NoError(t, err)
		assert.InDelta(t, 0.5, res.Progress, 1e-9)
		assert.False(t, res.Met)

		res, err = eval.Evaluate(def, Snapshot{
			"sessions_tutored": 12,
			"claims_rewarded":  2,
		})
		require.NoError(t, err)
		assert.True(t, res.Met)
	})

	t.Run("invalid combine rule", func(t *testing.T) {
		def := Definition{
			Code:        "broken",
			Criteria:    []Criterion{{Key: "streak_days", Required: 1}},
			CombineRule: "ratios +",
		}
		_, err := eval.Evaluate(def, Snapshot{})
		assert.ErrorIs(t, err, shared.ErrInvalidFormat)
	})

	t.Run("no criteria rejected", func(t *testing.T) {
		_, err := eval.Evaluate(Definition{Code: "empty"}, Snapshot{})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("invalid criterion rejected", func(t *testing.T) {
		def := Definition{
			Code:     "bad",
			Criteria: []Criterion{{Key: "", Required: 10}},
		}
		_, err := eval.Evaluate(def, Snapshot{})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}
