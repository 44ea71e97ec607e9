package badge

// DefaultCatalog returns the built-in badge definitions. Deployments that
// want different badges pass their own slice to the query handler.
func DefaultCatalog() []Definition {
	return []Definition{
		{
			Code:  "iron_streak",
			Title: "Iron Streak",
			Criteria: []Criterion{
				{Key: "streak_days", Required: 30},
			},
		},
		{
			Code:  "century",
			Title: "Century",
			Criteria: []Criterion{
				{Key: "items_completed", Required: 100},
			},
		},
		{
			Code:  "promise_keeper",
			Title: "Promise Keeper",
			Criteria: []Criterion{
				{Key: "commitments_completed", Required: 5},
			},
		},
		{
			Code:  "mentor",
			Title: "Mentor",
			Criteria: []Criterion{
				{Key: "sessions_tutored", Required: 10},
			},
		},
		{
			// All-rounder needs every leg, so the weakest criterion gates it.
			Code:  "all_rounder",
			Title: "All-Rounder",
			Criteria: []Criterion{
				{Key: "streak_days", Required: 7},
				{Key: "items_completed", Required: 25},
				{Key: "commitments_completed", Required: 1},
			},
			CombineRule: "min(ratios)",
		},
		{
			Code:  "laureate",
			Title: "Laureate",
			Criteria: []Criterion{
				{Key: "claims_rewarded", Required: 1},
			},
		},
	}
}
