package commitment

import (
	"sort"

	"github.com/olgagaga/web3-learning/internal/domain/progress"
	"github.com/olgagaga/web3-learning/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS AGGREGATORS
// Each goal type aggregates the stored event set into a single value.
// Aggregation always recomputes from the full set inside the goal window,
// which makes the result independent of delivery order and monotonic:
// adding an event can only keep the value or raise it, never lower it.
// ══════════════════════════════════════════════════════════════════════════════

// Aggregate computes the progress value for the commitment from its event set.
// Events outside the goal window or with a different kind are ignored.
func Aggregate(c *Commitment, events []*progress.Event) int64 {
	relevant := filter(c, events)
	switch c.GoalType {
	case GoalStreak:
		return aggregateStreak(relevant)
	case GoalScoreThreshold:
		return aggregateMax(relevant)
	case GoalItemCount, GoalTimeSpent:
		return aggregateSum(relevant)
	default:
		return 0
	}
}

// filter keeps events of the commitment's kind inside its window.
func filter(c *Commitment, events []*progress.Event) []*progress.Event {
	window := c.Window()
	out := make([]*progress.Event, 0, len(events))
	for _, e := range events {
		if e == nil || e.Kind != c.EventKind {
			continue
		}
		if e.LearnerID != c.LearnerID {
			continue
		}
		if !window.Contains(e.OccurredAt) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// aggregateSum totals magnitudes (item counts, study minutes).
func aggregateSum(events []*progress.Event) int64 {
	var total int64
	for _, e := range events {
		total += e.Magnitude
	}
	return total
}

// aggregateMax returns the best single-attempt magnitude (quiz scores).
func aggregateMax(events []*progress.Event) int64 {
	var best int64
	for _, e := range events {
		if e.Magnitude > best {
			best = e.Magnitude
		}
	}
	return best
}

// aggregateStreak returns the longest run of consecutive distinct UTC
// calendar days with at least one event. Multiple events on the same day
// count as one day.
func aggregateStreak(events []*progress.Event) int64 {
	if len(events) == 0 {
		return 0
	}

	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		seen[timeutil.DayKey(e.OccurredAt)] = struct{}{}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var longest, run int64
	var prev string
	for i, k := range keys {
		if i == 0 {
			run = 1
		} else {
			prevDay, err1 := timeutil.ParseDayKey(prev)
			day, err2 := timeutil.ParseDayKey(k)
			if err1 == nil && err2 == nil && timeutil.IsConsecutiveDay(prevDay, day) {
				run++
			} else {
				run = 1
			}
		}
		if run > longest {
			longest = run
		}
		prev = k
	}
	return longest
}

// MeetsTarget reports whether the aggregated value satisfies the target.
func MeetsTarget(c *Commitment, events []*progress.Event) bool {
	return Aggregate(c, events) >= c.Target
}
