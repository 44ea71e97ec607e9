package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/olgagaga/web3-learning/internal/domain/progress"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
	"github.com/olgagaga/web3-learning/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS SUMMARY QUERY
// Aggregated learner activity: per-kind totals over a window plus the
// current streak of consecutive active days ending today or yesterday.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressSummary is the read model for a learner's recent activity.
type ProgressSummary struct {
	LearnerID string `json:"learner_id"`

	// WindowDays is the summarized lookback window.
	WindowDays int `json:"window_days"`

	// TotalsByKind maps activity kind to summed magnitude.
	TotalsByKind map[string]int64 `json:"totals_by_kind"`

	// EventCount is the number of events in the window.
	EventCount int `json:"event_count"`

	// ActiveDays is the count of distinct active days in the window.
	ActiveDays int `json:"active_days"`

	// CurrentStreak is the run of consecutive active days ending today
	// (or yesterday, so an unfinished today does not break it).
	CurrentStreak int `json:"current_streak"`
}

// GetProgressSummaryQuery identifies the learner and lookback window.
type GetProgressSummaryQuery struct {
	LearnerID  string
	WindowDays int
}

// GetProgressSummaryHandler handles the progress summary query.
type GetProgressSummaryHandler struct {
	eventRepo progress.Repository
}

// NewGetProgressSummaryHandler creates a new GetProgressSummaryHandler.
func NewGetProgressSummaryHandler(eventRepo progress.Repository) *GetProgressSummaryHandler {
	return &GetProgressSummaryHandler{eventRepo: eventRepo}
}

// Handle executes the progress summary query.
func (h *GetProgressSummaryHandler) Handle(ctx context.Context, q GetProgressSummaryQuery) (*ProgressSummary, error) {
	learnerID, err := shared.NewLearnerID(q.LearnerID)
	if err != nil {
		return nil, fmt.Errorf("progress_summary: %w", err)
	}

	days := q.WindowDays
	if days <= 0 {
		days = 30
	}

	now := timeutil.Now()
	window := shared.LastNDays(days)

	events, err := h.eventRepo.ListByLearner(ctx, learnerID, "", window)
	if err != nil {
		return nil, fmt.Errorf("progress_summary: %w", err)
	}

	summary := &ProgressSummary{
		LearnerID:    string(learnerID),
		WindowDays:   days,
		TotalsByKind: make(map[string]int64),
		EventCount:   len(events),
	}

	activeDays := make(map[string]struct{})
	for _, e := range events {
		summary.TotalsByKind[string(e.Kind)] += e.Magnitude
		activeDays[timeutil.DayKey(e.OccurredAt)] = struct{}{}
	}
	summary.ActiveDays = len(activeDays)
	summary.CurrentStreak = currentStreak(activeDays, now)

	return summary, nil
}

// currentStreak counts consecutive active days walking back from today.
// A day with no activity yet today starts the walk from yesterday.
func currentStreak(activeDays map[string]struct{}, now time.Time) int {
	if len(activeDays) == 0 {
		return 0
	}

	day := timeutil.StartOfDay(now)
	if _, ok := activeDays[timeutil.DayKey(day)]; !ok {
		day = day.AddDate(0, 0, -1)
	}

	streak := 0
	for {
		if _, ok := activeDays[timeutil.DayKey(day)]; !ok {
			break
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY TIMELINE QUERY
// ══════════════════════════════════════════════════════════════════════════════

// TimelineDay is one day of a learner's activity timeline.
type TimelineDay struct {
	Day    string `json:"day"`
	Events int    `json:"events"`
	Total  int64  `json:"total"`
}

// GetTimelineQuery identifies the learner, kind filter, and window.
type GetTimelineQuery struct {
	LearnerID  string
	Kind       string
	WindowDays int
}

// GetTimelineHandler handles the activity timeline query.
type GetTimelineHandler struct {
	eventRepo progress.Repository
}

// NewGetTimelineHandler creates a new GetTimelineHandler.
func NewGetTimelineHandler(eventRepo progress.Repository) *GetTimelineHandler {
	return &GetTimelineHandler{eventRepo: eventRepo}
}

// Handle returns per-day activity buckets, oldest first.
func (h *GetTimelineHandler) Handle(ctx context.Context, q GetTimelineQuery) ([]TimelineDay, error) {
	learnerID, err := shared.NewLearnerID(q.LearnerID)
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}

	days := q.WindowDays
	if days <= 0 {
		days = 30
	}

	window := shared.LastNDays(days)
	events, err := h.eventRepo.ListByLearner(ctx, learnerID, progress.Kind(q.Kind), window)
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}

	buckets := make(map[string]*TimelineDay)
	for _, e := range events {
		key := timeutil.DayKey(e.OccurredAt)
		b, ok := buckets[key]
		if !ok {
			b = &TimelineDay{Day: key}
			buckets[key] = b
		}
		b.Events++
		b.Total += e.Magnitude
	}

	out := make([]TimelineDay, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}
