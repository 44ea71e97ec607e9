// Package progress contains the normalized progress event model.
// Every external learning activity enters the engine through this package.
package progress

import (
	"strings"
	"time"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Kind classifies a progress event by the activity it represents.
type Kind string

const (
	// KindLessonCompleted - a lesson or task was finished.
	KindLessonCompleted Kind = "lesson_completed"
	// KindExerciseSolved - an exercise was solved (magnitude = items).
	KindExerciseSolved Kind = "exercise_solved"
	// KindQuizScored - a quiz was scored (magnitude = score).
	KindQuizScored Kind = "quiz_scored"
	// KindStudyTime - time spent studying (magnitude = minutes).
	KindStudyTime Kind = "study_time"
	// KindDailyCheckin - a daily activity check-in (magnitude = 1).
	KindDailyCheckin Kind = "daily_checkin"
)

// IsValid checks that the kind is one of the known activity kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindLessonCompleted, KindExerciseSolved, KindQuizScored, KindStudyTime, KindDailyCheckin:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (k Kind) String() string {
	return string(k)
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: PROGRESS EVENT
// ══════════════════════════════════════════════════════════════════════════════

// Event is a normalized, idempotent record of a single learning activity.
// Two reports with the same source reference and kind are the same event:
// the idempotency key makes replays and at-least-once delivery harmless.
type Event struct {
	// ID - internal unique identifier (UUID in string form).
	ID string

	// LearnerID - the learner who performed the activity.
	LearnerID shared.LearnerID

	// Kind - what sort of activity this is.
	Kind Kind

	// Magnitude - kind-specific size (items, score points, minutes, 1 for check-ins).
	Magnitude int64

	// SourceID - opaque reference into the reporting system.
	SourceID string

	// IdempotencyKey - sourceID + ":" + kind, unique across the event store.
	IdempotencyKey shared.IdempotencyKey

	// OccurredAt - when the activity happened (not when it was reported).
	OccurredAt time.Time

	// RecordedAt - when the engine accepted the event.
	RecordedAt time.Time
}

// NewEventParams holds the parameters for creating a progress event.
type NewEventParams struct {
	ID         string
	LearnerID  string
	Kind       string
	Magnitude  int64
	SourceID   string
	OccurredAt time.Time
}

// NewEvent creates a validated progress event.
func NewEvent(p NewEventParams) (*Event, error) {
	learnerID, err := shared.NewLearnerID(p.LearnerID)
	if err != nil {
		return nil, err
	}

	kind := Kind(strings.TrimSpace(p.Kind))
	if !kind.IsValid() {
		return nil, shared.NewDomainError("progress", "NewEvent", shared.ErrInvalidInput, "unknown event kind")
	}

	if p.Magnitude <= 0 {
		return nil, shared.NewDomainError("progress", "NewEvent", shared.ErrValueOutOfRange, "magnitude must be positive")
	}

	if strings.TrimSpace(p.SourceID) == "" {
		return nil, shared.ErrInvalidEventRef
	}

	if p.OccurredAt.IsZero() {
		return nil, shared.NewDomainError("progress", "NewEvent", shared.ErrEmptyValue, "occurred_at is required")
	}
	now := time.Now().UTC()
	if p.OccurredAt.After(now.Add(time.Minute)) {
		return nil, shared.NewDomainError("progress", "NewEvent", shared.ErrFutureTimestamp, "occurred_at is in the future")
	}

	key, err := shared.NewIdempotencyKey(p.SourceID, string(kind))
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:             p.ID,
		LearnerID:      learnerID,
		Kind:           kind,
		Magnitude:      p.Magnitude,
		SourceID:       strings.TrimSpace(p.SourceID),
		IdempotencyKey: key,
		OccurredAt:     p.OccurredAt.UTC(),
		RecordedAt:     now,
	}, nil
}
