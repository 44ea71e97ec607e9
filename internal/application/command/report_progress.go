// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/olgagaga/web3-learning/internal/domain/commitment"
	"github.com/olgagaga/web3-learning/internal/domain/progress"
	"github.com/olgagaga/web3-learning/internal/domain/settlement"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT PROGRESS COMMAND
// Ingests one learning activity report: dedup, store, route to the learner's
// open commitments, recompute their aggregates, resolve any that hit target.
// ══════════════════════════════════════════════════════════════════════════════

// ReportProgressCommand contains a single activity report.
type ReportProgressCommand struct {
	// LearnerID is the internal ID of the learner.
	LearnerID string

	// Kind is the activity kind (lesson_completed, exercise_solved, ...).
	Kind string

	// Magnitude is the kind-specific size (items, score, minutes).
	Magnitude int64

	// SourceID is the reporting system's reference for this activity.
	SourceID string

	// OccurredAt is when the activity happened.
	OccurredAt time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ReportProgressCommand) Validate() error {
	if c.LearnerID == "" {
		return errors.New("report_progress: learner_id is required")
	}
	if c.SourceID == "" {
		return errors.New("report_progress: source_id is required")
	}
	if c.Magnitude <= 0 {
		return errors.New("report_progress: magnitude must be positive")
	}
	return nil
}

// ReportProgressResult contains the outcome of one report.
type ReportProgressResult struct {
	// EventID is the stored event's internal ID (empty on duplicate).
	EventID string

	// Duplicate indicates the report was already recorded.
	Duplicate bool

	// RoutedCommitments is how many open commitments counted this event.
	RoutedCommitments int

	// CompletedCommitments lists commitments this event pushed to completion.
	CompletedCommitments []string

	// RecordedAt is when the event was accepted.
	RecordedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ReportProgressHandler handles the ReportProgressCommand.
type ReportProgressHandler struct {
	eventRepo      progress.Repository
	guard          progress.IdempotencyGuard
	commitmentRepo commitment.Repository
	settlementRepo settlement.Repository
	eventPublisher shared.EventPublisher

	// Configuration
	rewardMultiplier decimal.Decimal
	guardTTL         time.Duration
	maxLockRetries   int
}

// ReportProgressHandlerConfig contains configuration for the handler.
type ReportProgressHandlerConfig struct {
	RewardMultiplier decimal.Decimal
	GuardTTL         time.Duration
	MaxLockRetries   int
}

// DefaultReportProgressHandlerConfig returns default configuration.
func DefaultReportProgressHandlerConfig() ReportProgressHandlerConfig {
	return ReportProgressHandlerConfig{
		RewardMultiplier: decimal.RequireFromString("1.10"),
		GuardTTL:         24 * time.Hour,
		MaxLockRetries:   3,
	}
}

// NewReportProgressHandler creates a new ReportProgressHandler.
func NewReportProgressHandler(
	eventRepo progress.Repository,
	guard progress.IdempotencyGuard,
	commitmentRepo commitment.Repository,
	settlementRepo settlement.Repository,
	eventPublisher shared.EventPublisher,
	config ReportProgressHandlerConfig,
) *ReportProgressHandler {
	if config.GuardTTL == 0 {
		config = DefaultReportProgressHandlerConfig()
	}

	return &ReportProgressHandler{
		eventRepo:        eventRepo,
		guard:            guard,
		commitmentRepo:   commitmentRepo,
		settlementRepo:   settlementRepo,
		eventPublisher:   eventPublisher,
		rewardMultiplier: config.RewardMultiplier,
		guardTTL:         config.GuardTTL,
		maxLockRetries:   config.MaxLockRetries,
	}
}

// Handle executes the report progress command.
func (h *ReportProgressHandler) Handle(ctx context.Context, cmd ReportProgressCommand) (*ReportProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("report_progress: validation failed: %w", err)
	}

	event, err := progress.NewEvent(progress.NewEventParams{
		ID:         uuid.NewString(),
		LearnerID:  cmd.LearnerID,
		Kind:       cmd.Kind,
		Magnitude:  cmd.Magnitude,
		SourceID:   cmd.SourceID,
		OccurredAt: cmd.OccurredAt,
	})
	if err != nil {
		return nil, fmt.Errorf("report_progress: %w", err)
	}

	// Fast duplicate filter. The store's unique constraint is authoritative;
	// the guard only short-circuits obvious replays.
	if h.guard != nil {
		reserved, err := h.guard.Reserve(ctx, event.IdempotencyKey, h.guardTTL)
		if err == nil && !reserved {
			return &ReportProgressResult{Duplicate: true, RecordedAt: event.RecordedAt}, nil
		}
	}

	if err := h.eventRepo.Save(ctx, event); err != nil {
		if errors.Is(err, shared.ErrDuplicateEvent) {
			return &ReportProgressResult{Duplicate: true, RecordedAt: event.RecordedAt}, nil
		}
		if h.guard != nil {
			// Free the key so a retry of the same report can get through.
			_ = h.guard.Release(ctx, event.IdempotencyKey)
		}
		return nil, fmt.Errorf("report_progress: failed to store event: %w", err)
	}

	result := &ReportProgressResult{
		EventID:    event.ID,
		RecordedAt: event.RecordedAt,
	}

	recorded := shared.NewProgressRecordedEvent(
		event.ID,
		string(event.LearnerID),
		string(event.Kind),
		event.Magnitude,
		event.SourceID,
		event.OccurredAt,
		string(event.IdempotencyKey),
	)
	if cmd.CorrelationID != "" {
		recorded.BaseEvent = recorded.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}
	_ = h.eventPublisher.Publish(recorded)

	// Route to open commitments counting this kind.
	open, err := h.commitmentRepo.ListActiveByLearnerKind(ctx, event.LearnerID, string(event.Kind))
	if err != nil {
		return nil, fmt.Errorf("report_progress: failed to list commitments: %w", err)
	}

	for _, c := range open {
		// Pending commitments buffer: the event is stored and will count at
		// activation, nothing to recompute yet.
		if c.Status != commitment.StatusActive {
			continue
		}
		completed, err := h.recompute(ctx, c.ID, cmd.CorrelationID)
		if err != nil {
			return nil, fmt.Errorf("report_progress: recompute for %s: %w", c.ID, err)
		}
		result.RoutedCommitments++
		if completed {
			result.CompletedCommitments = append(result.CompletedCommitments, c.ID)
		}
	}

	return result, nil
}

// recompute reloads the commitment and reapplies the full-set aggregate.
// Optimistic lock conflicts reload and retry; the aggregate is recomputed
// from scratch each attempt so no progress can be lost.
func (h *ReportProgressHandler) recompute(ctx context.Context, commitmentID, correlationID string) (bool, error) {
	var lastErr error
	for attempt := 0; attempt < h.maxLockRetries; attempt++ {
		c, err := h.commitmentRepo.GetByID(ctx, commitmentID)
		if err != nil {
			return false, err
		}
		if c.Status != commitment.StatusActive {
			return false, nil
		}

		events, err := h.eventRepo.ListByLearner(ctx, c.LearnerID, c.EventKind, c.Window())
		if err != nil {
			return false, err
		}

		value := commitment.Aggregate(c, events)
		transitionID := uuid.NewString()
		if err := c.ApplyProgress(value, transitionID, time.Now().UTC()); err != nil {
			return false, err
		}

		completed := c.Status == commitment.StatusCompleted
		if completed {
			if err := c.SetPayout(h.rewardMultiplier, time.Now().UTC()); err != nil {
				return false, err
			}
		}

		if err := h.commitmentRepo.Update(ctx, c); err != nil {
			if errors.Is(err, shared.ErrOptimisticLock) {
				lastErr = err
				continue
			}
			return false, err
		}

		if completed {
			if err := h.trackPayout(ctx, c); err != nil {
				return true, err
			}
			resolved := shared.NewCommitmentResolvedEvent(
				c.ID,
				string(c.LearnerID),
				string(c.GoalType),
				"completed",
				c.Stake.String(),
				c.Payout.String(),
				c.TransitionID,
			)
			if correlationID != "" {
				resolved.BaseEvent = resolved.BaseEvent.WithCorrelationID(correlationID)
			}
			_ = h.eventPublisher.Publish(resolved)
		}
		return completed, nil
	}
	return false, fmt.Errorf("report_progress: gave up after %d lock conflicts: %w", h.maxLockRetries, lastErr)
}

// trackPayout queues the reward payout with the settlement layer.
func (h *ReportProgressHandler) trackPayout(ctx context.Context, c *commitment.Commitment) error {
	s, err := settlement.NewSettlement(settlement.NewSettlementParams{
		ID:        uuid.NewString(),
		Kind:      string(settlement.KindCommitmentPayout),
		SubjectID: c.ID,
		LearnerID: string(c.LearnerID),
		Amount:    c.Payout,
		Now:       time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := h.settlementRepo.Create(ctx, s); err != nil && !errors.Is(err, shared.ErrAlreadyExists) {
		return err
	}
	return nil
}
