package query

import (
	"context"
	"fmt"

	"github.com/olgagaga/web3-learning/internal/domain/badge"
	"github.com/olgagaga/web3-learning/internal/domain/commitment"
	"github.com/olgagaga/web3-learning/internal/domain/escrow"
	"github.com/olgagaga/web3-learning/internal/domain/progress"
	"github.com/olgagaga/web3-learning/internal/domain/scholarship"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
	"github.com/olgagaga/web3-learning/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE PROGRESS QUERY
// Snapshots the learner's stats and evaluates every badge definition in the
// catalog against them. Definitions are data; adding a badge is a catalog
// change, not a code change.
// ══════════════════════════════════════════════════════════════════════════════

// snapshotWindowDays bounds how far back the stats snapshot looks.
const snapshotWindowDays = 365

// BadgeView is the read model for one badge's progress.
type BadgeView struct {
	Code     string  `json:"code"`
	Title    string  `json:"title"`
	Progress float64 `json:"progress"`
	Met      bool    `json:"met"`
}

// GetBadgesQuery identifies the learner.
type GetBadgesQuery struct {
	LearnerID string
}

// GetBadgesHandler handles the badge progress query.
type GetBadgesHandler struct {
	catalog        []badge.Definition
	evaluator      *badge.Evaluator
	eventRepo      progress.Repository
	commitmentRepo commitment.Repository
	sessionRepo    escrow.Repository
	claimRepo      scholarship.ClaimRepository
}

// NewGetBadgesHandler creates a new GetBadgesHandler.
func NewGetBadgesHandler(
	catalog []badge.Definition,
	eventRepo progress.Repository,
	commitmentRepo commitment.Repository,
	sessionRepo escrow.Repository,
	claimRepo scholarship.ClaimRepository,
) *GetBadgesHandler {
	return &GetBadgesHandler{
		catalog:        catalog,
		evaluator:      badge.NewEvaluator(),
		eventRepo:      eventRepo,
		commitmentRepo: commitmentRepo,
		sessionRepo:    sessionRepo,
		claimRepo:      claimRepo,
	}
}

// Handle evaluates the whole catalog for one learner.
func (h *GetBadgesHandler) Handle(ctx context.Context, q GetBadgesQuery) ([]BadgeView, error) {
	learnerID, err := shared.NewLearnerID(q.LearnerID)
	if err != nil {
		return nil, fmt.Errorf("get_badges: %w", err)
	}

	snapshot, err := h.buildSnapshot(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("get_badges: %w", err)
	}

	views := make([]BadgeView, 0, len(h.catalog))
	for _, def := range h.catalog {
		res, err := h.evaluator.Evaluate(def, snapshot)
		if err != nil {
			return nil, fmt.Errorf("get_badges: evaluate %s: %w", def.Code, err)
		}
		views = append(views, BadgeView{
			Code:     def.Code,
			Title:    def.Title,
			Progress: res.Progress,
			Met:      res.Met,
		})
	}
	return views, nil
}

// buildSnapshot gathers the stat values the catalog's criteria read.
func (h *GetBadgesHandler) buildSnapshot(ctx context.Context, learnerID shared.LearnerID) (badge.Snapshot, error) {
	window := shared.LastNDays(snapshotWindowDays)

	events, err := h.eventRepo.ListByLearner(ctx, learnerID, "", window)
	if err != nil {
		return nil, err
	}

	var items int64
	activeDays := make(map[string]struct{})
	for _, e := range events {
		if e.Kind == progress.KindExerciseSolved || e.Kind == progress.KindLessonCompleted {
			items += e.Magnitude
		}
		activeDays[timeutil.DayKey(e.OccurredAt)] = struct{}{}
	}

	commitments, err := h.commitmentRepo.ListByLearner(ctx, learnerID, commitment.ListOptions{Limit: 200})
	if err != nil {
		return nil, err
	}
	var completed int64
	for _, c := range commitments {
		if c.Status == commitment.StatusCompleted || c.Status == commitment.StatusClaimed {
			completed++
		}
	}

	tutored, err := h.sessionRepo.ListByTutor(ctx, learnerID, escrow.ListOptions{Limit: 200})
	if err != nil {
		return nil, err
	}
	var sessionsDone int64
	for _, s := range tutored {
		if s.Status == escrow.StatusCompleted {
			sessionsDone++
		}
	}

	claims, err := h.claimRepo.ListByLearner(ctx, learnerID, scholarship.ListOptions{Limit: 200})
	if err != nil {
		return nil, err
	}
	var rewarded int64
	for _, c := range claims {
		if c.Status == scholarship.ClaimRewarded {
			rewarded++
		}
	}

	return badge.Snapshot{
		"streak_days":           int64(currentStreak(activeDays, timeutil.Now())),
		"items_completed":       items,
		"commitments_completed": completed,
		"sessions_tutored":      sessionsDone,
		"claims_rewarded":       rewarded,
	}, nil
}
