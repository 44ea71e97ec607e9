// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/olgagaga/web3-learning/internal/domain/commitment"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMITMENT QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// CommitmentView is the read model for one commitment.
type CommitmentView struct {
	ID        string    `json:"id"`
	LearnerID string    `json:"learner_id"`
	GoalType  string    `json:"goal_type"`
	EventKind string    `json:"event_kind"`
	Target    int64     `json:"target"`
	Progress  int64     `json:"progress"`
	Remaining int64     `json:"remaining"`
	Stake     string    `json:"stake"`
	Payout    string    `json:"payout,omitempty"`
	Status    string    `json:"status"`
	Deadline  time.Time `json:"deadline"`
	CreatedAt time.Time `json:"created_at"`
}

// GetCommitmentQuery identifies one commitment.
type GetCommitmentQuery struct {
	CommitmentID string
}

// ListCommitmentsQuery lists a learner's commitments.
type ListCommitmentsQuery struct {
	LearnerID string
	Offset    int
	Limit     int
}

// GetCommitmentHandler handles commitment read queries.
type GetCommitmentHandler struct {
	commitmentRepo commitment.Repository
}

// NewGetCommitmentHandler creates a new GetCommitmentHandler.
func NewGetCommitmentHandler(commitmentRepo commitment.Repository) *GetCommitmentHandler {
	return &GetCommitmentHandler{commitmentRepo: commitmentRepo}
}

// Get returns one commitment view.
func (h *GetCommitmentHandler) Get(ctx context.Context, q GetCommitmentQuery) (*CommitmentView, error) {
	if q.CommitmentID == "" {
		return nil, errors.New("get_commitment: commitment_id is required")
	}

	c, err := h.commitmentRepo.GetByID(ctx, q.CommitmentID)
	if err != nil {
		return nil, fmt.Errorf("get_commitment: %w", err)
	}
	return toCommitmentView(c), nil
}

// List returns a learner's commitments, newest first.
func (h *GetCommitmentHandler) List(ctx context.Context, q ListCommitmentsQuery) ([]*CommitmentView, error) {
	learnerID, err := shared.NewLearnerID(q.LearnerID)
	if err != nil {
		return nil, fmt.Errorf("list_commitments: %w", err)
	}

	opts := commitment.DefaultListOptions()
	if q.Limit > 0 {
		opts.Limit = q.Limit
	}
	opts.Offset = q.Offset

	items, err := h.commitmentRepo.ListByLearner(ctx, learnerID, opts)
	if err != nil {
		return nil, fmt.Errorf("list_commitments: %w", err)
	}

	views := make([]*CommitmentView, 0, len(items))
	for _, c := range items {
		views = append(views, toCommitmentView(c))
	}
	return views, nil
}

func toCommitmentView(c *commitment.Commitment) *CommitmentView {
	view := &CommitmentView{
		ID:        c.ID,
		LearnerID: string(c.LearnerID),
		GoalType:  c.GoalType.String(),
		EventKind: c.EventKind.String(),
		Target:    c.Target,
		Progress:  c.Progress,
		Remaining: c.Remaining(),
		Stake:     c.Stake.String(),
		Status:    c.Status.String(),
		Deadline:  c.Deadline,
		CreatedAt: c.CreatedAt,
	}
	if c.Payout.IsPositive() {
		view.Payout = c.Payout.String()
	}
	return view
}
