package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/olgagaga/web3-learning/internal/domain/escrow"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ESCROW SESSION QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// SessionView is the read model for one escrow session.
type SessionView struct {
	ID            string    `json:"id"`
	LearnerID     string    `json:"learner_id"`
	TutorID       string    `json:"tutor_id"`
	Topic         string    `json:"topic"`
	Amount        string    `json:"amount"`
	Status        string    `json:"status"`
	Disposition   string    `json:"disposition"`
	TutorPayout   string    `json:"tutor_payout,omitempty"`
	LearnerRefund string    `json:"learner_refund,omitempty"`
	PlatformFee   string    `json:"platform_fee,omitempty"`
	WorkSummary   string    `json:"work_summary,omitempty"`
	DisputeReason string    `json:"dispute_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GetSessionQuery identifies one session.
type GetSessionQuery struct {
	SessionID string
}

// ListSessionsQuery lists sessions by participant role.
type ListSessionsQuery struct {
	LearnerID string
	// AsTutor lists sessions where the learner is the tutor.
	AsTutor bool
	Offset  int
	Limit   int
}

// GetSessionHandler handles session read queries.
type GetSessionHandler struct {
	sessionRepo escrow.Repository
}

// NewGetSessionHandler creates a new GetSessionHandler.
func NewGetSessionHandler(sessionRepo escrow.Repository) *GetSessionHandler {
	return &GetSessionHandler{sessionRepo: sessionRepo}
}

// Get returns one session view.
func (h *GetSessionHandler) Get(ctx context.Context, q GetSessionQuery) (*SessionView, error) {
	if q.SessionID == "" {
		return nil, errors.New("get_session: session_id is required")
	}

	s, err := h.sessionRepo.GetByID(ctx, q.SessionID)
	if err != nil {
		return nil, fmt.Errorf("get_session: %w", err)
	}
	return toSessionView(s), nil
}

// List returns sessions for a participant, newest first.
func (h *GetSessionHandler) List(ctx context.Context, q ListSessionsQuery) ([]*SessionView, error) {
	learnerID, err := shared.NewLearnerID(q.LearnerID)
	if err != nil {
		return nil, fmt.Errorf("list_sessions: %w", err)
	}

	opts := escrow.DefaultListOptions()
	if q.Limit > 0 {
		opts.Limit = q.Limit
	}
	opts.Offset = q.Offset

	var items []*escrow.Session
	if q.AsTutor {
		items, err = h.sessionRepo.ListByTutor(ctx, learnerID, opts)
	} else {
		items, err = h.sessionRepo.ListByLearner(ctx, learnerID, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("list_sessions: %w", err)
	}

	views := make([]*SessionView, 0, len(items))
	for _, s := range items {
		views = append(views, toSessionView(s))
	}
	return views, nil
}

func toSessionView(s *escrow.Session) *SessionView {
	view := &SessionView{
		ID:            s.ID,
		LearnerID:     string(s.LearnerID),
		TutorID:       string(s.TutorID),
		Topic:         s.Topic,
		Amount:        s.Amount.String(),
		Status:        s.Status.String(),
		Disposition:   string(s.Disposition),
		WorkSummary:   s.WorkSummary,
		DisputeReason: s.DisputeReason,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	if s.TutorPayout.IsPositive() {
		view.TutorPayout = s.TutorPayout.String()
	}
	if s.LearnerRefund.IsPositive() {
		view.LearnerRefund = s.LearnerRefund.String()
	}
	if s.PlatformFee.IsPositive() {
		view.PlatformFee = s.PlatformFee.String()
	}
	return view
}
