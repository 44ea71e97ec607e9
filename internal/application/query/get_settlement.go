package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/olgagaga/web3-learning/internal/domain/settlement"
)

// ══════════════════════════════════════════════════════════════════════════════
// SETTLEMENT QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// SettlementView is the read model for one tracked settlement.
type SettlementView struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	SubjectID      string    `json:"subject_id"`
	LearnerID      string    `json:"learner_id"`
	Amount         string    `json:"amount"`
	IdempotencyKey string    `json:"idempotency_key"`
	TxRef          string    `json:"tx_ref,omitempty"`
	Status         string    `json:"status"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// GetSettlementQuery identifies one settlement.
type GetSettlementQuery struct {
	SettlementID string
}

// GetSettlementHandler handles settlement read queries.
type GetSettlementHandler struct {
	settlementRepo settlement.Repository
}

// NewGetSettlementHandler creates a new GetSettlementHandler.
func NewGetSettlementHandler(settlementRepo settlement.Repository) *GetSettlementHandler {
	return &GetSettlementHandler{settlementRepo: settlementRepo}
}

// Get returns one settlement view.
func (h *GetSettlementHandler) Get(ctx context.Context, q GetSettlementQuery) (*SettlementView, error) {
	if q.SettlementID == "" {
		return nil, errors.New("get_settlement: settlement_id is required")
	}

	s, err := h.settlementRepo.GetByID(ctx, q.SettlementID)
	if err != nil {
		return nil, fmt.Errorf("get_settlement: %w", err)
	}
	return toSettlementView(s), nil
}

// ListFailed returns failed settlements awaiting an operator retry.
func (h *GetSettlementHandler) ListFailed(ctx context.Context, limit int) ([]*SettlementView, error) {
	if limit <= 0 {
		limit = 50
	}

	items, err := h.settlementRepo.ListFailed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list_failed_settlements: %w", err)
	}

	views := make([]*SettlementView, 0, len(items))
	for _, s := range items {
		views = append(views, toSettlementView(s))
	}
	return views, nil
}

func toSettlementView(s *settlement.Settlement) *SettlementView {
	return &SettlementView{
		ID:             s.ID,
		Kind:           s.Kind.String(),
		SubjectID:      s.SubjectID,
		LearnerID:      string(s.LearnerID),
		Amount:         s.Amount.String(),
		IdempotencyKey: string(s.IdempotencyKey),
		TxRef:          string(s.TxRef),
		Status:         s.Status.String(),
		Attempts:       s.Attempts,
		LastError:      s.LastError,
		CreatedAt:      s.CreatedAt,
	}
}
