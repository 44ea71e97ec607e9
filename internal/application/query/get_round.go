package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/olgagaga/web3-learning/internal/domain/scholarship"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHOLARSHIP QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// RoundView is the read model for one funding round.
type RoundView struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Pool        string    `json:"pool"`
	Distributed string    `json:"distributed,omitempty"`
	Rollover    string    `json:"rollover,omitempty"`
	WindowFrom  time.Time `json:"window_from"`
	WindowTo    time.Time `json:"window_to"`
	ClaimCount  int       `json:"claim_count"`
	Donated     string    `json:"donated"`
}

// ClaimView is the read model for one claim.
type ClaimView struct {
	ID                 string    `json:"id"`
	RoundID            string    `json:"round_id"`
	LearnerID          string    `json:"learner_id"`
	ImprovementPercent string    `json:"improvement_percent"`
	TimeframeDays      int       `json:"timeframe_days"`
	Status             string    `json:"status"`
	Reward             string    `json:"reward,omitempty"`
	Donated            string    `json:"donated"`
	DonorCount         int       `json:"donor_count"`
	CreatedAt          time.Time `json:"created_at"`
}

// GetRoundQuery identifies a round; empty ID means the open round.
type GetRoundQuery struct {
	RoundID string
}

// GetClaimQuery identifies one claim.
type GetClaimQuery struct {
	ClaimID string
}

// GetRoundHandler handles scholarship read queries.
type GetRoundHandler struct {
	roundRepo    scholarship.RoundRepository
	claimRepo    scholarship.ClaimRepository
	donationRepo scholarship.DonationRepository
}

// NewGetRoundHandler creates a new GetRoundHandler.
func NewGetRoundHandler(
	roundRepo scholarship.RoundRepository,
	claimRepo scholarship.ClaimRepository,
	donationRepo scholarship.DonationRepository,
) *GetRoundHandler {
	return &GetRoundHandler{
		roundRepo:    roundRepo,
		claimRepo:    claimRepo,
		donationRepo: donationRepo,
	}
}

// GetRound returns a round view with claim and donation totals.
func (h *GetRoundHandler) GetRound(ctx context.Context, q GetRoundQuery) (*RoundView, error) {
	var round *scholarship.Round
	var err error
	if q.RoundID == "" {
		round, err = h.roundRepo.GetOpen(ctx)
	} else {
		round, err = h.roundRepo.GetByID(ctx, q.RoundID)
	}
	if err != nil {
		return nil, fmt.Errorf("get_round: %w", err)
	}

	claims, err := h.claimRepo.ListByRound(ctx, round.ID, "")
	if err != nil {
		return nil, fmt.Errorf("get_round: %w", err)
	}
	donations, err := h.donationRepo.ListByRound(ctx, round.ID)
	if err != nil {
		return nil, fmt.Errorf("get_round: %w", err)
	}

	donated := shared.ZeroAmount
	for _, d := range donations {
		donated = donated.Add(d.Amount)
	}

	view := &RoundView{
		ID:         round.ID,
		Status:     string(round.Status),
		Pool:       round.Pool.String(),
		WindowFrom: round.Window.From,
		WindowTo:   round.Window.To,
		ClaimCount: len(claims),
		Donated:    donated.String(),
	}
	if round.Status == scholarship.RoundFinalized {
		view.Distributed = round.Distributed.String()
		view.Rollover = round.Rollover.String()
	}
	return view, nil
}

// GetClaim returns one claim view with donation totals.
func (h *GetRoundHandler) GetClaim(ctx context.Context, q GetClaimQuery) (*ClaimView, error) {
	if q.ClaimID == "" {
		return nil, errors.New("get_claim: claim_id is required")
	}

	claim, err := h.claimRepo.GetByID(ctx, q.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("get_claim: %w", err)
	}

	donations, err := h.donationRepo.ListByClaim(ctx, claim.ID)
	if err != nil {
		return nil, fmt.Errorf("get_claim: %w", err)
	}

	donated := shared.ZeroAmount
	donors := make(map[shared.LearnerID]struct{})
	for _, d := range donations {
		donated = donated.Add(d.Amount)
		donors[d.DonorID] = struct{}{}
	}

	view := &ClaimView{
		ID:                 claim.ID,
		RoundID:            claim.RoundID,
		LearnerID:          string(claim.LearnerID),
		ImprovementPercent: claim.ImprovementPercent.String(),
		TimeframeDays:      claim.TimeframeDays,
		Status:             string(claim.Status),
		Donated:            donated.String(),
		DonorCount:         len(donors),
		CreatedAt:          claim.CreatedAt,
	}
	if claim.Reward.IsPositive() {
		view.Reward = claim.Reward.String()
	}
	return view, nil
}

// ListClaims returns claims in a round.
func (h *GetRoundHandler) ListClaims(ctx context.Context, roundID string) ([]*ClaimView, error) {
	if roundID == "" {
		return nil, errors.New("list_claims: round_id is required")
	}

	claims, err := h.claimRepo.ListByRound(ctx, roundID, "")
	if err != nil {
		return nil, fmt.Errorf("list_claims: %w", err)
	}

	views := make([]*ClaimView, 0, len(claims))
	for _, c := range claims {
		views = append(views, &ClaimView{
			ID:                 c.ID,
			RoundID:            c.RoundID,
			LearnerID:          string(c.LearnerID),
			ImprovementPercent: c.ImprovementPercent.String(),
			TimeframeDays:      c.TimeframeDays,
			Status:             string(c.Status),
			Reward:             rewardString(c),
			CreatedAt:          c.CreatedAt,
		})
	}
	return views, nil
}

func rewardString(c *scholarship.Claim) string {
	if c.Reward.IsPositive() {
		return c.Reward.String()
	}
	return ""
}
