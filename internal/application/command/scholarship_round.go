package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/olgagaga/web3-learning/internal/domain/scholarship"
	"github.com/olgagaga/web3-learning/internal/domain/settlement"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHOLARSHIP COMMANDS
// Round lifecycle plus claim and donation intake. Closing a round runs the
// deterministic quadratic matching, persists rewards, and opens the next
// round seeded with the rollover.
// ══════════════════════════════════════════════════════════════════════════════

// OpenRoundCommand opens a new funding round.
type OpenRoundCommand struct {
	// SeedPool is the initial matching pool as a decimal string.
	SeedPool string

	// Window is the submission and donation window.
	Window shared.TimeRange
}

// SubmitClaimCommand submits an improvement claim into the open round.
type SubmitClaimCommand struct {
	LearnerID          string
	ImprovementPercent string
	TimeframeDays      int
	Evidence           string
}

// VerifyClaimCommand runs eligibility verification on a submitted claim.
type VerifyClaimCommand struct {
	ClaimID string
}

// DonateCommand records a donor's contribution toward a claim.
type DonateCommand struct {
	ClaimID string
	DonorID string
	Amount  string
	// TxRef is the confirmed transfer settlement reference.
	TxRef string
}

// CloseRoundCommand finalizes the open round.
type CloseRoundCommand struct {
	// Force closes even if the window has not ended. Operational use only.
	Force bool

	// Now is the close reference time (defaults to now if zero).
	Now time.Time
}

// CloseRoundResult contains the matching outcome.
type CloseRoundResult struct {
	RoundID     string
	Distributed shared.Amount
	Rollover    shared.Amount
	Rewarded    int
	NextRoundID string
}

// ScholarshipHandler handles all scholarship commands.
type ScholarshipHandler struct {
	roundRepo      scholarship.RoundRepository
	claimRepo      scholarship.ClaimRepository
	donationRepo   scholarship.DonationRepository
	settlementRepo settlement.Repository
	eventPublisher shared.EventPublisher

	rules       scholarship.EligibilityRules
	capFraction decimal.Decimal

	// roundLength is the window of automatically opened successor rounds.
	roundLength time.Duration
}

// NewScholarshipHandler creates a new ScholarshipHandler.
func NewScholarshipHandler(
	roundRepo scholarship.RoundRepository,
	claimRepo scholarship.ClaimRepository,
	donationRepo scholarship.DonationRepository,
	settlementRepo settlement.Repository,
	eventPublisher shared.EventPublisher,
	rules scholarship.EligibilityRules,
	capFraction decimal.Decimal,
	roundLength time.Duration,
) *ScholarshipHandler {
	if roundLength <= 0 {
		roundLength = 30 * 24 * time.Hour
	}
	return &ScholarshipHandler{
		roundRepo:      roundRepo,
		claimRepo:      claimRepo,
		donationRepo:   donationRepo,
		settlementRepo: settlementRepo,
		eventPublisher: eventPublisher,
		rules:          rules,
		capFraction:    capFraction,
		roundLength:    roundLength,
	}
}

// OpenRound opens a funding round.
func (h *ScholarshipHandler) OpenRound(ctx context.Context, cmd OpenRoundCommand) (*scholarship.Round, error) {
	if _, err := h.roundRepo.GetOpen(ctx); err == nil {
		return nil, shared.NewDomainError("scholarship", "OpenRound", shared.ErrAlreadyExists,
			"a round is already open")
	} else if !shared.IsNotFound(err) {
		return nil, fmt.Errorf("open_round: %w", err)
	}

	seed := shared.ZeroAmount
	if cmd.SeedPool != "" {
		var err error
		seed, err = shared.NewAmount(cmd.SeedPool)
		if err != nil {
			return nil, fmt.Errorf("open_round: %w", err)
		}
	}

	round, err := scholarship.NewRound(scholarship.NewRoundParams{
		ID:       uuid.NewString(),
		SeedPool: seed,
		Window:   cmd.Window,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("open_round: %w", err)
	}

	if err := h.roundRepo.Create(ctx, round); err != nil {
		return nil, fmt.Errorf("open_round: failed to persist: %w", err)
	}
	return round, nil
}

// SubmitClaim adds a claim to the open round.
func (h *ScholarshipHandler) SubmitClaim(ctx context.Context, cmd SubmitClaimCommand) (*scholarship.Claim, error) {
	round, err := h.roundRepo.GetOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("submit_claim: %w", err)
	}

	improvement, err := decimal.NewFromString(cmd.ImprovementPercent)
	if err != nil {
		return nil, shared.NewDomainError("scholarship", "SubmitClaim", shared.ErrInvalidFormat,
			"improvement percent is not a decimal")
	}

	claim, err := scholarship.NewClaim(scholarship.NewClaimParams{
		ID:                 uuid.NewString(),
		RoundID:            round.ID,
		LearnerID:          cmd.LearnerID,
		ImprovementPercent: improvement,
		TimeframeDays:      cmd.TimeframeDays,
		Evidence:           cmd.Evidence,
		Now:                time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("submit_claim: %w", err)
	}

	if err := h.claimRepo.Create(ctx, claim); err != nil {
		return nil, fmt.Errorf("submit_claim: failed to persist: %w", err)
	}
	return claim, nil
}

// VerifyClaim runs eligibility checks on a submitted claim.
// Ineligible claims persist as rejected and the eligibility error is returned.
func (h *ScholarshipHandler) VerifyClaim(ctx context.Context, cmd VerifyClaimCommand) (*scholarship.Claim, error) {
	claim, err := h.claimRepo.GetByID(ctx, cmd.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("verify_claim: %w", err)
	}

	verifyErr := claim.Verify(h.rules, time.Now().UTC())
	if verifyErr != nil && !errors.Is(verifyErr, shared.ErrNotEligible) {
		return nil, fmt.Errorf("verify_claim: %w", verifyErr)
	}

	if err := h.claimRepo.Update(ctx, claim); err != nil {
		return nil, fmt.Errorf("verify_claim: failed to persist: %w", err)
	}
	return claim, verifyErr
}

// Donate records a contribution toward a verified claim in the open round.
func (h *ScholarshipHandler) Donate(ctx context.Context, cmd DonateCommand) (*scholarship.Donation, error) {
	claim, err := h.claimRepo.GetByID(ctx, cmd.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("donate: %w", err)
	}
	if claim.Status != scholarship.ClaimVerified {
		return nil, shared.ErrClaimNotVerified
	}

	round, err := h.roundRepo.GetByID(ctx, claim.RoundID)
	if err != nil {
		return nil, fmt.Errorf("donate: %w", err)
	}
	if round.Status != scholarship.RoundOpen {
		return nil, shared.ErrRoundClosed
	}

	amount, err := shared.NewAmount(cmd.Amount)
	if err != nil {
		return nil, fmt.Errorf("donate: %w", err)
	}

	donation, err := scholarship.NewDonation(scholarship.NewDonationParams{
		ID:      uuid.NewString(),
		RoundID: claim.RoundID,
		ClaimID: claim.ID,
		DonorID: cmd.DonorID,
		Amount:  amount,
		TxRef:   shared.TxRef(cmd.TxRef),
		Now:     time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("donate: %w", err)
	}

	if err := h.donationRepo.Create(ctx, donation); err != nil {
		return nil, fmt.Errorf("donate: failed to persist: %w", err)
	}
	return donation, nil
}

// CloseRound finalizes the open round: quadratic matching over verified
// claims, rewards persisted and queued for settlement, rollover seeding the
// next round.
func (h *ScholarshipHandler) CloseRound(ctx context.Context, cmd CloseRoundCommand) (*CloseRoundResult, error) {
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	round, err := h.roundRepo.GetOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("close_round: %w", err)
	}
	if !cmd.Force && now.Before(round.Window.To) {
		return nil, shared.NewDomainError("scholarship", "CloseRound", shared.ErrInvalidState,
			"round window has not ended")
	}

	claims, err := h.claimRepo.ListByRound(ctx, round.ID, scholarship.ClaimVerified)
	if err != nil {
		return nil, fmt.Errorf("close_round: failed to list claims: %w", err)
	}
	donations, err := h.donationRepo.ListByRound(ctx, round.ID)
	if err != nil {
		return nil, fmt.Errorf("close_round: failed to list donations: %w", err)
	}

	matching, err := scholarship.ComputeMatching(round.Pool, claims, donations, h.capFraction)
	if err != nil {
		return nil, fmt.Errorf("close_round: matching: %w", err)
	}

	result := &CloseRoundResult{
		RoundID:     round.ID,
		Distributed: matching.Distributed,
		Rollover:    matching.Rollover,
	}

	for _, claim := range claims {
		reward := matching.Allocations[claim.ID]
		if err := claim.SetReward(reward, now); err != nil {
			return nil, fmt.Errorf("close_round: reward for %s: %w", claim.ID, err)
		}
		if err := h.claimRepo.Update(ctx, claim); err != nil {
			return nil, fmt.Errorf("close_round: persist claim %s: %w", claim.ID, err)
		}
		if reward.IsPositive() {
			if err := h.trackReward(ctx, claim, reward, now); err != nil {
				return nil, fmt.Errorf("close_round: %w", err)
			}
			result.Rewarded++
		}
	}

	transitionID := uuid.NewString()
	if err := round.Finalize(matching.Distributed, matching.Rollover, transitionID, now); err != nil {
		return nil, fmt.Errorf("close_round: %w", err)
	}
	if err := h.roundRepo.Update(ctx, round); err != nil {
		return nil, fmt.Errorf("close_round: persist round: %w", err)
	}

	finalized := shared.NewRoundFinalizedEvent(
		round.ID,
		round.Pool.String(),
		matching.Distributed.String(),
		matching.Rollover.String(),
		len(claims),
		transitionID,
	)
	_ = h.eventPublisher.Publish(finalized)

	// Rollover conservation: the next round starts with exactly what this
	// one did not distribute.
	next, err := scholarship.NewRound(scholarship.NewRoundParams{
		ID:       uuid.NewString(),
		SeedPool: matching.Rollover,
		Window:   shared.TimeRange{From: now, To: now.Add(h.roundLength)},
		Now:      now,
	})
	if err != nil {
		return result, fmt.Errorf("close_round: next round: %w", err)
	}
	if err := h.roundRepo.Create(ctx, next); err != nil {
		return result, fmt.Errorf("close_round: persist next round: %w", err)
	}
	result.NextRoundID = next.ID

	return result, nil
}

func (h *ScholarshipHandler) trackReward(ctx context.Context, claim *scholarship.Claim, reward shared.Amount, now time.Time) error {
	s, err := settlement.NewSettlement(settlement.NewSettlementParams{
		ID:        uuid.NewString(),
		Kind:      string(settlement.KindScholarshipReward),
		SubjectID: claim.ID,
		LearnerID: string(claim.LearnerID),
		Amount:    reward,
		Now:       now,
	})
	if err != nil {
		return err
	}
	if err := h.settlementRepo.Create(ctx, s); err != nil && !errors.Is(err, shared.ErrAlreadyExists) {
		return err
	}
	return nil
}
