package scholarship

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUADRATIC MATCHING
// All arithmetic is decimal with a fixed precision, claims are processed in
// sorted ID order, and allocations are quantized at defined points, so the
// same inputs always produce the same result to the last digit.
// ══════════════════════════════════════════════════════════════════════════════

// sqrtPrecision is the number of decimal digits carried through the
// square-root iteration.
const sqrtPrecision = int32(16)

// allocationPlaces is the quantization applied to final allocations.
const allocationPlaces = int32(8)

// MatchingResult holds the outcome of a round's matching computation.
type MatchingResult struct {
	// Allocations maps claim ID to its matched amount.
	Allocations map[string]shared.Amount

	// Distributed is the sum of all allocations.
	Distributed shared.Amount

	// Rollover is pool minus distributed, carried to the next round.
	Rollover shared.Amount
}

// ComputeMatching runs the quadratic funding formula over verified claims.
//
// Weight of a claim is the square of the sum of square roots of each
// distinct donor's total contribution to it. The pool is split in weight
// proportion, with a per-claim cap at capFraction of the pool: capped
// excess is redistributed once among uncapped claims, and anything still
// above the cap after that pass rolls over.
func ComputeMatching(pool shared.Amount, claims []*Claim, donations []*Donation, capFraction decimal.Decimal) (*MatchingResult, error) {
	if capFraction.IsNegative() || capFraction.GreaterThan(decimal.NewFromInt(1)) {
		return nil, shared.NewDomainError("scholarship", "ComputeMatching",
			shared.ErrValueOutOfRange, "cap fraction must be within [0, 1]")
	}

	verified := make(map[string]bool, len(claims))
	claimIDs := make([]string, 0, len(claims))
	for _, c := range claims {
		if c.Status != ClaimVerified {
			return nil, shared.ErrClaimNotVerified
		}
		if !verified[c.ID] {
			verified[c.ID] = true
			claimIDs = append(claimIDs, c.ID)
		}
	}
	sort.Strings(claimIDs)

	weights := claimWeights(claimIDs, verified, donations)

	totalWeight := decimal.Zero
	for _, id := range claimIDs {
		totalWeight = totalWeight.Add(weights[id])
	}

	result := &MatchingResult{
		Allocations: make(map[string]shared.Amount, len(claimIDs)),
		Distributed: shared.ZeroAmount,
		Rollover:    pool,
	}
	if totalWeight.IsZero() {
		// Nothing attracted donations; the whole pool rolls over.
		for _, id := range claimIDs {
			result.Allocations[id] = shared.ZeroAmount
		}
		return result, nil
	}

	poolDec := pool.Decimal()
	capAmount := poolDec.Mul(capFraction)

	// First pass: proportional allocation, clamped at the cap.
	raw := make(map[string]decimal.Decimal, len(claimIDs))
	excess := decimal.Zero
	uncappedWeight := decimal.Zero
	for _, id := range claimIDs {
		share := poolDec.Mul(weights[id]).DivRound(totalWeight, sqrtPrecision)
		if share.GreaterThan(capAmount) {
			excess = excess.Add(share.Sub(capAmount))
			raw[id] = capAmount
		} else {
			raw[id] = share
			uncappedWeight = uncappedWeight.Add(weights[id])
		}
	}

	// Second pass: hand capped excess to uncapped claims in weight
	// proportion, clamping again. Whatever does not fit rolls over.
	if excess.IsPositive() && uncappedWeight.IsPositive() {
		for _, id := range claimIDs {
			if raw[id].Equal(capAmount) {
				continue
			}
			bonus := excess.Mul(weights[id]).DivRound(uncappedWeight, sqrtPrecision)
			topped := raw[id].Add(bonus)
			if topped.GreaterThan(capAmount) {
				topped = capAmount
			}
			raw[id] = topped
		}
	}

	distributed := decimal.Zero
	for _, id := range claimIDs {
		quantized := raw[id].RoundDown(allocationPlaces)
		amount, err := shared.NewAmountFromDecimal(quantized)
		if err != nil {
			return nil, err
		}
		result.Allocations[id] = amount
		distributed = distributed.Add(quantized)
	}

	var err error
	result.Distributed, err = shared.NewAmountFromDecimal(distributed)
	if err != nil {
		return nil, err
	}
	result.Rollover, err = shared.NewAmountFromDecimal(poolDec.Sub(distributed))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// claimWeights computes (Σ_donors √contribution)² per claim.
// A donor contributing twice to the same claim counts once with the total.
func claimWeights(claimIDs []string, verified map[string]bool, donations []*Donation) map[string]decimal.Decimal {
	// claim -> donor -> total contribution
	perDonor := make(map[string]map[shared.LearnerID]decimal.Decimal)
	for _, d := range donations {
		if !verified[d.ClaimID] {
			continue
		}
		donors, ok := perDonor[d.ClaimID]
		if !ok {
			donors = make(map[shared.LearnerID]decimal.Decimal)
			perDonor[d.ClaimID] = donors
		}
		donors[d.DonorID] = donors[d.DonorID].Add(d.Amount.Decimal())
	}

	weights := make(map[string]decimal.Decimal, len(claimIDs))
	for _, id := range claimIDs {
		donors := perDonor[id]

		// Iterate donors in sorted order so rounding inside sqrt sums
		// identically on every run.
		donorIDs := make([]string, 0, len(donors))
		for donorID := range donors {
			donorIDs = append(donorIDs, string(donorID))
		}
		sort.Strings(donorIDs)

		sumRoots := decimal.Zero
		for _, donorID := range donorIDs {
			sumRoots = sumRoots.Add(decimalSqrt(donors[shared.LearnerID(donorID)]))
		}
		weights[id] = sumRoots.Mul(sumRoots)
	}
	return weights
}

// decimalSqrt computes √d with Newton's method at fixed precision.
// Converges in well under 64 iterations for any practical amount.
func decimalSqrt(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() || d.IsNegative() {
		return decimal.Zero
	}

	two := decimal.NewFromInt(2)
	guess := d.DivRound(two, sqrtPrecision)
	if guess.IsZero() {
		guess = d
	}

	for i := 0; i < 64; i++ {
		next := guess.Add(d.DivRound(guess, sqrtPrecision)).DivRound(two, sqrtPrecision)
		if next.Equal(guess) {
			break
		}
		guess = next
	}
	return guess
}
