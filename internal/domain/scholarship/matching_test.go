package scholarship

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

var defaultCap = decimal.RequireFromString("0.25")

func verifiedClaim(t *testing.T, id string) *Claim {
	t.Helper()
	c, err := NewClaim(NewClaimParams{
		ID:                 id,
		RoundID:            "round-1",
		LearnerID:          "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		ImprovementPercent: decimal.RequireFromString("25"),
		TimeframeDays:      30,
		Now:                time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	c.Status = ClaimVerified
	return c
}

func donation(t *testing.T, claimID, donorID, amount string, seq int) *Donation {
	t.Helper()
	d, err := NewDonation(NewDonationParams{
		ID:      fmt.Sprintf("don-%s-%d", claimID, seq),
		RoundID: "round-1",
		ClaimID: claimID,
		DonorID: donorID,
		Amount:  shared.MustAmount(amount),
		TxRef:   shared.TxRef(fmt.Sprintf("tx-%s-%d", claimID, seq)),
		Now:     time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return d
}

const (
	donorA = "11111111-aaaa-bbbb-cccc-000000000001"
	donorB = "11111111-aaaa-bbbb-cccc-000000000002"
	donorC = "11111111-aaaa-bbbb-cccc-000000000003"
)

func TestClaimWeights(t *testing.T) {
	t.Run("two donors beat one whale with the same total", func(t *testing.T) {
		// (sqrt(0.10)+sqrt(0.40))^2 vs sqrt(0.50)^2
		donations := []*Donation{
			donation(t, "claim-a", donorA, "0.10", 1),
			donation(t, "claim-a", donorB, "0.40", 2),
			donation(t, "claim-b", donorC, "0.50", 1),
		}

		verified := map[string]bool{"claim-a": true, "claim-b": true}
		weights := claimWeights([]string{"claim-a", "claim-b"}, verified, donations)

		wa, _ := weights["claim-a"].Float64()
		wb, _ := weights["claim-b"].Float64()
		assert.InDelta(t, 0.9, wa, 1e-9)
		assert.InDelta(t, 0.5, wb, 1e-9)
		assert.Greater(t, wa, wb)
	})

	t.Run("repeat donations from one donor merge before the root", func(t *testing.T) {
		verified := map[string]bool{"claim-a": true}
		donations := []*Donation{
			donation(t, "claim-a", donorA, "0.25", 1),
			donation(t, "claim-a", donorA, "0.75", 2),
		}
		weights := claimWeights([]string{"claim-a"}, verified, donations)

		// One donor with 1.00 total: weight = 1, not (0.5 + 0.866...)^2.
		w, _ := weights["claim-a"].Float64()
		assert.InDelta(t, 1.0, w, 1e-9)
	})
}

func TestComputeMatching(t *testing.T) {
	pool := shared.MustAmount("1000")

	t.Run("allocates in weight proportion", func(t *testing.T) {
		claims := []*Claim{verifiedClaim(t, "claim-a"), verifiedClaim(t, "claim-b")}
		donations := []*Donation{
			donation(t, "claim-a", donorA, "1.00", 1),
			donation(t, "claim-b", donorB, "1.00", 1),
		}

		result, err := ComputeMatching(pool, claims, donations, decimal.NewFromInt(1))
		require.NoError(t, err)

		a, _ := result.Allocations["claim-a"].Decimal().Float64()
		b, _ := result.Allocations["claim-b"].Decimal().Float64()
		assert.InDelta(t, 500.0, a, 1e-6)
		assert.InDelta(t, 500.0, b, 1e-6)
	})

	t.Run("cap limits a dominant claim and redistributes", func(t *testing.T) {
		claims := []*Claim{
			verifiedClaim(t, "claim-a"),
			verifiedClaim(t, "claim-b"),
			verifiedClaim(t, "claim-c"),
		}
		// claim-a would take nearly everything without the cap.
		donations := []*Donation{
			donation(t, "claim-a", donorA, "100.00", 1),
			donation(t, "claim-b", donorB, "1.00", 1),
			donation(t, "claim-c", donorC, "1.00", 1),
		}

		result, err := ComputeMatching(pool, claims, donations, defaultCap)
		require.NoError(t, err)

		capValue := 250.0
		a, _ := result.Allocations["claim-a"].Decimal().Float64()
		b, _ := result.Allocations["claim-b"].Decimal().Float64()
		c, _ := result.Allocations["claim-c"].Decimal().Float64()

		assert.InDelta(t, capValue, a, 1e-6)
		assert.Greater(t, b, 0.0)
		assert.InDelta(t, b, c, 1e-6)
		assert.LessOrEqual(t, b, capValue+1e-9)
	})

	t.Run("pool is conserved", func(t *testing.T) {
		claims := []*Claim{
			verifiedClaim(t, "claim-a"),
			verifiedClaim(t, "claim-b"),
			verifiedClaim(t, "claim-c"),
		}
		donations := []*Donation{
			donation(t, "claim-a", donorA, "33.33", 1),
			donation(t, "claim-b", donorB, "7.77", 1),
			donation(t, "claim-c", donorC, "0.03", 1),
			donation(t, "claim-c", donorA, "1.99", 2),
		}

		result, err := ComputeMatching(pool, claims, donations, defaultCap)
		require.NoError(t, err)

		total := result.Distributed.Add(result.Rollover)
		assert.True(t, total.Equal(pool), "distributed %s + rollover %s != pool %s",
			result.Distributed, result.Rollover, pool)
	})

	t.Run("everything capped rolls the remainder over", func(t *testing.T) {
		claims := []*Claim{verifiedClaim(t, "claim-a")}
		donations := []*Donation{donation(t, "claim-a", donorA, "10.00", 1)}

		result, err := ComputeMatching(pool, claims, donations, defaultCap)
		require.NoError(t, err)

		a := result.Allocations["claim-a"]
		assert.True(t, a.Equal(shared.MustAmount("250")), "got %s", a)
		assert.True(t, result.Rollover.Equal(shared.MustAmount("750")), "got %s", result.Rollover)
	})

	t.Run("no donations rolls the whole pool over", func(t *testing.T) {
		claims := []*Claim{verifiedClaim(t, "claim-a")}

		result, err := ComputeMatching(pool, claims, nil, defaultCap)
		require.NoError(t, err)

		assert.True(t, result.Rollover.Equal(pool))
		assert.True(t, result.Allocations["claim-a"].IsZero())
	})

	t.Run("deterministic across runs and input order", func(t *testing.T) {
		claims := []*Claim{
			verifiedClaim(t, "claim-a"),
			verifiedClaim(t, "claim-b"),
		}
		donations := []*Donation{
			donation(t, "claim-a", donorA, "0.10", 1),
			donation(t, "claim-a", donorB, "0.40", 2),
			donation(t, "claim-b", donorC, "0.50", 1),
		}
		reversed := []*Donation{donations[2], donations[1], donations[0]}
		reversedClaims := []*Claim{claims[1], claims[0]}

		r1, err := ComputeMatching(pool, claims, donations, defaultCap)
		require.NoError(t, err)
		r2, err := ComputeMatching(pool, reversedClaims, reversed, defaultCap)
		require.NoError(t, err)

		for id := range r1.Allocations {
			assert.True(t, r1.Allocations[id].Equal(r2.Allocations[id]), "claim %s differs", id)
		}
		assert.True(t, r1.Rollover.Equal(r2.Rollover))
	})

	t.Run("unverified claim is rejected", func(t *testing.T) {
		c := verifiedClaim(t, "claim-a")
		c.Status = ClaimSubmitted

		_, err := ComputeMatching(pool, []*Claim{c}, nil, defaultCap)
		assert.ErrorIs(t, err, shared.ErrClaimNotVerified)
	})
}
