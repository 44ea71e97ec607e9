package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Policy holds the economic parameters of the engine. Operators tune these
// per deployment; the defaults match the reference deployment.
type Policy struct {
	// Commitments
	RewardMultiplier decimal.Decimal // payout = stake * multiplier
	MinDuration      time.Duration   // shortest allowed commitment
	MaxDuration      time.Duration   // longest allowed commitment

	// Escrow
	PlatformFeeRate decimal.Decimal // fraction of tutor payout taken as fee

	// Scholarship matching
	MatchCapFraction decimal.Decimal // max share of the pool one claim can take

	// Claim eligibility
	MinImprovementPercent decimal.Decimal
	MinTimeframeDays      int
}

// policyFile is the YAML shape. Decimal fields are strings so operators
// write exact values ("1.10", not a float that rounds).
type policyFile struct {
	Commitments struct {
		RewardMultiplier string `yaml:"reward_multiplier"`
		MinDurationDays  int    `yaml:"min_duration_days"`
		MaxDurationDays  int    `yaml:"max_duration_days"`
	} `yaml:"commitments"`
	Escrow struct {
		PlatformFeeRate string `yaml:"platform_fee_rate"`
	} `yaml:"escrow"`
	Scholarship struct {
		MatchCapFraction      string `yaml:"match_cap_fraction"`
		MinImprovementPercent string `yaml:"min_improvement_percent"`
		MinTimeframeDays      int    `yaml:"min_timeframe_days"`
	} `yaml:"scholarship"`
}

// DefaultPolicy returns the built-in policy values.
func DefaultPolicy() Policy {
	return Policy{
		RewardMultiplier:      decimal.RequireFromString("1.10"),
		MinDuration:           24 * time.Hour,
		MaxDuration:           90 * 24 * time.Hour,
		PlatformFeeRate:       decimal.RequireFromString("0.05"),
		MatchCapFraction:      decimal.RequireFromString("0.25"),
		MinImprovementPercent: decimal.RequireFromString("10"),
		MinTimeframeDays:      14,
	}
}

// LoadPolicy reads the policy file at path, overlaying the defaults.
// An empty path returns the defaults unchanged.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Policy{}, fmt.Errorf("parse policy file: %w", err)
	}

	if err := overlayDecimal(&policy.RewardMultiplier, file.Commitments.RewardMultiplier, "reward_multiplier"); err != nil {
		return Policy{}, err
	}
	if file.Commitments.MinDurationDays > 0 {
		policy.MinDuration = time.Duration(file.Commitments.MinDurationDays) * 24 * time.Hour
	}
	if file.Commitments.MaxDurationDays > 0 {
		policy.MaxDuration = time.Duration(file.Commitments.MaxDurationDays) * 24 * time.Hour
	}
	if err := overlayDecimal(&policy.PlatformFeeRate, file.Escrow.PlatformFeeRate, "platform_fee_rate"); err != nil {
		return Policy{}, err
	}
	if err := overlayDecimal(&policy.MatchCapFraction, file.Scholarship.MatchCapFraction, "match_cap_fraction"); err != nil {
		return Policy{}, err
	}
	if err := overlayDecimal(&policy.MinImprovementPercent, file.Scholarship.MinImprovementPercent, "min_improvement_percent"); err != nil {
		return Policy{}, err
	}
	if file.Scholarship.MinTimeframeDays > 0 {
		policy.MinTimeframeDays = file.Scholarship.MinTimeframeDays
	}

	if err := policy.Validate(); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

// Validate checks policy invariants.
func (p Policy) Validate() error {
	one := decimal.NewFromInt(1)
	if p.RewardMultiplier.LessThan(one) {
		return fmt.Errorf("policy: reward_multiplier must be at least 1")
	}
	if p.MinDuration <= 0 || p.MaxDuration < p.MinDuration {
		return fmt.Errorf("policy: duration bounds are inverted")
	}
	if p.PlatformFeeRate.IsNegative() || p.PlatformFeeRate.GreaterThanOrEqual(one) {
		return fmt.Errorf("policy: platform_fee_rate must be in [0, 1)")
	}
	if !p.MatchCapFraction.IsPositive() || p.MatchCapFraction.GreaterThan(one) {
		return fmt.Errorf("policy: match_cap_fraction must be in (0, 1]")
	}
	if p.MinImprovementPercent.IsNegative() {
		return fmt.Errorf("policy: min_improvement_percent must not be negative")
	}
	if p.MinTimeframeDays < 1 {
		return fmt.Errorf("policy: min_timeframe_days must be at least 1")
	}
	return nil
}

func overlayDecimal(dst *decimal.Decimal, raw, name string) error {
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("policy: invalid %s %q: %w", name, raw, err)
	}
	*dst = d
	return nil
}
