package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles and gradual rollouts.
// Money-moving features ship dark and ramp up per-learner, so a bad
// policy change never hits the whole population at once.
type FeatureFlags struct {
	mu sync.RWMutex

	// Core features
	features map[string]*Feature

	// Override rules (for testing/debugging)
	learnerOverrides map[string]map[string]bool // learnerID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Learners are assigned based on hash of their ID
	RolloutPercent int

	// Cohort targeting (e.g., "2026-spring")
	// Empty means all cohorts
	TargetCohorts []string

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time

	// A/B test variant (for experiments)
	Variants []string
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	LearnerID string

	Cohort  string // learner cohort (e.g., "2026-spring")
	IsAdmin bool
}

// Predefined feature flag names.
const (
	// === Commitment Features ===
	FeatureCommitmentStaking    = "commitment.staking"     // goal commitments with stakes
	FeatureCommitmentAutoExpire = "commitment.auto_expire" // scheduler expiry sweep
	FeatureCommitmentClaims     = "commitment.claims"      // reward claiming

	// === Escrow Features ===
	FeatureEscrowSessions = "escrow.sessions" // tutoring session escrow
	FeatureEscrowDisputes = "escrow.disputes" // dispute/resolution flow

	// === Scholarship Features ===
	FeatureScholarshipRounds    = "scholarship.rounds"    // funding rounds
	FeatureScholarshipMatching  = "scholarship.matching"  // quadratic matching on close
	FeatureScholarshipAntiWhale = "scholarship.antiwhale" // per-claim match cap

	// === Attestation Features ===
	FeatureAttestationIssuance = "attestation.issuance" // signed outcome attestations

	// === Notification Features ===
	FeatureNotifyTerminal = "notify.terminal_transitions" // webhook on terminal states

	// === Experimental Features ===
	FeatureExperimentalBadges = "experimental.badges" // data-driven achievement badges
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:         make(map[string]*Feature),
		learnerOverrides: make(map[string]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	// Commitments are the core product, on by default
	ff.features[FeatureCommitmentStaking] = &Feature{
		Name:           FeatureCommitmentStaking,
		Description:    "Goal commitments with staked funds",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureCommitmentAutoExpire] = &Feature{
		Name:           FeatureCommitmentAutoExpire,
		Description:    "Background sweep of past-deadline commitments",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureCommitmentClaims] = &Feature{
		Name:           FeatureCommitmentClaims,
		Description:    "Reward claiming for completed commitments",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureEscrowSessions] = &Feature{
		Name:           FeatureEscrowSessions,
		Description:    "Escrowed tutoring sessions",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureEscrowDisputes] = &Feature{
		Name:           FeatureEscrowDisputes,
		Description:    "Dispute and resolution flow",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureScholarshipRounds] = &Feature{
		Name:           FeatureScholarshipRounds,
		Description:    "Scholarship funding rounds",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureScholarshipMatching] = &Feature{
		Name:           FeatureScholarshipMatching,
		Description:    "Quadratic matching on round close",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureScholarshipAntiWhale] = &Feature{
		Name:           FeatureScholarshipAntiWhale,
		Description:    "Cap a single claim's share of the matching pool",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureAttestationIssuance] = &Feature{
		Name:           FeatureAttestationIssuance,
		Description:    "Signed attestations for terminal outcomes",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyTerminal] = &Feature{
		Name:           FeatureNotifyTerminal,
		Description:    "Webhook notifications on terminal transitions",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Experimental features - disabled by default
	ff.features[FeatureExperimentalBadges] = &Feature{
		Name:           FeatureExperimentalBadges,
		Description:    "Data-driven achievement badges",
		Enabled:        false,
		RolloutPercent: 0,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_ESCROW_DISPUTES=true
// Example: FEATURE_EXPERIMENTAL_BADGES=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			// Try parsing as boolean
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			// Try parsing as percentage
			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "escrow.disputes" -> "FEATURE_ESCROW_DISPUTES"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check learner overrides first
	if ctx != nil && ctx.LearnerID != "" {
		if overrides, ok := ff.learnerOverrides[ctx.LearnerID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	// Admin users get all features
	if ctx != nil && ctx.IsAdmin {
		return true
	}

	if !feature.Enabled {
		return false
	}

	// Check time-based activation
	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	// Check cohort targeting
	if len(feature.TargetCohorts) > 0 && ctx != nil && ctx.Cohort != "" {
		cohortMatch := false
		for _, c := range feature.TargetCohorts {
			if c == ctx.Cohort {
				cohortMatch = true
				break
			}
		}
		if !cohortMatch {
			return false
		}
	}

	// Check rollout percentage
	if feature.RolloutPercent < 100 && ctx != nil && ctx.LearnerID != "" {
		return ff.isInRollout(ctx.LearnerID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if a learner is in the rollout percentage.
// Uses consistent hashing so learners stay in their bucket.
func (ff *FeatureFlags) isInRollout(learnerID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(learnerID))
	hash := h.Sum32()

	// Map to 0-99 range
	bucket := int(hash % 100)

	return bucket < percent
}

// GetVariant returns the A/B test variant for a learner.
// Returns empty string if no variants defined or feature disabled.
func (ff *FeatureFlags) GetVariant(featureName string, ctx *FeatureContext) string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	if !ok || !ff.IsEnabled(featureName, ctx) {
		return ""
	}

	if len(feature.Variants) == 0 || ctx == nil {
		return ""
	}

	h := fnv.New32a()
	h.Write([]byte(featureName + "_variant"))
	h.Write([]byte(ctx.LearnerID))
	hash := h.Sum32()

	variantIndex := int(hash % uint32(len(feature.Variants)))
	return feature.Variants[variantIndex]
}

// SetLearnerOverride sets a feature override for a specific learner.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetLearnerOverride(learnerID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.learnerOverrides[learnerID]; !ok {
		ff.learnerOverrides[learnerID] = make(map[string]bool)
	}
	ff.learnerOverrides[learnerID][featureName] = enabled
}

// ClearLearnerOverrides removes all overrides for a learner.
func (ff *FeatureFlags) ClearLearnerOverrides(learnerID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.learnerOverrides, learnerID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
