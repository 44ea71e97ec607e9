// Package attestation contains signed, expiring claims about terminal facts.
// An attestation is the engine's portable proof that something irreversible
// happened: a commitment resolved, an improvement was verified, a tutoring
// session completed. Consumers verify the signature offline.
package attestation

import (
	"strings"
	"time"

	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// SubjectKind classifies what fact the attestation certifies.
type SubjectKind string

const (
	// SubjectCommitmentOutcome - a commitment completed or failed.
	SubjectCommitmentOutcome SubjectKind = "commitment_outcome"
	// SubjectVerifiedImprovement - a scholarship claim passed verification.
	SubjectVerifiedImprovement SubjectKind = "verified_improvement"
	// SubjectTutorSession - an escrow session was verified complete.
	SubjectTutorSession SubjectKind = "tutor_session"
	// SubjectProgressMilestone - an active commitment crossed a milestone.
	SubjectProgressMilestone SubjectKind = "progress_milestone"
)

// IsValid checks that the subject kind is known.
func (s SubjectKind) IsValid() bool {
	switch s {
	case SubjectCommitmentOutcome, SubjectVerifiedImprovement, SubjectTutorSession, SubjectProgressMilestone:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s SubjectKind) String() string {
	return string(s)
}

// Subject identifies the fact being attested.
type Subject struct {
	// Kind - what sort of fact this is.
	Kind SubjectKind

	// ID - the aggregate the fact belongs to (commitment, claim, session).
	ID string

	// LearnerID - the learner the fact is about.
	LearnerID shared.LearnerID

	// MetricKey - what was measured, e.g. "streak_days", "improvement_percent".
	MetricKey string

	// MetricValue - the measured value, stringified for exact reproduction.
	MetricValue string

	// Terminal - whether the underlying aggregate is in a terminal state.
	// Progress milestones are the one non-terminal subject kind.
	Terminal bool
}

// Validate checks subject completeness.
func (s Subject) Validate() error {
	if !s.Kind.IsValid() {
		return shared.NewDomainError("attestation", "Validate", shared.ErrInvalidInput, "unknown subject kind")
	}
	if strings.TrimSpace(s.ID) == "" {
		return shared.NewDomainError("attestation", "Validate", shared.ErrEmptyValue, "subject ID is required")
	}
	if !s.LearnerID.IsValid() {
		return shared.NewDomainError("attestation", "Validate", shared.ErrInvalidID, "invalid learner ID")
	}
	if strings.TrimSpace(s.MetricKey) == "" || strings.TrimSpace(s.MetricValue) == "" {
		return shared.NewDomainError("attestation", "Validate", shared.ErrEmptyValue, "metric key and value are required")
	}
	if s.Kind != SubjectProgressMilestone && !s.Terminal {
		return shared.ErrSubjectNotTerminal
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: ATTESTATION
// ══════════════════════════════════════════════════════════════════════════════

// Attestation is an issued, signed claim. Immutable after issuance.
type Attestation struct {
	// ID - internal unique identifier (UUID in string form).
	ID string

	// Subject - the attested fact.
	Subject Subject

	// PayloadHash - Keccak-256 over the canonical payload encoding.
	PayloadHash []byte

	// Signature - Ed25519 signature over PayloadHash.
	Signature []byte

	// IssuedAt - issuance time.
	IssuedAt time.Time

	// ExpiresAt - after this the attestation no longer verifies.
	ExpiresAt time.Time
}

// IsExpired reports whether the attestation has passed its expiry.
func (a *Attestation) IsExpired(now time.Time) bool {
	return now.UTC().After(a.ExpiresAt)
}

// IsLive reports whether the attestation is still usable.
func (a *Attestation) IsLive(now time.Time) bool {
	return !a.IsExpired(now)
}
