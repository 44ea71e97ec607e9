// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrFutureTimestamp = errors.New("timestamp cannot be in the future")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrAlreadyProcessed  = errors.New("already processed")
	ErrExpired           = errors.New("expired")
	ErrNotTerminal       = errors.New("not in a terminal state")

	// Eligibility errors
	ErrNotEligible = errors.New("eligibility requirements not met")

	// Concurrency errors
	ErrConflict               = errors.New("conflict")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrOptimisticLock         = errors.New("optimistic lock failure")

	// Settlement-layer errors
	ErrExternalSettlement = errors.New("settlement layer error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "commitment", "escrow", "scholarship"
	Op      string // Operation that failed, e.g., "Create", "Activate"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Commitment domain errors
var (
	ErrCommitmentNotFound     = NewDomainError("commitment", "Find", ErrNotFound, "commitment not found")
	ErrDuplicateActiveGoal    = NewDomainError("commitment", "Create", ErrAlreadyExists, "learner already has an active commitment for this goal type")
	ErrCommitmentNotActive    = NewDomainError("commitment", "ApplyProgress", ErrInvalidState, "commitment is not accepting progress")
	ErrCommitmentNotClaimable = NewDomainError("commitment", "Claim", ErrInvalidTransition, "commitment outcome is not claimable")
	ErrInvalidGoalType        = NewDomainError("commitment", "Validate", ErrInvalidInput, "invalid goal type")
	ErrInvalidDuration        = NewDomainError("commitment", "Validate", ErrValueOutOfRange, "commitment duration out of allowed range")
)

// Progress ingest errors
var (
	ErrDuplicateEvent  = NewDomainError("ingest", "Record", ErrAlreadyProcessed, "progress event already recorded")
	ErrInvalidEventRef = NewDomainError("ingest", "Validate", ErrInvalidID, "invalid source reference")
)

// Attestation domain errors
var (
	ErrAttestationNotFound = NewDomainError("attestation", "Find", ErrNotFound, "attestation not found")
	ErrSubjectNotTerminal  = NewDomainError("attestation", "Issue", ErrNotTerminal, "subject has not reached a terminal state")
	ErrAlreadyIssued       = NewDomainError("attestation", "Issue", ErrAlreadyExists, "attestation already issued for this subject")
	ErrAttestationExpired  = NewDomainError("attestation", "Verify", ErrExpired, "attestation has expired")
	ErrBadSignature        = NewDomainError("attestation", "Verify", ErrValidation, "attestation signature does not match payload")
)

// Escrow domain errors
var (
	ErrSessionNotFound    = NewDomainError("escrow", "Find", ErrNotFound, "session not found")
	ErrSessionNotDisputed = NewDomainError("escrow", "ResolveDispute", ErrInvalidState, "session is not disputed")
	ErrSessionLocked      = NewDomainError("escrow", "Transition", ErrInvalidTransition, "session state does not allow this transition")
	ErrNotSessionTutor    = NewDomainError("escrow", "Authorize", ErrInvalidInput, "actor is not the session tutor")
	ErrNotSessionLearner  = NewDomainError("escrow", "Authorize", ErrInvalidInput, "actor is not the session learner")
)

// Scholarship domain errors
var (
	ErrRoundNotFound    = NewDomainError("scholarship", "Find", ErrNotFound, "funding round not found")
	ErrRoundClosed      = NewDomainError("scholarship", "Contribute", ErrInvalidState, "funding round is not open")
	ErrClaimNotFound    = NewDomainError("scholarship", "FindClaim", ErrNotFound, "scholarship claim not found")
	ErrClaimNotVerified = NewDomainError("scholarship", "Match", ErrInvalidState, "claim has not been verified")
	ErrClaimNotEligible = NewDomainError("scholarship", "VerifyClaim", ErrNotEligible, "claim does not meet eligibility requirements")
)

// Settlement errors
var (
	ErrSettlementNotFound    = NewDomainError("settlement", "Find", ErrNotFound, "pending settlement not found")
	ErrSettlementUnavailable = NewDomainError("settlement", "Submit", ErrServiceUnavailable, "settlement layer is unavailable")
	ErrSettlementTimeout     = NewDomainError("settlement", "Submit", ErrTimeout, "settlement layer request timeout")
	ErrSettlementRejected    = NewDomainError("settlement", "Confirm", ErrExternalSettlement, "settlement layer rejected the transaction")
	ErrSettlementNotFailed   = NewDomainError("settlement", "Retry", ErrInvalidState, "settlement is not in a failed state")

	// ErrConflictingFundingProof - a funding confirmation carried a different
	// reference than the one already recorded on the commitment.
	ErrConflictingFundingProof = NewDomainError("settlement", "ConfirmFunding", ErrConflict, "funding already confirmed with a different reference")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if the error is a conflict (duplicate or concurrent change).
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrOptimisticLock)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsInvalidTransition checks if the error is a state-machine violation.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrNotTerminal)
}

// IsEligibility checks if the error is an eligibility failure.
func IsEligibility(err error) bool {
	return errors.Is(err, ErrNotEligible)
}

// IsExternalSettlement checks if the error originated in the settlement layer.
func IsExternalSettlement(err error) bool {
	return errors.Is(err, ErrExternalSettlement) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
