package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/olgagaga/web3-learning/internal/domain/attestation"
	"github.com/olgagaga/web3-learning/internal/domain/commitment"
	"github.com/olgagaga/web3-learning/internal/domain/escrow"
	"github.com/olgagaga/web3-learning/internal/domain/scholarship"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ISSUE ATTESTATION COMMAND
// Builds the subject snapshot from the owning aggregate, signs it, and
// stores it. One live attestation per subject: a second issue attempt for
// the same fact returns the already-issued error.
// ══════════════════════════════════════════════════════════════════════════════

// IssueAttestationCommand identifies the fact to attest.
type IssueAttestationCommand struct {
	// SubjectKind is what sort of fact (commitment_outcome, tutor_session, ...).
	SubjectKind string

	// SubjectID is the owning aggregate's ID.
	SubjectID string
}

// Validate validates the command.
func (c IssueAttestationCommand) Validate() error {
	if c.SubjectKind == "" {
		return errors.New("issue_attestation: subject_kind is required")
	}
	if c.SubjectID == "" {
		return errors.New("issue_attestation: subject_id is required")
	}
	return nil
}

// IssueAttestationHandler handles the IssueAttestationCommand.
type IssueAttestationHandler struct {
	issuer          *attestation.Issuer
	attestationRepo attestation.Repository
	commitmentRepo  commitment.Repository
	sessionRepo     escrow.Repository
	claimRepo       scholarship.ClaimRepository
	eventPublisher  shared.EventPublisher
}

// NewIssueAttestationHandler creates a new IssueAttestationHandler.
func NewIssueAttestationHandler(
	issuer *attestation.Issuer,
	attestationRepo attestation.Repository,
	commitmentRepo commitment.Repository,
	sessionRepo escrow.Repository,
	claimRepo scholarship.ClaimRepository,
	eventPublisher shared.EventPublisher,
) *IssueAttestationHandler {
	return &IssueAttestationHandler{
		issuer:          issuer,
		attestationRepo: attestationRepo,
		commitmentRepo:  commitmentRepo,
		sessionRepo:     sessionRepo,
		claimRepo:       claimRepo,
		eventPublisher:  eventPublisher,
	}
}

// Handle executes the issue attestation command.
func (h *IssueAttestationHandler) Handle(ctx context.Context, cmd IssueAttestationCommand) (*attestation.Attestation, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("issue_attestation: validation failed: %w", err)
	}

	kind := attestation.SubjectKind(cmd.SubjectKind)
	if !kind.IsValid() {
		return nil, shared.NewDomainError("attestation", "Issue", shared.ErrInvalidInput, "unknown subject kind")
	}

	subject, err := h.buildSubject(ctx, kind, cmd.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("issue_attestation: %w", err)
	}

	a, err := h.issuer.Issue(uuid.NewString(), subject, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("issue_attestation: %w", err)
	}

	if err := h.attestationRepo.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("issue_attestation: %w", err)
	}

	issued := shared.NewAttestationIssuedEvent(
		a.ID,
		string(a.Subject.Kind),
		a.Subject.ID,
		string(a.Subject.LearnerID),
		a.ExpiresAt,
	)
	_ = h.eventPublisher.Publish(issued)

	return a, nil
}

// buildSubject snapshots the owning aggregate into an attestable subject.
func (h *IssueAttestationHandler) buildSubject(ctx context.Context, kind attestation.SubjectKind, subjectID string) (attestation.Subject, error) {
	switch kind {
	case attestation.SubjectCommitmentOutcome:
		c, err := h.commitmentRepo.GetByID(ctx, subjectID)
		if err != nil {
			return attestation.Subject{}, err
		}
		return attestation.Subject{
			Kind:        kind,
			ID:          c.ID,
			LearnerID:   c.LearnerID,
			MetricKey:   "outcome:" + c.GoalType.String(),
			MetricValue: c.Status.String() + ":" + strconv.FormatInt(c.Progress, 10),
			Terminal:    c.Status.IsTerminal(),
		}, nil

	case attestation.SubjectProgressMilestone:
		c, err := h.commitmentRepo.GetByID(ctx, subjectID)
		if err != nil {
			return attestation.Subject{}, err
		}
		return attestation.Subject{
			Kind:        kind,
			ID:          c.ID,
			LearnerID:   c.LearnerID,
			MetricKey:   "progress:" + c.GoalType.String(),
			MetricValue: strconv.FormatInt(c.Progress, 10),
			Terminal:    c.Status.IsTerminal(),
		}, nil

	case attestation.SubjectTutorSession:
		s, err := h.sessionRepo.GetByID(ctx, subjectID)
		if err != nil {
			return attestation.Subject{}, err
		}
		return attestation.Subject{
			Kind:        kind,
			ID:          s.ID,
			LearnerID:   s.LearnerID,
			MetricKey:   "session:" + s.Topic,
			MetricValue: s.Status.String() + ":" + s.Amount.String(),
			Terminal:    s.Status.IsTerminal(),
		}, nil

	case attestation.SubjectVerifiedImprovement:
		claim, err := h.claimRepo.GetByID(ctx, subjectID)
		if err != nil {
			return attestation.Subject{}, err
		}
		// Verification is irreversible for the claim's snapshot even though
		// the claim itself later moves to rewarded.
		terminal := claim.Status == scholarship.ClaimVerified || claim.Status == scholarship.ClaimRewarded
		return attestation.Subject{
			Kind:        kind,
			ID:          claim.ID,
			LearnerID:   claim.LearnerID,
			MetricKey:   "improvement_percent",
			MetricValue: claim.ImprovementPercent.String(),
			Terminal:    terminal,
		}, nil

	default:
		return attestation.Subject{}, shared.NewDomainError("attestation", "Issue", shared.ErrInvalidInput, "unknown subject kind")
	}
}
