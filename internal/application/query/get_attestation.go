package query

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/olgagaga/web3-learning/internal/domain/attestation"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTESTATION QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// AttestationView is the read model for one issued attestation. Hash and
// signature are hex so consumers can verify offline without extra decoding
// conventions.
type AttestationView struct {
	ID          string    `json:"id"`
	SubjectKind string    `json:"subject_kind"`
	SubjectID   string    `json:"subject_id"`
	LearnerID   string    `json:"learner_id"`
	MetricKey   string    `json:"metric_key"`
	MetricValue string    `json:"metric_value"`
	PayloadHash string    `json:"payload_hash"`
	Signature   string    `json:"signature"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Live        bool      `json:"live"`
}

// GetAttestationQuery identifies one attestation.
type GetAttestationQuery struct {
	AttestationID string
}

// ListAttestationsQuery lists a learner's attestations, newest first.
type ListAttestationsQuery struct {
	LearnerID string
	Kind      string
	Offset    int
	Limit     int
}

// GetAttestationHandler handles attestation read queries.
type GetAttestationHandler struct {
	attestationRepo attestation.Repository
}

// NewGetAttestationHandler creates a new GetAttestationHandler.
func NewGetAttestationHandler(attestationRepo attestation.Repository) *GetAttestationHandler {
	return &GetAttestationHandler{attestationRepo: attestationRepo}
}

// Get returns one attestation view.
func (h *GetAttestationHandler) Get(ctx context.Context, q GetAttestationQuery) (*AttestationView, error) {
	if q.AttestationID == "" {
		return nil, errors.New("get_attestation: attestation_id is required")
	}

	a, err := h.attestationRepo.GetByID(ctx, q.AttestationID)
	if err != nil {
		return nil, fmt.Errorf("get_attestation: %w", err)
	}
	return toAttestationView(a, time.Now().UTC()), nil
}

// List returns a learner's attestations, newest first.
func (h *GetAttestationHandler) List(ctx context.Context, q ListAttestationsQuery) ([]*AttestationView, error) {
	learnerID, err := shared.NewLearnerID(q.LearnerID)
	if err != nil {
		return nil, fmt.Errorf("list_attestations: %w", err)
	}

	opts := attestation.DefaultListOptions()
	if q.Offset > 0 {
		opts.Offset = q.Offset
	}
	if q.Limit > 0 {
		opts.Limit = q.Limit
	}
	opts.Kind = attestation.SubjectKind(q.Kind)

	items, err := h.attestationRepo.ListByLearner(ctx, learnerID, opts)
	if err != nil {
		return nil, fmt.Errorf("list_attestations: %w", err)
	}

	now := time.Now().UTC()
	views := make([]*AttestationView, 0, len(items))
	for _, a := range items {
		views = append(views, toAttestationView(a, now))
	}
	return views, nil
}

func toAttestationView(a *attestation.Attestation, now time.Time) *AttestationView {
	return &AttestationView{
		ID:          a.ID,
		SubjectKind: a.Subject.Kind.String(),
		SubjectID:   a.Subject.ID,
		LearnerID:   string(a.Subject.LearnerID),
		MetricKey:   a.Subject.MetricKey,
		MetricValue: a.Subject.MetricValue,
		PayloadHash: hex.EncodeToString(a.PayloadHash),
		Signature:   hex.EncodeToString(a.Signature),
		IssuedAt:    a.IssuedAt,
		ExpiresAt:   a.ExpiresAt,
		Live:        a.IsLive(now),
	}
}
