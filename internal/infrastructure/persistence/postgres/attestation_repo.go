package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/olgagaga/web3-learning/internal/domain/attestation"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTESTATION REPOSITORY IMPLEMENTATION
// Attestations are immutable; there is no Update. Liveness is an expiry
// check at query time, so an expired row never blocks re-issuance.
// ══════════════════════════════════════════════════════════════════════════════

const attestationColumns = `
	id, subject_kind, subject_id, learner_id, metric_key, metric_value, terminal,
	payload_hash, signature, issued_at, expires_at
`

// AttestationRepository implements attestation.Repository for PostgreSQL.
type AttestationRepository struct {
	conn *Connection
}

// NewAttestationRepository creates a new AttestationRepository.
func NewAttestationRepository(conn *Connection) *AttestationRepository {
	return &AttestationRepository{conn: conn}
}

// Save persists an issued attestation. The insert is guarded so it only
// lands when no live attestation exists for the same subject; losing the
// race surfaces as ErrAlreadyIssued, same as losing the pre-check.
func (r *AttestationRepository) Save(ctx context.Context, a *attestation.Attestation) error {
	query := `
		INSERT INTO attestations (
			id, subject_kind, subject_id, learner_id, metric_key, metric_value, terminal,
			payload_hash, signature, issued_at, expires_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		WHERE NOT EXISTS (
			SELECT 1 FROM attestations
			WHERE subject_kind = $2 AND subject_id = $3 AND expires_at > $12
		)
	`

	result, err := r.conn.Exec(ctx, query,
		a.ID,
		a.Subject.Kind.String(),
		a.Subject.ID,
		string(a.Subject.LearnerID),
		a.Subject.MetricKey,
		a.Subject.MetricValue,
		a.Subject.Terminal,
		a.PayloadHash,
		a.Signature,
		a.IssuedAt,
		a.ExpiresAt,
		time.Now().UTC(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyIssued
		}
		return fmt.Errorf("failed to save attestation: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrAlreadyIssued
	}

	return nil
}

// GetByID returns an attestation by ID.
func (r *AttestationRepository) GetByID(ctx context.Context, id string) (*attestation.Attestation, error) {
	query := `SELECT ` + attestationColumns + ` FROM attestations WHERE id = $1`

	a, err := scanAttestation(r.conn.QueryRow(ctx, query, id))
	if IsNoRows(err) {
		return nil, shared.ErrAttestationNotFound
	}
	return a, err
}

// GetLiveBySubject returns the unexpired attestation for a subject.
func (r *AttestationRepository) GetLiveBySubject(ctx context.Context, kind attestation.SubjectKind, subjectID string) (*attestation.Attestation, error) {
	query := `
		SELECT ` + attestationColumns + `
		FROM attestations
		WHERE subject_kind = $1 AND subject_id = $2 AND expires_at > $3
		ORDER BY expires_at DESC
		LIMIT 1
	`

	a, err := scanAttestation(r.conn.QueryRow(ctx, query, kind.String(), subjectID, time.Now().UTC()))
	if IsNoRows(err) {
		return nil, shared.ErrAttestationNotFound
	}
	return a, err
}

// ListByLearner returns a learner's attestations, newest first.
func (r *AttestationRepository) ListByLearner(ctx context.Context, learnerID shared.LearnerID, opts attestation.ListOptions) ([]*attestation.Attestation, error) {
	query := `
		SELECT ` + attestationColumns + `
		FROM attestations
		WHERE learner_id = $1
	`
	args := []interface{}{string(learnerID)}

	if opts.Kind != "" {
		query += " AND subject_kind = $2"
		args = append(args, opts.Kind.String())
	}
	query += fmt.Sprintf(" ORDER BY issued_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attestations: %w", err)
	}
	defer rows.Close()

	var attestations []*attestation.Attestation
	for rows.Next() {
		a, err := scanAttestation(rows)
		if err != nil {
			return nil, err
		}
		attestations = append(attestations, a)
	}
	return attestations, rows.Err()
}

func scanAttestation(row pgx.Row) (*attestation.Attestation, error) {
	var a attestation.Attestation
	var kind, learnerID string

	err := row.Scan(
		&a.ID,
		&kind,
		&a.Subject.ID,
		&learnerID,
		&a.Subject.MetricKey,
		&a.Subject.MetricValue,
		&a.Subject.Terminal,
		&a.PayloadHash,
		&a.Signature,
		&a.IssuedAt,
		&a.ExpiresAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan attestation: %w", err)
	}

	a.Subject.Kind = attestation.SubjectKind(kind)
	a.Subject.LearnerID = shared.LearnerID(learnerID)

	return &a, nil
}
