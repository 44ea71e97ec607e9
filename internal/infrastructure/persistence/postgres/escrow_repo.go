package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/olgagaga/web3-learning/internal/domain/escrow"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ESCROW SESSION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const sessionColumns = `
	id, learner_id, tutor_id, topic, amount::text, status, disposition,
	tutor_payout::text, learner_refund::text, platform_fee::text,
	work_summary, dispute_reason, funds_tx_ref, payout_tx_ref, transition_id,
	created_at, accepted_at, submitted_at, resolved_at, updated_at, version
`

// SessionRepository implements escrow.Repository for PostgreSQL.
type SessionRepository struct {
	conn *Connection
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(conn *Connection) *SessionRepository {
	return &SessionRepository{conn: conn}
}

// Create persists a new session.
func (r *SessionRepository) Create(ctx context.Context, s *escrow.Session) error {
	query := `
		INSERT INTO escrow_sessions (
			id, learner_id, tutor_id, topic, amount, status, disposition,
			tutor_payout, learner_refund, platform_fee,
			work_summary, dispute_reason, funds_tx_ref, payout_tx_ref, transition_id,
			created_at, accepted_at, submitted_at, resolved_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	_, err := r.conn.Exec(ctx, query,
		s.ID,
		string(s.LearnerID),
		string(s.TutorID),
		s.Topic,
		s.Amount.String(),
		s.Status.String(),
		string(s.Disposition),
		s.TutorPayout.String(),
		s.LearnerRefund.String(),
		s.PlatformFee.String(),
		s.WorkSummary,
		s.DisputeReason,
		string(s.FundsTxRef),
		string(s.PayoutTxRef),
		s.TransitionID,
		s.CreatedAt,
		nullTime(s.AcceptedAt),
		nullTime(s.SubmittedAt),
		nullTime(s.ResolvedAt),
		s.UpdatedAt,
		s.Version,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetByID returns a session by ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*escrow.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM escrow_sessions WHERE id = $1`

	s, err := scanSession(r.conn.QueryRow(ctx, query, id))
	if IsNoRows(err) {
		return nil, shared.ErrSessionNotFound
	}
	return s, err
}

// Update saves a modified session with a version check-and-set.
func (r *SessionRepository) Update(ctx context.Context, s *escrow.Session) error {
	query := `
		UPDATE escrow_sessions SET
			tutor_id = $1,
			status = $2,
			disposition = $3,
			tutor_payout = $4,
			learner_refund = $5,
			platform_fee = $6,
			work_summary = $7,
			dispute_reason = $8,
			funds_tx_ref = $9,
			payout_tx_ref = $10,
			transition_id = $11,
			accepted_at = $12,
			submitted_at = $13,
			resolved_at = $14,
			updated_at = $15,
			version = version + 1
		WHERE id = $16 AND version = $17
	`

	result, err := r.conn.Exec(ctx, query,
		string(s.TutorID),
		s.Status.String(),
		string(s.Disposition),
		s.TutorPayout.String(),
		s.LearnerRefund.String(),
		s.PlatformFee.String(),
		s.WorkSummary,
		s.DisputeReason,
		string(s.FundsTxRef),
		string(s.PayoutTxRef),
		s.TransitionID,
		nullTime(s.AcceptedAt),
		nullTime(s.SubmittedAt),
		nullTime(s.ResolvedAt),
		time.Now().UTC(),
		s.ID,
		s.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.conn.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM escrow_sessions WHERE id = $1)", s.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check session existence: %w", err)
		}
		if !exists {
			return shared.ErrSessionNotFound
		}
		return shared.ErrOptimisticLock
	}

	s.Version++
	return nil
}

// ListByLearner returns sessions where the learner is the payer.
func (r *SessionRepository) ListByLearner(ctx context.Context, learnerID shared.LearnerID, opts escrow.ListOptions) ([]*escrow.Session, error) {
	return r.list(ctx, "learner_id", string(learnerID), opts)
}

// ListByTutor returns sessions where the learner is the tutor.
func (r *SessionRepository) ListByTutor(ctx context.Context, tutorID shared.LearnerID, opts escrow.ListOptions) ([]*escrow.Session, error) {
	return r.list(ctx, "tutor_id", string(tutorID), opts)
}

// ListByStatus returns sessions in the given state.
func (r *SessionRepository) ListByStatus(ctx context.Context, status escrow.Status, opts escrow.ListOptions) ([]*escrow.Session, error) {
	return r.list(ctx, "status", status.String(), opts)
}

func (r *SessionRepository) list(ctx context.Context, column, value string, opts escrow.ListOptions) ([]*escrow.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM escrow_sessions
		WHERE %s = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, sessionColumns, column)

	rows, err := r.conn.Query(ctx, query, value, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*escrow.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (*escrow.Session, error) {
	var s escrow.Session
	var learnerID, tutorID, status, disposition string
	var amountStr, payoutStr, refundStr, feeStr string
	var fundsTxRef, payoutTxRef string
	var acceptedAt, submittedAt, resolvedAt *time.Time

	err := row.Scan(
		&s.ID,
		&learnerID,
		&tutorID,
		&s.Topic,
		&amountStr,
		&status,
		&disposition,
		&payoutStr,
		&refundStr,
		&feeStr,
		&s.WorkSummary,
		&s.DisputeReason,
		&fundsTxRef,
		&payoutTxRef,
		&s.TransitionID,
		&s.CreatedAt,
		&acceptedAt,
		&submittedAt,
		&resolvedAt,
		&s.UpdatedAt,
		&s.Version,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	s.LearnerID = shared.LearnerID(learnerID)
	s.TutorID = shared.LearnerID(tutorID)
	s.Status = escrow.Status(status)
	s.Disposition = escrow.Disposition(disposition)
	s.FundsTxRef = shared.TxRef(fundsTxRef)
	s.PayoutTxRef = shared.TxRef(payoutTxRef)
	s.AcceptedAt = timeVal(acceptedAt)
	s.SubmittedAt = timeVal(submittedAt)
	s.ResolvedAt = timeVal(resolvedAt)

	if s.Amount, err = scanAmount(amountStr); err != nil {
		return nil, err
	}
	if s.TutorPayout, err = scanAmount(payoutStr); err != nil {
		return nil, err
	}
	if s.LearnerRefund, err = scanAmount(refundStr); err != nil {
		return nil, err
	}
	if s.PlatformFee, err = scanAmount(feeStr); err != nil {
		return nil, err
	}

	return &s, nil
}
