package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/olgagaga/web3-learning/internal/domain/settlement"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SETTLEMENT REPOSITORY IMPLEMENTATION
// The unique index on idempotency_key rejects double-tracking of the same
// movement at the storage layer.
// ══════════════════════════════════════════════════════════════════════════════

const settlementColumns = `
	id, kind, subject_id, learner_id, amount::text, idempotency_key,
	tx_ref, status, attempts, last_error,
	created_at, submitted_at, resolved_at, updated_at, version
`

// SettlementRepository implements settlement.Repository for PostgreSQL.
type SettlementRepository struct {
	conn *Connection
}

// NewSettlementRepository creates a new SettlementRepository.
func NewSettlementRepository(conn *Connection) *SettlementRepository {
	return &SettlementRepository{conn: conn}
}

// Create persists a new settlement record.
func (r *SettlementRepository) Create(ctx context.Context, s *settlement.Settlement) error {
	query := `
		INSERT INTO settlements (
			id, kind, subject_id, learner_id, amount, idempotency_key,
			tx_ref, status, attempts, last_error,
			created_at, submitted_at, resolved_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.conn.Exec(ctx, query,
		s.ID,
		s.Kind.String(),
		s.SubjectID,
		string(s.LearnerID),
		s.Amount.String(),
		string(s.IdempotencyKey),
		string(s.TxRef),
		s.Status.String(),
		s.Attempts,
		s.LastError,
		s.CreatedAt,
		nullTime(s.SubmittedAt),
		nullTime(s.ResolvedAt),
		s.UpdatedAt,
		s.Version,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create settlement: %w", err)
	}

	return nil
}

// GetByID returns a settlement by ID.
func (r *SettlementRepository) GetByID(ctx context.Context, id string) (*settlement.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE id = $1`

	s, err := scanSettlement(r.conn.QueryRow(ctx, query, id))
	if IsNoRows(err) {
		return nil, shared.ErrSettlementNotFound
	}
	return s, err
}

// GetByKey returns a settlement by idempotency key.
func (r *SettlementRepository) GetByKey(ctx context.Context, key shared.IdempotencyKey) (*settlement.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE idempotency_key = $1`

	s, err := scanSettlement(r.conn.QueryRow(ctx, query, string(key)))
	if IsNoRows(err) {
		return nil, shared.ErrSettlementNotFound
	}
	return s, err
}

// Update saves a modified settlement with a version check-and-set.
func (r *SettlementRepository) Update(ctx context.Context, s *settlement.Settlement) error {
	query := `
		UPDATE settlements SET
			tx_ref = $1,
			status = $2,
			attempts = $3,
			last_error = $4,
			submitted_at = $5,
			resolved_at = $6,
			updated_at = $7,
			version = version + 1
		WHERE id = $8 AND version = $9
	`

	result, err := r.conn.Exec(ctx, query,
		string(s.TxRef),
		s.Status.String(),
		s.Attempts,
		s.LastError,
		nullTime(s.SubmittedAt),
		nullTime(s.ResolvedAt),
		time.Now().UTC(),
		s.ID,
		s.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update settlement: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.conn.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM settlements WHERE id = $1)", s.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check settlement existence: %w", err)
		}
		if !exists {
			return shared.ErrSettlementNotFound
		}
		return shared.ErrOptimisticLock
	}

	s.Version++
	return nil
}

// ListPending returns pending settlements, oldest first.
func (r *SettlementRepository) ListPending(ctx context.Context, limit int) ([]*settlement.Settlement, error) {
	query := `
		SELECT ` + settlementColumns + `
		FROM settlements
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`
	return r.listQuery(ctx, query, limit)
}

// ListUnsubmitted returns pending settlements that have no tx ref yet.
func (r *SettlementRepository) ListUnsubmitted(ctx context.Context, limit int) ([]*settlement.Settlement, error) {
	query := `
		SELECT ` + settlementColumns + `
		FROM settlements
		WHERE status = 'pending' AND tx_ref = ''
		ORDER BY created_at ASC
		LIMIT $1
	`
	return r.listQuery(ctx, query, limit)
}

// ListFailed returns failed settlements awaiting an explicit retry.
func (r *SettlementRepository) ListFailed(ctx context.Context, limit int) ([]*settlement.Settlement, error) {
	query := `
		SELECT ` + settlementColumns + `
		FROM settlements
		WHERE status = 'failed'
		ORDER BY resolved_at ASC
		LIMIT $1
	`
	return r.listQuery(ctx, query, limit)
}

// CountByStatus returns the number of settlements per status.
func (r *SettlementRepository) CountByStatus(ctx context.Context, status settlement.Status) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM settlements WHERE status = $1",
		status.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count settlements: %w", err)
	}
	return count, nil
}

func (r *SettlementRepository) listQuery(ctx context.Context, query string, limit int) ([]*settlement.Settlement, error) {
	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []*settlement.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, s)
	}
	return settlements, rows.Err()
}

func scanSettlement(row pgx.Row) (*settlement.Settlement, error) {
	var s settlement.Settlement
	var kind, learnerID, key, txRef, status string
	var amountStr string
	var submittedAt, resolvedAt *time.Time

	err := row.Scan(
		&s.ID,
		&kind,
		&s.SubjectID,
		&learnerID,
		&amountStr,
		&key,
		&txRef,
		&status,
		&s.Attempts,
		&s.LastError,
		&s.CreatedAt,
		&submittedAt,
		&resolvedAt,
		&s.UpdatedAt,
		&s.Version,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan settlement: %w", err)
	}

	s.Kind = settlement.Kind(kind)
	s.LearnerID = shared.LearnerID(learnerID)
	s.IdempotencyKey = shared.IdempotencyKey(key)
	s.TxRef = shared.TxRef(txRef)
	s.Status = settlement.Status(status)
	s.SubmittedAt = timeVal(submittedAt)
	s.ResolvedAt = timeVal(resolvedAt)

	if s.Amount, err = scanAmount(amountStr); err != nil {
		return nil, err
	}

	return &s, nil
}
