package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/olgagaga/web3-learning/internal/domain/commitment"
	"github.com/olgagaga/web3-learning/internal/domain/progress"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMITMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const commitmentColumns = `
	id, learner_id, goal_type, event_kind, target, progress,
	stake::text, payout::text, status, deadline,
	stake_tx_ref, payout_tx_ref, transition_id,
	created_at, activated_at, resolved_at, claimed_at, updated_at, version
`

// CommitmentRepository implements commitment.Repository for PostgreSQL.
type CommitmentRepository struct {
	conn *Connection
}

// NewCommitmentRepository creates a new CommitmentRepository.
func NewCommitmentRepository(conn *Connection) *CommitmentRepository {
	return &CommitmentRepository{conn: conn}
}

// Create persists a new commitment.
func (r *CommitmentRepository) Create(ctx context.Context, c *commitment.Commitment) error {
	query := `
		INSERT INTO commitments (
			id, learner_id, goal_type, event_kind, target, progress,
			stake, payout, status, deadline,
			stake_tx_ref, payout_tx_ref, transition_id,
			created_at, activated_at, resolved_at, claimed_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err := r.conn.Exec(ctx, query,
		c.ID,
		string(c.LearnerID),
		string(c.GoalType),
		string(c.EventKind),
		c.Target,
		c.Progress,
		c.Stake.String(),
		c.Payout.String(),
		string(c.Status),
		c.Deadline,
		string(c.StakeTxRef),
		string(c.PayoutTxRef),
		c.TransitionID,
		c.CreatedAt,
		nullTime(c.ActivatedAt),
		nullTime(c.ResolvedAt),
		nullTime(c.ClaimedAt),
		c.UpdatedAt,
		c.Version,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrDuplicateActiveGoal
		}
		return fmt.Errorf("failed to create commitment: %w", err)
	}

	return nil
}

// GetByID returns a commitment by ID.
func (r *CommitmentRepository) GetByID(ctx context.Context, id string) (*commitment.Commitment, error) {
	query := `SELECT ` + commitmentColumns + ` FROM commitments WHERE id = $1`

	return r.scanCommitment(r.conn.QueryRow(ctx, query, id))
}

// Update saves a modified commitment with a version check-and-set.
func (r *CommitmentRepository) Update(ctx context.Context, c *commitment.Commitment) error {
	query := `
		UPDATE commitments SET
			progress = $1,
			payout = $2,
			status = $3,
			stake_tx_ref = $4,
			payout_tx_ref = $5,
			transition_id = $6,
			activated_at = $7,
			resolved_at = $8,
			claimed_at = $9,
			updated_at = $10,
			version = version + 1
		WHERE id = $11 AND version = $12
	`

	result, err := r.conn.Exec(ctx, query,
		c.Progress,
		c.Payout.String(),
		string(c.Status),
		string(c.StakeTxRef),
		string(c.PayoutTxRef),
		c.TransitionID,
		nullTime(c.ActivatedAt),
		nullTime(c.ResolvedAt),
		nullTime(c.ClaimedAt),
		time.Now().UTC(),
		c.ID,
		c.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update commitment: %w", err)
	}

	if result.RowsAffected() == 0 {
		exists, err := r.exists(ctx, c.ID)
		if err != nil {
			return err
		}
		if !exists {
			return shared.ErrCommitmentNotFound
		}
		return shared.ErrOptimisticLock
	}

	c.Version++
	return nil
}

// ListByLearner returns the learner's commitments, newest first.
func (r *CommitmentRepository) ListByLearner(ctx context.Context, learnerID shared.LearnerID, opts commitment.ListOptions) ([]*commitment.Commitment, error) {
	query := `
		SELECT ` + commitmentColumns + `
		FROM commitments
		WHERE learner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.conn.Query(ctx, query, string(learnerID), opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list commitments by learner: %w", err)
	}
	defer rows.Close()

	return r.scanCommitments(rows)
}

// ListByStatus returns commitments in the given state.
func (r *CommitmentRepository) ListByStatus(ctx context.Context, status commitment.Status, opts commitment.ListOptions) ([]*commitment.Commitment, error) {
	query := `
		SELECT ` + commitmentColumns + `
		FROM commitments
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.conn.Query(ctx, query, string(status), opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list commitments by status: %w", err)
	}
	defer rows.Close()

	return r.scanCommitments(rows)
}

// ListExpired returns active commitments whose deadline passed before now.
func (r *CommitmentRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*commitment.Commitment, error) {
	query := `
		SELECT ` + commitmentColumns + `
		FROM commitments
		WHERE status = 'active' AND deadline < $1
		ORDER BY deadline ASC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired commitments: %w", err)
	}
	defer rows.Close()

	return r.scanCommitments(rows)
}

// ListActiveByLearnerKind returns pending and active commitments that count
// the given event kind.
func (r *CommitmentRepository) ListActiveByLearnerKind(ctx context.Context, learnerID shared.LearnerID, eventKind string) ([]*commitment.Commitment, error) {
	query := `
		SELECT ` + commitmentColumns + `
		FROM commitments
		WHERE learner_id = $1 AND event_kind = $2 AND status IN ('pending', 'active')
		ORDER BY created_at ASC
	`

	rows, err := r.conn.Query(ctx, query, string(learnerID), eventKind)
	if err != nil {
		return nil, fmt.Errorf("failed to list active commitments: %w", err)
	}
	defer rows.Close()

	return r.scanCommitments(rows)
}

// HasOpenGoal checks for a pending or active commitment of the goal type.
func (r *CommitmentRepository) HasOpenGoal(ctx context.Context, learnerID shared.LearnerID, goalType commitment.GoalType) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM commitments
			WHERE learner_id = $1 AND goal_type = $2 AND status IN ('pending', 'active')
		)`,
		string(learnerID),
		string(goalType),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check open goal: %w", err)
	}
	return exists, nil
}

// Count returns the number of commitments per status.
func (r *CommitmentRepository) Count(ctx context.Context, status commitment.Status) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM commitments WHERE status = $1",
		string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count commitments: %w", err)
	}
	return count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func (r *CommitmentRepository) exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM commitments WHERE id = $1)", id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check commitment existence: %w", err)
	}
	return exists, nil
}

func (r *CommitmentRepository) scanCommitment(row pgx.Row) (*commitment.Commitment, error) {
	c, err := scanCommitmentFrom(row)
	if IsNoRows(err) {
		return nil, shared.ErrCommitmentNotFound
	}
	return c, err
}

func (r *CommitmentRepository) scanCommitments(rows pgx.Rows) ([]*commitment.Commitment, error) {
	var commitments []*commitment.Commitment
	for rows.Next() {
		c, err := scanCommitmentFrom(rows)
		if err != nil {
			return nil, err
		}
		commitments = append(commitments, c)
	}
	return commitments, rows.Err()
}

func scanCommitmentFrom(row pgx.Row) (*commitment.Commitment, error) {
	var c commitment.Commitment
	var learnerID, goalType, eventKind, status string
	var stakeStr, payoutStr string
	var stakeTxRef, payoutTxRef string
	var activatedAt, resolvedAt, claimedAt *time.Time

	err := row.Scan(
		&c.ID,
		&learnerID,
		&goalType,
		&eventKind,
		&c.Target,
		&c.Progress,
		&stakeStr,
		&payoutStr,
		&status,
		&c.Deadline,
		&stakeTxRef,
		&payoutTxRef,
		&c.TransitionID,
		&c.CreatedAt,
		&activatedAt,
		&resolvedAt,
		&claimedAt,
		&c.UpdatedAt,
		&c.Version,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan commitment: %w", err)
	}

	c.LearnerID = shared.LearnerID(learnerID)
	c.GoalType = commitment.GoalType(goalType)
	c.EventKind = progress.Kind(eventKind)
	c.Status = commitment.Status(status)
	c.StakeTxRef = shared.TxRef(stakeTxRef)
	c.PayoutTxRef = shared.TxRef(payoutTxRef)
	c.ActivatedAt = timeVal(activatedAt)
	c.ResolvedAt = timeVal(resolvedAt)
	c.ClaimedAt = timeVal(claimedAt)

	if c.Stake, err = scanAmount(stakeStr); err != nil {
		return nil, err
	}
	if c.Payout, err = scanAmount(payoutStr); err != nil {
		return nil, err
	}

	return &c, nil
}
