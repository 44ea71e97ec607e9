package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/olgagaga/web3-learning/internal/domain/scholarship"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHOLARSHIP REPOSITORIES IMPLEMENTATION
// Rounds and claims are versioned aggregates; donations are append-only.
// ══════════════════════════════════════════════════════════════════════════════

const roundColumns = `
	id, status, pool::text, distributed::text, rollover::text,
	window_from, window_to, transition_id,
	created_at, finalized_at, updated_at, version
`

// RoundRepository implements scholarship.RoundRepository for PostgreSQL.
type RoundRepository struct {
	conn *Connection
}

// NewRoundRepository creates a new RoundRepository.
func NewRoundRepository(conn *Connection) *RoundRepository {
	return &RoundRepository{conn: conn}
}

// Create persists a new round. The partial unique index on open rounds
// rejects a second open round no matter who races whom.
func (r *RoundRepository) Create(ctx context.Context, round *scholarship.Round) error {
	query := `
		INSERT INTO scholarship_rounds (
			id, status, pool, distributed, rollover,
			window_from, window_to, transition_id,
			created_at, finalized_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.conn.Exec(ctx, query,
		round.ID,
		string(round.Status),
		round.Pool.String(),
		round.Distributed.String(),
		round.Rollover.String(),
		round.Window.From,
		round.Window.To,
		round.TransitionID,
		round.CreatedAt,
		nullTime(round.FinalizedAt),
		round.UpdatedAt,
		round.Version,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("scholarship", "Create", shared.ErrAlreadyExists, "a round is already open")
		}
		return fmt.Errorf("failed to create round: %w", err)
	}

	return nil
}

// GetByID returns a round by ID.
func (r *RoundRepository) GetByID(ctx context.Context, id string) (*scholarship.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM scholarship_rounds WHERE id = $1`

	round, err := scanRound(r.conn.QueryRow(ctx, query, id))
	if IsNoRows(err) {
		return nil, shared.ErrRoundNotFound
	}
	return round, err
}

// GetOpen returns the currently open round.
func (r *RoundRepository) GetOpen(ctx context.Context) (*scholarship.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM scholarship_rounds WHERE status = 'open'`

	round, err := scanRound(r.conn.QueryRow(ctx, query))
	if IsNoRows(err) {
		return nil, shared.ErrRoundNotFound
	}
	return round, err
}

// Update saves a modified round with a version check-and-set.
func (r *RoundRepository) Update(ctx context.Context, round *scholarship.Round) error {
	query := `
		UPDATE scholarship_rounds SET
			status = $1,
			pool = $2,
			distributed = $3,
			rollover = $4,
			transition_id = $5,
			finalized_at = $6,
			updated_at = $7,
			version = version + 1
		WHERE id = $8 AND version = $9
	`

	result, err := r.conn.Exec(ctx, query,
		string(round.Status),
		round.Pool.String(),
		round.Distributed.String(),
		round.Rollover.String(),
		round.TransitionID,
		nullTime(round.FinalizedAt),
		time.Now().UTC(),
		round.ID,
		round.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update round: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.conn.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM scholarship_rounds WHERE id = $1)", round.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check round existence: %w", err)
		}
		if !exists {
			return shared.ErrRoundNotFound
		}
		return shared.ErrOptimisticLock
	}

	round.Version++
	return nil
}

// ListFinalized returns finalized rounds, newest first.
func (r *RoundRepository) ListFinalized(ctx context.Context, opts scholarship.ListOptions) ([]*scholarship.Round, error) {
	query := `
		SELECT ` + roundColumns + `
		FROM scholarship_rounds
		WHERE status = 'finalized'
		ORDER BY finalized_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.conn.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list finalized rounds: %w", err)
	}
	defer rows.Close()

	var rounds []*scholarship.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, round)
	}
	return rounds, rows.Err()
}

func scanRound(row pgx.Row) (*scholarship.Round, error) {
	var round scholarship.Round
	var status string
	var poolStr, distributedStr, rolloverStr string
	var finalizedAt *time.Time

	err := row.Scan(
		&round.ID,
		&status,
		&poolStr,
		&distributedStr,
		&rolloverStr,
		&round.Window.From,
		&round.Window.To,
		&round.TransitionID,
		&round.CreatedAt,
		&finalizedAt,
		&round.UpdatedAt,
		&round.Version,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan round: %w", err)
	}

	round.Status = scholarship.RoundStatus(status)
	round.FinalizedAt = timeVal(finalizedAt)

	if round.Pool, err = scanAmount(poolStr); err != nil {
		return nil, err
	}
	if round.Distributed, err = scanAmount(distributedStr); err != nil {
		return nil, err
	}
	if round.Rollover, err = scanAmount(rolloverStr); err != nil {
		return nil, err
	}

	return &round, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Claims
// ─────────────────────────────────────────────────────────────────────────────

const claimColumns = `
	id, round_id, learner_id, improvement_percent::text, timeframe_days,
	evidence, status, reward::text, created_at, verified_at, updated_at, version
`

// ClaimRepository implements scholarship.ClaimRepository for PostgreSQL.
type ClaimRepository struct {
	conn *Connection
}

// NewClaimRepository creates a new ClaimRepository.
func NewClaimRepository(conn *Connection) *ClaimRepository {
	return &ClaimRepository{conn: conn}
}

// Create persists a new claim.
func (r *ClaimRepository) Create(ctx context.Context, c *scholarship.Claim) error {
	query := `
		INSERT INTO scholarship_claims (
			id, round_id, learner_id, improvement_percent, timeframe_days,
			evidence, status, reward, created_at, verified_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.conn.Exec(ctx, query,
		c.ID,
		c.RoundID,
		string(c.LearnerID),
		c.ImprovementPercent.String(),
		c.TimeframeDays,
		c.Evidence,
		string(c.Status),
		c.Reward.String(),
		c.CreatedAt,
		nullTime(c.VerifiedAt),
		c.UpdatedAt,
		c.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create claim: %w", err)
	}

	return nil
}

// GetByID returns a claim by ID.
func (r *ClaimRepository) GetByID(ctx context.Context, id string) (*scholarship.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM scholarship_claims WHERE id = $1`

	c, err := scanClaim(r.conn.QueryRow(ctx, query, id))
	if IsNoRows(err) {
		return nil, shared.ErrClaimNotFound
	}
	return c, err
}

// Update saves a modified claim with a version check-and-set.
func (r *ClaimRepository) Update(ctx context.Context, c *scholarship.Claim) error {
	query := `
		UPDATE scholarship_claims SET
			status = $1,
			reward = $2,
			verified_at = $3,
			updated_at = $4,
			version = version + 1
		WHERE id = $5 AND version = $6
	`

	result, err := r.conn.Exec(ctx, query,
		string(c.Status),
		c.Reward.String(),
		nullTime(c.VerifiedAt),
		time.Now().UTC(),
		c.ID,
		c.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.conn.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM scholarship_claims WHERE id = $1)", c.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check claim existence: %w", err)
		}
		if !exists {
			return shared.ErrClaimNotFound
		}
		return shared.ErrOptimisticLock
	}

	c.Version++
	return nil
}

// ListByRound returns claims in a round, optionally filtered by status.
func (r *ClaimRepository) ListByRound(ctx context.Context, roundID string, status scholarship.ClaimStatus) ([]*scholarship.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM scholarship_claims WHERE round_id = $1`
	args := []interface{}{roundID}

	if status != "" {
		query += " AND status = $2"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims by round: %w", err)
	}
	defer rows.Close()

	return scanClaims(rows)
}

// ListByLearner returns a learner's claims, newest first.
func (r *ClaimRepository) ListByLearner(ctx context.Context, learnerID shared.LearnerID, opts scholarship.ListOptions) ([]*scholarship.Claim, error) {
	query := `
		SELECT ` + claimColumns + `
		FROM scholarship_claims
		WHERE learner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.conn.Query(ctx, query, string(learnerID), opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims by learner: %w", err)
	}
	defer rows.Close()

	return scanClaims(rows)
}

func scanClaims(rows pgx.Rows) ([]*scholarship.Claim, error) {
	var claims []*scholarship.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func scanClaim(row pgx.Row) (*scholarship.Claim, error) {
	var c scholarship.Claim
	var learnerID, status string
	var improvementStr, rewardStr string
	var verifiedAt *time.Time

	err := row.Scan(
		&c.ID,
		&c.RoundID,
		&learnerID,
		&improvementStr,
		&c.TimeframeDays,
		&c.Evidence,
		&status,
		&rewardStr,
		&c.CreatedAt,
		&verifiedAt,
		&c.UpdatedAt,
		&c.Version,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan claim: %w", err)
	}

	c.LearnerID = shared.LearnerID(learnerID)
	c.Status = scholarship.ClaimStatus(status)
	c.VerifiedAt = timeVal(verifiedAt)

	improvement, err := scanAmount(improvementStr)
	if err != nil {
		return nil, err
	}
	c.ImprovementPercent = improvement.Decimal()

	if c.Reward, err = scanAmount(rewardStr); err != nil {
		return nil, err
	}

	return &c, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Donations
// ─────────────────────────────────────────────────────────────────────────────

const donationColumns = `
	id, round_id, claim_id, donor_id, amount::text, tx_ref, created_at
`

// DonationRepository implements scholarship.DonationRepository for PostgreSQL.
type DonationRepository struct {
	conn *Connection
}

// NewDonationRepository creates a new DonationRepository.
func NewDonationRepository(conn *Connection) *DonationRepository {
	return &DonationRepository{conn: conn}
}

// Create persists a donation.
func (r *DonationRepository) Create(ctx context.Context, d *scholarship.Donation) error {
	query := `
		INSERT INTO scholarship_donations (
			id, round_id, claim_id, donor_id, amount, tx_ref, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.conn.Exec(ctx, query,
		d.ID,
		d.RoundID,
		d.ClaimID,
		string(d.DonorID),
		d.Amount.String(),
		string(d.TxRef),
		d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create donation: %w", err)
	}

	return nil
}

// ListByRound returns all donations in a round.
func (r *DonationRepository) ListByRound(ctx context.Context, roundID string) ([]*scholarship.Donation, error) {
	return r.list(ctx, "round_id", roundID)
}

// ListByClaim returns donations toward a claim.
func (r *DonationRepository) ListByClaim(ctx context.Context, claimID string) ([]*scholarship.Donation, error) {
	return r.list(ctx, "claim_id", claimID)
}

func (r *DonationRepository) list(ctx context.Context, column, value string) ([]*scholarship.Donation, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM scholarship_donations
		WHERE %s = $1
		ORDER BY created_at ASC
	`, donationColumns, column)

	rows, err := r.conn.Query(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}
	defer rows.Close()

	var donations []*scholarship.Donation
	for rows.Next() {
		var d scholarship.Donation
		var donorID, txRef, amountStr string

		err := rows.Scan(
			&d.ID,
			&d.RoundID,
			&d.ClaimID,
			&donorID,
			&amountStr,
			&txRef,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan donation: %w", err)
		}

		d.DonorID = shared.LearnerID(donorID)
		d.TxRef = shared.TxRef(txRef)
		if d.Amount, err = scanAmount(amountStr); err != nil {
			return nil, err
		}

		donations = append(donations, &d)
	}
	return donations, rows.Err()
}
