package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/olgagaga/web3-learning/internal/domain/progress"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS EVENT STORE IMPLEMENTATION
// Append-only. The unique index on idempotency_key is the authoritative
// duplicate filter; the Redis guard in front of it is only an optimization.
// ══════════════════════════════════════════════════════════════════════════════

const progressEventColumns = `
	id, learner_id, kind, magnitude, source_id, idempotency_key, occurred_at, recorded_at
`

// ProgressEventRepository implements progress.Repository for PostgreSQL.
type ProgressEventRepository struct {
	conn *Connection
}

// NewProgressEventRepository creates a new ProgressEventRepository.
func NewProgressEventRepository(conn *Connection) *ProgressEventRepository {
	return &ProgressEventRepository{conn: conn}
}

// Save persists a progress event.
func (r *ProgressEventRepository) Save(ctx context.Context, e *progress.Event) error {
	query := `
		INSERT INTO progress_events (
			id, learner_id, kind, magnitude, source_id, idempotency_key, occurred_at, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.conn.Exec(ctx, query,
		e.ID,
		string(e.LearnerID),
		string(e.Kind),
		e.Magnitude,
		e.SourceID,
		string(e.IdempotencyKey),
		e.OccurredAt,
		e.RecordedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrDuplicateEvent
		}
		return fmt.Errorf("failed to save progress event: %w", err)
	}

	return nil
}

// GetByID returns an event by its internal ID.
func (r *ProgressEventRepository) GetByID(ctx context.Context, id string) (*progress.Event, error) {
	query := `SELECT ` + progressEventColumns + ` FROM progress_events WHERE id = $1`

	e, err := scanProgressEvent(r.conn.QueryRow(ctx, query, id))
	if IsNoRows(err) {
		return nil, shared.NewDomainError("ingest", "Find", shared.ErrNotFound, "progress event not found")
	}
	return e, err
}

// ExistsByKey checks whether an event with the idempotency key is stored.
func (r *ProgressEventRepository) ExistsByKey(ctx context.Context, key shared.IdempotencyKey) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM progress_events WHERE idempotency_key = $1)",
		string(key),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check event existence: %w", err)
	}
	return exists, nil
}

// ListByLearner returns all events for a learner in a time window, optionally
// filtered by kind.
func (r *ProgressEventRepository) ListByLearner(ctx context.Context, learnerID shared.LearnerID, kind progress.Kind, window shared.TimeRange) ([]*progress.Event, error) {
	query := `
		SELECT ` + progressEventColumns + `
		FROM progress_events
		WHERE learner_id = $1 AND occurred_at >= $2 AND occurred_at < $3
	`
	args := []interface{}{string(learnerID), window.From, window.To}

	if kind != "" {
		query += " AND kind = $4"
		args = append(args, string(kind))
	}
	query += " ORDER BY occurred_at ASC"

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress events: %w", err)
	}
	defer rows.Close()

	var events []*progress.Event
	for rows.Next() {
		e, err := scanProgressEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountByLearner returns the number of events for a learner since the given time.
func (r *ProgressEventRepository) CountByLearner(ctx context.Context, learnerID shared.LearnerID, since time.Time) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM progress_events WHERE learner_id = $1 AND occurred_at >= $2",
		string(learnerID),
		since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count progress events: %w", err)
	}
	return count, nil
}

func scanProgressEvent(row pgx.Row) (*progress.Event, error) {
	var e progress.Event
	var learnerID, kind, key string

	err := row.Scan(
		&e.ID,
		&learnerID,
		&kind,
		&e.Magnitude,
		&e.SourceID,
		&key,
		&e.OccurredAt,
		&e.RecordedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan progress event: %w", err)
	}

	e.LearnerID = shared.LearnerID(learnerID)
	e.Kind = progress.Kind(kind)
	e.IdempotencyKey = shared.IdempotencyKey(key)

	return &e, nil
}
