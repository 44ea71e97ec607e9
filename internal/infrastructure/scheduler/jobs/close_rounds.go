package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/olgagaga/web3-learning/internal/application/command"
	"github.com/olgagaga/web3-learning/internal/domain/scholarship"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLOSE ROUNDS JOB
// ══════════════════════════════════════════════════════════════════════════════

// CloseRoundsJob finalizes the open scholarship round once its window ends.
// Matching, reward persistence, and the successor round all happen inside
// the command handler; the job only notices that the window is over.
type CloseRoundsJob struct {
	roundRepo scholarship.RoundRepository
	handler   *command.ScholarshipHandler
	logger    *slog.Logger
}

// NewCloseRoundsJob creates a new CloseRoundsJob.
func NewCloseRoundsJob(
	roundRepo scholarship.RoundRepository,
	handler *command.ScholarshipHandler,
	logger *slog.Logger,
) *CloseRoundsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloseRoundsJob{
		roundRepo: roundRepo,
		handler:   handler,
		logger:    logger,
	}
}

// Name returns the unique name of the job.
func (j *CloseRoundsJob) Name() string {
	return "close_rounds"
}

// Description returns a human-readable description.
func (j *CloseRoundsJob) Description() string {
	return "Finalizes the open scholarship round after its window ends"
}

// Run checks the open round and closes it if the window has ended.
func (j *CloseRoundsJob) Run(ctx context.Context) error {
	now := time.Now().UTC()

	round, err := j.roundRepo.GetOpen(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	if now.Before(round.Window.To) {
		return nil
	}

	result, err := j.handler.CloseRound(ctx, command.CloseRoundCommand{Now: now})
	if err != nil {
		// A concurrent worker closed it first.
		if errors.Is(err, shared.ErrOptimisticLock) || errors.Is(err, shared.ErrRoundClosed) {
			return nil
		}
		return err
	}

	j.logger.Info("scholarship round finalized",
		"round_id", result.RoundID,
		"distributed", result.Distributed.String(),
		"rollover", result.Rollover.String(),
		"rewarded", result.Rewarded,
		"next_round_id", result.NextRoundID,
	)
	return nil
}
