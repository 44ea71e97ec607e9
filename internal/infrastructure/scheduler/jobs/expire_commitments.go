// Package jobs contains implementations of the engine's scheduled jobs:
// the commitment deadline sweep, the settlement submit-and-poll cycle, and
// the funding round close. Each job wraps an application command handler;
// the scheduler only decides when, never what.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/olgagaga/web3-learning/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE COMMITMENTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ExpireCommitmentsJob sweeps active commitments whose deadline has passed.
// Met targets complete and earn the payout; the rest fail and forfeit their
// stake into the open scholarship round's pool.
type ExpireCommitmentsJob struct {
	handler *command.ExpireCommitmentsHandler
	logger  *slog.Logger
	config  ExpireCommitmentsConfig
}

// ExpireCommitmentsConfig contains configuration for the sweep job.
type ExpireCommitmentsConfig struct {
	// BatchSize limits how many commitments one sweep resolves.
	// Leftovers wait for the next tick.
	BatchSize int
}

// DefaultExpireCommitmentsConfig returns sensible defaults.
func DefaultExpireCommitmentsConfig() ExpireCommitmentsConfig {
	return ExpireCommitmentsConfig{
		BatchSize: 100,
	}
}

// NewExpireCommitmentsJob creates a new ExpireCommitmentsJob.
func NewExpireCommitmentsJob(
	handler *command.ExpireCommitmentsHandler,
	logger *slog.Logger,
	config ExpireCommitmentsConfig,
) *ExpireCommitmentsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	return &ExpireCommitmentsJob{
		handler: handler,
		logger:  logger,
		config:  config,
	}
}

// Name returns the unique name of the job.
func (j *ExpireCommitmentsJob) Name() string {
	return "expire_commitments"
}

// Description returns a human-readable description.
func (j *ExpireCommitmentsJob) Description() string {
	return "Resolves active commitments whose deadline has passed"
}

// Run executes one deadline sweep.
func (j *ExpireCommitmentsJob) Run(ctx context.Context) error {
	result, err := j.handler.Handle(ctx, command.ExpireCommitmentsCommand{
		BatchSize: j.config.BatchSize,
		Now:       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("expire commitments sweep: %w", err)
	}

	if result.Examined > 0 {
		j.logger.Info("commitment sweep finished",
			"examined", result.Examined,
			"completed", result.Completed,
			"failed", result.Failed,
			"errors", len(result.Errors),
		)
	}
	for id, err := range result.Errors {
		j.logger.Error("commitment resolution failed",
			"commitment_id", id,
			"error", err,
		)
	}

	return nil
}
