package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/olgagaga/web3-learning/internal/application/command"
	"github.com/olgagaga/web3-learning/internal/domain/settlement"
	"github.com/olgagaga/web3-learning/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SETTLEMENT POLL JOB
// Two phases per tick: submit pending settlements that have no layer
// reference yet, then poll the layer for outcomes of everything submitted.
// Failures stay pending or park as failed; the job itself never retries a
// rejected settlement.
// ══════════════════════════════════════════════════════════════════════════════

// SettlementPollJob drives the settlement sync cycle.
type SettlementPollJob struct {
	settlementRepo settlement.Repository
	layer          settlement.Layer
	applyHandler   *command.ApplySettlementOutcomeHandler
	logger         *slog.Logger
	config         SettlementPollConfig
}

// SettlementPollConfig contains configuration for the poll job.
type SettlementPollConfig struct {
	// SubmitBatch limits how many unsubmitted settlements one tick sends.
	SubmitBatch int

	// PollBatch limits how many pending settlements one tick polls.
	PollBatch int

	// PollConcurrency bounds parallel status requests to the layer.
	PollConcurrency int

	// RequestTimeout bounds each individual layer call.
	RequestTimeout time.Duration
}

// DefaultSettlementPollConfig returns sensible defaults.
func DefaultSettlementPollConfig() SettlementPollConfig {
	return SettlementPollConfig{
		SubmitBatch:     50,
		PollBatch:       100,
		PollConcurrency: 5,
		RequestTimeout:  10 * time.Second,
	}
}

// NewSettlementPollJob creates a new SettlementPollJob.
func NewSettlementPollJob(
	settlementRepo settlement.Repository,
	layer settlement.Layer,
	applyHandler *command.ApplySettlementOutcomeHandler,
	logger *slog.Logger,
	config SettlementPollConfig,
) *SettlementPollJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.SubmitBatch <= 0 {
		config.SubmitBatch = 50
	}
	if config.PollBatch <= 0 {
		config.PollBatch = 100
	}
	if config.PollConcurrency <= 0 {
		config.PollConcurrency = 5
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}
	return &SettlementPollJob{
		settlementRepo: settlementRepo,
		layer:          layer,
		applyHandler:   applyHandler,
		logger:         logger,
		config:         config,
	}
}

// Name returns the unique name of the job.
func (j *SettlementPollJob) Name() string {
	return "settlement_poll"
}

// Description returns a human-readable description.
func (j *SettlementPollJob) Description() string {
	return "Submits pending settlements to the layer and polls their outcomes"
}

// Run executes one submit-and-poll cycle.
func (j *SettlementPollJob) Run(ctx context.Context) error {
	submitted := j.submitUnsubmitted(ctx)
	polled, applied := j.pollPending(ctx)

	if submitted > 0 || applied > 0 {
		j.logger.Info("settlement cycle finished",
			"submitted", submitted,
			"polled", polled,
			"applied", applied,
		)
	}
	return nil
}

// submitUnsubmitted sends every pending settlement that has no tx ref yet.
// A submit error leaves the settlement untouched; the idempotency key makes
// the next tick's re-submit safe.
func (j *SettlementPollJob) submitUnsubmitted(ctx context.Context) int {
	unsubmitted, err := j.settlementRepo.ListUnsubmitted(ctx, j.config.SubmitBatch)
	if err != nil {
		j.logger.Error("failed to list unsubmitted settlements", "error", err)
		return 0
	}

	submitted := 0
	for _, s := range unsubmitted {
		if ctx.Err() != nil {
			break
		}
		if err := j.submitOne(ctx, s); err != nil {
			j.logger.Warn("settlement submission failed",
				"settlement_id", s.ID,
				"kind", s.Kind.String(),
				"error", err,
			)
			continue
		}
		submitted++
	}
	return submitted
}

func (j *SettlementPollJob) submitOne(ctx context.Context, s *settlement.Settlement) error {
	callCtx, cancel := context.WithTimeout(ctx, j.config.RequestTimeout)
	defer cancel()

	txRef, err := j.layer.Submit(callCtx, settlement.Payload{
		Kind:           s.Kind,
		SubjectID:      s.SubjectID,
		Beneficiary:    s.LearnerID,
		Amount:         s.Amount,
		IdempotencyKey: s.IdempotencyKey,
	})
	if err != nil {
		return err
	}

	if err := s.MarkSubmitted(txRef, time.Now().UTC()); err != nil {
		return err
	}
	if err := j.settlementRepo.Update(ctx, s); err != nil {
		// A concurrent worker submitted first; the layer deduplicated on
		// the idempotency key, so nothing moved twice.
		if errors.Is(err, shared.ErrOptimisticLock) {
			return nil
		}
		return err
	}
	return nil
}

// pollPending asks the layer for the outcome of every submitted settlement
// and feeds conclusive answers to the apply handler.
func (j *SettlementPollJob) pollPending(ctx context.Context) (polled, applied int) {
	pending, err := j.settlementRepo.ListPending(ctx, j.config.PollBatch)
	if err != nil {
		j.logger.Error("failed to list pending settlements", "error", err)
		return 0, 0
	}

	var appliedCount int64
	var mu sync.Mutex

	sem := make(chan struct{}, j.config.PollConcurrency)
	var wg sync.WaitGroup

	for _, s := range pending {
		if !s.IsSubmitted() {
			continue
		}
		polled++

		wg.Add(1)
		sem <- struct{}{}
		go func(s *settlement.Settlement) {
			defer wg.Done()
			defer func() { <-sem }()

			if j.pollOne(ctx, s) {
				mu.Lock()
				appliedCount++
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	return polled, int(appliedCount)
}

func (j *SettlementPollJob) pollOne(ctx context.Context, s *settlement.Settlement) bool {
	callCtx, cancel := context.WithTimeout(ctx, j.config.RequestTimeout)
	defer cancel()

	status, err := j.layer.GetStatus(callCtx, s.TxRef)
	if err != nil {
		j.logger.Warn("settlement status poll failed",
			"settlement_id", s.ID,
			"tx_ref", string(s.TxRef),
			"error", err,
		)
		return false
	}
	if status == settlement.TxPending {
		return false
	}

	reason := ""
	if status == settlement.TxRejected {
		reason = "rejected by settlement layer"
	}

	if err := j.applyHandler.Handle(ctx, command.ApplySettlementOutcomeCommand{
		SettlementID: s.ID,
		Status:       status,
		Reason:       reason,
	}); err != nil {
		j.logger.Error("failed to apply settlement outcome",
			"settlement_id", s.ID,
			"status", string(status),
			"error", err,
		)
		return false
	}
	return status == settlement.TxConfirmed || status == settlement.TxRejected
}
