// Package main is the entry point of the learning engine service.
//
// The engine runs three surfaces out of one process:
//   - the REST API (progress ingestion, commitments, escrow, scholarships)
//   - the scheduler (deadline sweeps, settlement polling, round closes)
//   - the event pipeline (terminal transition webhooks and attestations)
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olgagaga/web3-learning/config"
	"github.com/olgagaga/web3-learning/internal/application/command"
	"github.com/olgagaga/web3-learning/internal/application/eventhandler"
	"github.com/olgagaga/web3-learning/internal/application/query"
	"github.com/olgagaga/web3-learning/internal/domain/attestation"
	"github.com/olgagaga/web3-learning/internal/domain/badge"
	"github.com/olgagaga/web3-learning/internal/domain/commitment"
	"github.com/olgagaga/web3-learning/internal/domain/scholarship"
	"github.com/olgagaga/web3-learning/internal/infrastructure/external/settlementlayer"
	"github.com/olgagaga/web3-learning/internal/infrastructure/external/webhook"
	"github.com/olgagaga/web3-learning/internal/infrastructure/messaging"
	"github.com/olgagaga/web3-learning/internal/infrastructure/persistence/postgres"
	redisstore "github.com/olgagaga/web3-learning/internal/infrastructure/persistence/redis"
	"github.com/olgagaga/web3-learning/internal/infrastructure/scheduler"
	"github.com/olgagaga/web3-learning/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/olgagaga/web3-learning/internal/interface/http"
	"github.com/olgagaga/web3-learning/internal/interface/http/handlers"
	"github.com/olgagaga/web3-learning/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	policy, err := config.LoadPolicy(cfg.Policy.Path)
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	appLog := logger.New(logger.Options{
		Level: logger.ParseLevel(cfg.Observability.LogLevel),
	})

	log.Info("starting learning engine",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. POSTGRESQL
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Redis.Disabled {
		return errors.New("redis is required: idempotency guards, session locks and webhook dedup live there")
	}

	log.Info("connecting to Redis...")
	redisCfg := redisstore.DefaultConfig()
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	redisCfg.PoolSize = cfg.Redis.PoolSize
	redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
	redisCfg.DialTimeout = cfg.Redis.DialTimeout
	redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
	redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

	cache, err := redisstore.NewCache(redisCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer func() {
		log.Info("closing Redis connection...")
		_ = cache.Close()
	}()
	log.Info("Redis connection established")

	idempotencyGuard := redisstore.NewIdempotencyGuard(cache)
	sessionLock := redisstore.NewSessionLock(cache)
	dedupStore := redisstore.NewDedupStore(cache)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// Redis pub/sub fans events out across instances; each instance skips
	// its own publications and handles the rest on a local in-memory bus.
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	hostname, _ := os.Hostname()
	localBusCfg := messaging.DefaultInMemoryEventBusConfig()
	localBusCfg.Logger = log

	eventBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
		Client:         redisstore.NewPubSubAdapter(cache),
		InstanceID:     hostname,
		LocalBusConfig: localBusCfg,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	progressRepo := postgres.NewProgressEventRepository(dbConn)
	commitmentRepo := postgres.NewCommitmentRepository(dbConn)
	sessionRepo := postgres.NewSessionRepository(dbConn)
	roundRepo := postgres.NewRoundRepository(dbConn)
	claimRepo := postgres.NewClaimRepository(dbConn)
	donationRepo := postgres.NewDonationRepository(dbConn)
	settlementRepo := postgres.NewSettlementRepository(dbConn)
	attestationRepo := postgres.NewAttestationRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ATTESTATION ISSUER
	// ─────────────────────────────────────────────────────────────────────────
	signingKey, err := loadSigningKey(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}
	issuer, err := attestation.NewIssuer(signingKey, cfg.Attestation.Expiry)
	if err != nil {
		return fmt.Errorf("failed to create attestation issuer: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. COMMAND & QUERY HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing handlers...")

	reportProgressHandler := command.NewReportProgressHandler(
		progressRepo, idempotencyGuard, commitmentRepo, settlementRepo, eventBus,
		command.ReportProgressHandlerConfig{
			RewardMultiplier: policy.RewardMultiplier,
			GuardTTL:         24 * time.Hour,
			MaxLockRetries:   3,
		},
	)
	createCommitmentHandler := command.NewCreateCommitmentHandler(
		commitmentRepo, settlementRepo,
		commitment.DurationBounds{Min: policy.MinDuration, Max: policy.MaxDuration},
	)
	claimRewardHandler := command.NewClaimRewardHandler(commitmentRepo)
	expireHandler := command.NewExpireCommitmentsHandler(
		commitmentRepo, settlementRepo, roundRepo, eventBus, policy.RewardMultiplier,
	)
	sessionHandler := command.NewSessionHandler(
		sessionRepo, sessionLock, settlementRepo, eventBus, policy.PlatformFeeRate,
	)
	scholarshipHandler := command.NewScholarshipHandler(
		roundRepo, claimRepo, donationRepo, settlementRepo, eventBus,
		scholarship.EligibilityRules{
			MinImprovementPercent: policy.MinImprovementPercent,
			MinTimeframeDays:      policy.MinTimeframeDays,
		},
		policy.MatchCapFraction,
		0, // round length: handler default
	)
	applyOutcomeHandler := command.NewApplySettlementOutcomeHandler(
		settlementRepo, commitmentRepo, sessionRepo, eventBus,
	)
	retrySettlementHandler := command.NewRetrySettlementHandler(settlementRepo)
	issueAttestationHandler := command.NewIssueAttestationHandler(
		issuer, attestationRepo, commitmentRepo, sessionRepo, claimRepo, eventBus,
	)

	getCommitmentHandler := query.NewGetCommitmentHandler(commitmentRepo)
	getSessionHandler := query.NewGetSessionHandler(sessionRepo)
	getRoundHandler := query.NewGetRoundHandler(roundRepo, claimRepo, donationRepo)
	getSettlementHandler := query.NewGetSettlementHandler(settlementRepo)
	getAttestationHandler := query.NewGetAttestationHandler(attestationRepo)
	getProgressSummaryHandler := query.NewGetProgressSummaryHandler(progressRepo)
	getTimelineHandler := query.NewGetTimelineHandler(progressRepo)
	getBadgesHandler := query.NewGetBadgesHandler(
		badge.DefaultCatalog(), progressRepo, commitmentRepo, sessionRepo, claimRepo,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. TERMINAL TRANSITION PIPELINE
	// ─────────────────────────────────────────────────────────────────────────
	var notifier eventhandler.Notifier
	if cfg.Webhook.URL != "" {
		webhookCfg := webhook.DefaultClientConfig(cfg.Webhook.URL, cfg.Webhook.Secret)
		webhookCfg.Timeout = cfg.Webhook.RequestTimeout
		webhookCfg.MaxAttempts = cfg.Webhook.MaxRetries
		webhookCfg.Logger = log
		notifier = webhook.NewClient(webhookCfg)
	} else {
		log.Warn("WEBHOOK_URL not set, terminal transition notifications are logged only")
		notifier = &logNotifier{log: log}
	}

	terminalHandler := eventhandler.NewOnTerminalTransitionHandler(
		notifier, dedupStore, issueAttestationHandler, appLog,
		eventhandler.TerminalTransitionConfig{
			DedupTTL:          cfg.Webhook.DedupTTL,
			IssueAttestations: cfg.Features.IsEnabled(config.FeatureAttestationIssuance, nil),
		},
	)

	// The dispatcher sits between the bus and application handlers and adds
	// bounded retries with a dead letter queue.
	dispatcherCfg := messaging.DefaultDispatcherConfig(eventBus)
	dispatcherCfg.Logger = log
	dispatcher := messaging.NewDispatcher(dispatcherCfg)
	dispatcher.Use(messaging.RecoveryMiddleware(log))
	dispatcher.Use(messaging.LoggingMiddleware(log))
	if err := terminalHandler.Subscribe(dispatcher); err != nil {
		return fmt.Errorf("failed to subscribe terminal transition handler: %w", err)
	}
	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	defer func() {
		log.Info("stopping dispatcher...")
		_ = dispatcher.Stop()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 10. SETTLEMENT LAYER CLIENT
	// ─────────────────────────────────────────────────────────────────────────
	layerCfg := settlementlayer.DefaultClientConfig(cfg.Settlement.BaseURL)
	layerCfg.APIKey = cfg.Settlement.APIKey
	layerCfg.Timeout = cfg.Settlement.RequestTimeout
	layerCfg.MaxAttempts = cfg.Settlement.MaxRetries
	layerCfg.InitialDelay = cfg.Settlement.RetryBaseDelay
	layerCfg.FailureThreshold = cfg.Settlement.CircuitBreakerThreshold
	layerCfg.BreakerTimeout = cfg.Settlement.CircuitBreakerTimeout
	layerCfg.Logger = log
	layerCfg.Debug = cfg.App.Debug
	layer := settlementlayer.NewClient(layerCfg)

	// ─────────────────────────────────────────────────────────────────────────
	// 11. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		log.Info("initializing scheduler...")
		schedCfg := scheduler.DefaultSchedulerConfig()
		schedCfg.Logger = log
		sched = scheduler.NewScheduler(schedCfg)

		pollJob := jobs.NewSettlementPollJob(settlementRepo, layer, applyOutcomeHandler, log,
			jobs.SettlementPollConfig{
				SubmitBatch:     cfg.Settlement.PollBatchSize,
				PollBatch:       cfg.Settlement.PollBatchSize,
				PollConcurrency: cfg.Settlement.PollConcurrency,
				RequestTimeout:  cfg.Settlement.RequestTimeout,
			})
		closeJob := jobs.NewCloseRoundsJob(roundRepo, scholarshipHandler, log)

		if cfg.Features.IsEnabled(config.FeatureCommitmentAutoExpire, nil) {
			expireJob := jobs.NewExpireCommitmentsJob(expireHandler, log, jobs.ExpireCommitmentsConfig{
				BatchSize: cfg.Scheduler.ExpireBatchSize,
			})
			if err := sched.Register(expireJob, scheduler.NewIntervalSchedule(cfg.Scheduler.ExpireCommitmentsInterval)); err != nil {
				return fmt.Errorf("failed to register expire job: %w", err)
			}
		}
		if err := sched.Register(pollJob, scheduler.NewIntervalSchedule(cfg.Scheduler.SettlementPollInterval)); err != nil {
			return fmt.Errorf("failed to register settlement poll job: %w", err)
		}
		var closeSchedule scheduler.Schedule = scheduler.NewIntervalSchedule(cfg.Scheduler.CloseRoundsInterval)
		if cfg.Scheduler.CloseRoundsCron != "" {
			closeSchedule, err = scheduler.NewCronSchedule(cfg.Scheduler.CloseRoundsCron)
			if err != nil {
				return fmt.Errorf("invalid SCHEDULER_CLOSE_ROUNDS_CRON: %w", err)
			}
		}
		if err := sched.Register(closeJob, closeSchedule); err != nil {
			return fmt.Errorf("failed to register close rounds job: %w", err)
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			log.Info("stopping scheduler...")
			_ = sched.Stop()
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 12. HTTP API
	// ─────────────────────────────────────────────────────────────────────────
	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	healthChecker.AddCheck("database", handlers.NewDatabaseCheck(dbConn))
	healthChecker.AddCheck("cache", handlers.NewCacheCheck(cache))

	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	serverCfg.APIKeys = cfg.HTTP.APIKeys

	server := httpapi.NewServer(serverCfg, httpapi.Dependencies{
		ReportProgressHandler:   reportProgressHandler,
		CreateCommitmentHandler: createCommitmentHandler,
		ClaimRewardHandler:      claimRewardHandler,
		SessionHandler:          sessionHandler,
		ScholarshipHandler:      scholarshipHandler,
		RetrySettlementHandler:  retrySettlementHandler,
		IssueAttestationHandler: issueAttestationHandler,

		GetCommitmentHandler:      getCommitmentHandler,
		GetSessionHandler:         getSessionHandler,
		GetRoundHandler:           getRoundHandler,
		GetSettlementHandler:      getSettlementHandler,
		GetAttestationHandler:     getAttestationHandler,
		GetProgressSummaryHandler: getProgressSummaryHandler,
		GetTimelineHandler:        getTimelineHandler,
		GetBadgesHandler:          getBadgesHandler,

		Logger:        appLog,
		HealthChecker: healthChecker,
	})

	serverErrCh := server.StartAsync()
	log.Info("learning engine is running", "address", server.Address())

	// ─────────────────────────────────────────────────────────────────────────
	// 13. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-serverErrCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// loadSigningKey decodes the configured Ed25519 key. Development runs
// without a key get an ephemeral one, so attestations from those runs do
// not verify after a restart.
func loadSigningKey(cfg *config.Config, log *slog.Logger) (ed25519.PrivateKey, error) {
	if cfg.Attestation.SigningKeyHex == "" {
		if cfg.IsProduction() {
			return nil, errors.New("ATTESTATION_SIGNING_KEY is required in production")
		}
		log.Warn("ATTESTATION_SIGNING_KEY not set, generating an ephemeral key")
		_, key, err := ed25519.GenerateKey(nil)
		if err != nil {
			return nil, err
		}
		return key, nil
	}

	raw, err := hex.DecodeString(cfg.Attestation.SigningKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("expected %d key bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}

// logNotifier is the fallback Notifier when no webhook URL is configured.
type logNotifier struct {
	log *slog.Logger
}

func (n *logNotifier) Notify(_ context.Context, notification eventhandler.Notification) error {
	n.log.Info("terminal transition",
		"transition_id", notification.TransitionID,
		"event_type", notification.EventType,
		"aggregate_id", notification.AggregateID,
	)
	return nil
}

// setupLogger configures the process-wide structured logger.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}
