package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"outreach_engine_backend/internal/email"
	"outreach_engine_backend/internal/events"
	"outreach_engine_backend/internal/ingestion"
	"outreach_engine_backend/internal/leads"
	"outreach_engine_backend/internal/scheduler"
	"outreach_engine_backend/internal/sequences"
	seqservice "outreach_engine_backend/internal/sequences/service"
	"outreach_engine_backend/platform/config"
	"outreach_engine_backend/platform/db"
	"outreach_engine_backend/platform/fieldcrypt"
	"outreach_engine_backend/platform/logger"
	"outreach_engine_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	codec, err := fieldcrypt.New(cfg.GetFieldEncryptionPassphrase(), cfg.GetFieldEncryptionSalt())
	if err != nil {
		log.Error("failed to initialize field encryption", "error", err)
		panic("failed to initialize field encryption: " + err.Error())
	}

	val := validator.New()

	var sender email.Sender
	if cfg.GetTransportEnabled() {
		sender = email.NewSMTPSender(
			cfg.GetSMTPHost(), cfg.GetSMTPPort(),
			cfg.GetSMTPUsername(), cfg.GetSMTPPassword(),
			cfg.GetSMTPFromAddress(), cfg.GetSMTPFromName(),
			cfg.GetSendTimeout(),
		)
		log.Info("smtp transport initialized", "host", cfg.GetSMTPHost())
	} else {
		log.Warn("transport disabled; due executions will stay queued until enabled")
	}

	// ========================================================================
	// Domain Modules
	// ========================================================================

	leadsModule := leads.NewModule(pool, codec, eventBus, val, log, cfg.GetAbandonmentThreshold())
	ingestionModule := ingestion.NewModule(pool, leadsModule.Service(), cfg, eventBus, val, log)
	sequencesModule := sequences.NewModule(pool, leadsModule.Service(), sender, eventBus, val, log, seqservice.ExecutorConfig{
		MaxAttempts: cfg.GetMaxSendAttempts(),
		BackoffBase: cfg.GetSendBackoffBase(),
		SendTimeout: cfg.GetSendTimeout(),
	})

	entities, lists := leadsModule.Caches()
	go entities.Run(ctx)
	go lists.Run(ctx)
	go sequencesModule.StatsCache().Run(ctx)

	// ========================================================================
	// Background Loops
	// ========================================================================

	if cfg.IsBatchSourceEnabled() {
		source, err := ingestion.NewMinIOSource(cfg)
		if err != nil {
			log.Error("failed to initialize batch source", "error", err)
			panic("failed to initialize batch source: " + err.Error())
		}
		poller := ingestion.NewPoller(source, ingestionModule.Ledger(), ingestionModule.Service(), cfg.GetBatchPollInterval(), log)
		go poller.Run(ctx)
		log.Info("batch source poller started", "bucket", cfg.GetBatchSourceBucket(), "interval", cfg.GetBatchPollInterval())
	} else {
		log.Warn("batch source not configured; file ingestion disabled")
	}

	sweeper := scheduler.NewAbandonmentSweeper(leadsModule.Service(), log, cfg.GetAbandonmentThreshold()/4)
	go sweeper.Run(ctx)

	// Without a transport there is no executor; claiming executions would
	// only queue work nobody can process, so dispatch and the worker stay
	// off and scheduled rows simply wait.
	executor := sequencesModule.Executor()
	if executor == nil {
		<-ctx.Done()
		return
	}

	dispatcher, err := scheduler.NewExecutionDispatcher(cfg, sequencesModule.Repository(), log)
	if err != nil {
		log.Error("failed to initialize execution dispatcher", "error", err)
		panic("failed to initialize execution dispatcher: " + err.Error())
	}
	defer func() { _ = dispatcher.Close() }()
	go dispatcher.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, executor, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
