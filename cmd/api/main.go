package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"outreach_engine_backend/internal/events"
	apphttp "outreach_engine_backend/internal/http"
	"outreach_engine_backend/internal/http/router"
	"outreach_engine_backend/internal/ingestion"
	"outreach_engine_backend/internal/leads"
	"outreach_engine_backend/internal/sequences"
	seqservice "outreach_engine_backend/internal/sequences/service"
	"outreach_engine_backend/migrations"
	"outreach_engine_backend/platform/config"
	"outreach_engine_backend/platform/db"
	"outreach_engine_backend/platform/fieldcrypt"
	"outreach_engine_backend/platform/logger"
	"outreach_engine_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)

	codec, err := fieldcrypt.New(cfg.GetFieldEncryptionPassphrase(), cfg.GetFieldEncryptionSalt())
	if err != nil {
		log.Error("failed to initialize field encryption", "error", err)
		panic("failed to initialize field encryption: " + err.Error())
	}

	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	leadsModule := leads.NewModule(pool, codec, eventBus, val, log, cfg.GetAbandonmentThreshold())
	ingestionModule := ingestion.NewModule(pool, leadsModule.Service(), cfg, eventBus, val, log)

	// The API process serves definitions, enrollment, and callbacks; step
	// execution lives in the scheduler process, so no sender is wired here.
	sequencesModule := sequences.NewModule(pool, leadsModule.Service(), nil, eventBus, val, log, seqservice.ExecutorConfig{})

	entities, lists := leadsModule.Caches()
	go entities.Run(ctx)
	go lists.Run(ctx)
	go sequencesModule.StatsCache().Run(ctx)

	if seedFile := cfg.GetSequenceSeedFile(); seedFile != "" {
		if err := sequencesModule.Service().SeedFromFile(ctx, seedFile); err != nil {
			log.Error("failed to seed sequences", "file", seedFile, "error", err)
			panic("failed to seed sequences: " + err.Error())
		}
		log.Info("sequences seeded", "file", seedFile)
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			leadsModule,
			ingestionModule,
			sequencesModule,
		},
	}

	engine := router.New(app, rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
