package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nurture_backend/internal/alerts"
	"nurture_backend/internal/channels"
	"nurture_backend/internal/events"
	"nurture_backend/internal/leads/engine"
	"nurture_backend/internal/leads/guard"
	"nurture_backend/internal/leads/health"
	"nurture_backend/internal/leads/oracle"
	"nurture_backend/internal/leads/outcome"
	"nurture_backend/internal/leads/repository"
	"nurture_backend/internal/scheduler"
	"nurture_backend/platform/config"
	"nurture_backend/platform/db"
	"nurture_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env,
		"agent_enabled", cfg.Agent.Enabled,
		"dry_run", cfg.Agent.DryRun,
		"rollout_percent", cfg.Agent.RolloutPercent,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
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
	alerts.NewNotifier(cfg, log).Register(eventBus)

	repo := repository.New(pool)

	tasks, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task client", "error", err)
		panic("failed to initialize task client: " + err.Error())
	}
	defer func() { _ = tasks.Close() }()

	decisionOracle, err := oracle.NewGemini(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize decision oracle", "error", err)
		panic("failed to initialize decision oracle: " + err.Error())
	}

	var senderList []channels.Sender
	if sms := channels.NewSMSGateway(cfg, log); sms != nil {
		senderList = append(senderList, sms)
	} else {
		log.Warn("GATEWAY_URL not configured; sms sends disabled")
	}
	if email := channels.NewSMTPSender(cfg); email != nil {
		senderList = append(senderList, email)
	} else {
		log.Warn("SMTP not configured; email sends disabled")
	}
	senders := channels.NewRegistry(senderList...)

	tracker := outcome.NewTracker(repo, tasks, log)
	analyzer := health.NewAnalyzer(health.NewKeywordClassifier())

	eng := engine.New(repo, decisionOracle, senders, tracker,
		analyzer, guard.NewValidator(), eventBus, cfg.Agent, log)

	worker, err := scheduler.NewWorker(cfg, eng, tracker, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	dispatcher := scheduler.NewDispatcher(cfg, eng, repo, tasks, log)
	go dispatcher.Run(ctx)

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
