package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/textile-erp/ledger/internal/accounting/posting"
	"github.com/textile-erp/ledger/internal/app"
	"github.com/textile-erp/ledger/internal/observability"
	"github.com/textile-erp/ledger/internal/platform/cache"
	"github.com/textile-erp/ledger/internal/platform/db"
	"github.com/textile-erp/ledger/internal/shared"
	"github.com/textile-erp/ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	var pool *pgxpool.Pool
	if cfg.LedgerStore == app.StorePostgres {
		pool, err = db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		if err := posting.Migrate(ctx, pool); err != nil {
			logger.Error("migrate ledger schema", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		logger.Warn("worker running against the in-memory store; integrity checks only see this process")
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	registry, err := app.NewLedgerRegistry(ctx, app.LedgerDeps{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Redis:   redisClient,
		Metrics: metrics,
	})
	if err != nil {
		logger.Error("init ledger registry", slog.Any("error", err))
		os.Exit(1)
	}
	defer registry.CloseAll()

	integrityJob := jobs.NewIntegrityJob(registry, cfg.Companies(), redisClient, logger, metrics.Jobs())
	integrityTask, err := jobs.NewIntegrityTask(jobs.IntegrityPayload{})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskLedgerIntegrity, Handler: integrityJob.Handle},
	}
	cron := []jobs.CronRegistration{
		{Spec: cfg.IntegritySchedule, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
	}

	if pool != nil {
		cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), logger, metrics.Jobs())
		cleanupTask, err := jobs.NewIdempotencyCleanupTask(0)
		if err != nil {
			logger.Error("build cleanup task", slog.Any("error", err))
			os.Exit(1)
		}
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle})
		cron = append(cron, jobs.CronRegistration{Spec: "30 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(1)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  handlers,
		Cron:      cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
