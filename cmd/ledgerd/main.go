package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/textile-erp/ledger/internal/accounting"
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
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	var (
		dbpool      *pgxpool.Pool
		idempotency accounting.IdempotencyPort
	)
	if cfg.LedgerStore == app.StorePostgres {
		dbpool, err = db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer dbpool.Close()
		if err := posting.Migrate(ctx, dbpool); err != nil {
			logger.Error("migrate ledger schema", slog.Any("error", err))
			os.Exit(1)
		}
		idempotency = shared.NewIdempotencyStore(dbpool)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, balances are served without cache", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()

	registry, err := app.NewLedgerRegistry(ctx, app.LedgerDeps{
		Config:  cfg,
		Logger:  logger,
		Pool:    dbpool,
		Redis:   redisClient,
		Metrics: metrics,
	})
	if err != nil {
		logger.Error("init ledger registry", slog.Any("error", err))
		os.Exit(1)
	}
	defer registry.CloseAll()

	if _, err := registry.Open(ctx, cfg.LedgerCompanyID); err != nil {
		logger.Error("open default company", slog.String("company", cfg.LedgerCompanyID), slog.Any("error", err))
		os.Exit(1)
	}

	accountingHandler := accounting.NewHandler(logger, registry, idempotency, cfg.LedgerCompanyID)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AccountingHandler: accountingHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
		Health:            healthCheck(dbpool, redisClient),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.LedgerStore))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func healthCheck(pool *pgxpool.Pool, redisClient *redis.Client) func(*http.Request) error {
	return func(r *http.Request) error {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				return err
			}
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return err
			}
		}
		return nil
	}
}
