package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/restobase/restobase/internal/app"
	"github.com/restobase/restobase/internal/ingredient"
	jobmetrics "github.com/restobase/restobase/internal/jobs"
	"github.com/restobase/restobase/internal/platform/cache"
	"github.com/restobase/restobase/internal/platform/db"
	"github.com/restobase/restobase/internal/recipe"
	"github.com/restobase/restobase/internal/shared"
	"github.com/restobase/restobase/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	ingredientRepo := ingredient.NewRepository(pool)
	ingredientService := ingredient.NewService(ingredientRepo, auditLogger, idempotencyStore)

	availabilityCache := recipe.NewCache(redisClient, cfg.AvailabilityCacheTTL)
	recipeRepo := recipe.NewRepository(pool)
	recipeService := recipe.NewService(recipeRepo, ingredientService, availabilityCache, nil)

	metrics := jobmetrics.NewMetrics(nil)
	deductJob := jobs.NewStockDeductJob(recipeService, logger, metrics)
	warmupJob := jobs.NewAvailabilityWarmupJob(recipeService, recipeRepo, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockDeduct, Handler: deductJob.Handle},
			{Type: jobs.TaskAvailabilityWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WarmupCron, Task: jobs.NewAvailabilityWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
