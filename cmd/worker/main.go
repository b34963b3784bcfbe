package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mouldworks/mouldworks/internal/analytics"
	"github.com/mouldworks/mouldworks/internal/app"
	"github.com/mouldworks/mouldworks/internal/inventory"
	jobmetrics "github.com/mouldworks/mouldworks/internal/jobs"
	"github.com/mouldworks/mouldworks/internal/masterdata/machines"
	"github.com/mouldworks/mouldworks/internal/masterdata/moulds"
	"github.com/mouldworks/mouldworks/internal/oee"
	"github.com/mouldworks/mouldworks/internal/platform/cache"
	"github.com/mouldworks/mouldworks/internal/platform/db"
	"github.com/mouldworks/mouldworks/internal/shared"
	"github.com/mouldworks/mouldworks/jobs"
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
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init asynq client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	auditLog := shared.NewAuditLogger(pool)
	idemStore := shared.NewIdempotencyStore(pool)
	metrics := jobmetrics.NewMetrics(nil)

	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLog, idemStore)
	mouldService := moulds.NewService(moulds.NewRepository(pool), auditLog)
	machineService := machines.NewService(machines.NewRepository(pool), auditLog)

	oeeService := oee.NewService(oee.NewRepository(pool), auditLog)
	oeeService.SetMachineService(&oee.MachinesAdapter{Machines: machineService})

	analyticsCache := analytics.NewCache(redisClient, 10*time.Minute)

	lowStockJob := jobs.NewLowStockScanJob(inventoryService, client, cfg.PurchasingEmail, logger, metrics)
	mouldScanJob := jobs.NewMouldMaintenanceScanJob(mouldService, client, cfg.ToolroomEmail, logger, metrics)
	rollupJob := jobs.NewOEERollupJob(oeeService, analyticsCache, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idemStore, logger, metrics)

	lowStockTask, err := jobs.NewLowStockScanTask(jobs.LowStockScanPayload{})
	if err != nil {
		logger.Error("build low stock task", slog.Any("error", err))
		os.Exit(1)
	}
	mouldScanTask, err := jobs.NewMouldMaintenanceScanTask(jobs.MouldMaintenanceScanPayload{})
	if err != nil {
		logger.Error("build mould scan task", slog.Any("error", err))
		os.Exit(1)
	}
	rollupTask, err := jobs.NewOEERollupTask(jobs.OEERollupPayload{})
	if err != nil {
		logger.Error("build oee rollup task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.IdempotencyCleanupPayload{})
	if err != nil {
		logger.Error("build idempotency cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLowStockScan, Handler: lowStockJob.Handle},
			{Type: jobs.TaskMouldMaintenanceScan, Handler: mouldScanJob.Handle},
			{Type: jobs.TaskOEERollup, Handler: rollupJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 6 * * *", Task: lowStockTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 6 * * *", Task: mouldScanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "55 23 * * *", Task: rollupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
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
