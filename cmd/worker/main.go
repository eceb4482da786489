package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/voyagedesk/voyagedesk/internal/app"
	"github.com/voyagedesk/voyagedesk/internal/audit"
	"github.com/voyagedesk/voyagedesk/internal/observability"
	"github.com/voyagedesk/voyagedesk/internal/platform/cache"
	"github.com/voyagedesk/voyagedesk/internal/platform/db"
	"github.com/voyagedesk/voyagedesk/jobs"
)

// warmupTimeFrame is the statistics window each tenant warmup precomputes.
const warmupTimeFrame = "30d"

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

	metrics := observability.NewMetrics()
	auditRepo := audit.NewRepository(pool)
	reporter := audit.NewReporter(audit.ReporterConfig{
		Repo:     auditRepo,
		Cache:    redisClient,
		CacheTTL: cfg.StatsCacheTTL,
		Logger:   logger,
	})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditRecord, Handler: jobs.AuditRecordHandler(auditRepo, logger, metrics)},
			{Type: jobs.TaskStatsWarmup, Handler: jobs.StatsWarmupHandler(reporter, logger, metrics)},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	asynqScheduler := asynq.NewScheduler(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, &asynq.SchedulerOpts{Location: time.UTC})
	registry := jobs.NewScheduler(asynqScheduler, logger)
	for _, entry := range cfg.StatsWarmupTenants {
		// Entries are "tenant:framework"; a bare tenant warms SOC2.
		tenantID, framework, ok := strings.Cut(entry, ":")
		if !ok {
			framework = "SOC2"
		}
		task, err := jobs.NewStatsWarmupTask(jobs.StatsWarmupPayload{
			Framework: framework,
			TimeFrame: warmupTimeFrame,
		})
		if err != nil {
			logger.Error("build warmup task", slog.String("tenant_id", tenantID), slog.Any("error", err))
			os.Exit(1)
		}
		if err := registry.Start(tenantID, cfg.StatsWarmupCron, task, asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)); err != nil {
			logger.Error("schedule warmup", slog.String("tenant_id", tenantID), slog.Any("error", err))
			os.Exit(1)
		}
	}
	if len(cfg.StatsWarmupTenants) > 0 {
		if err := asynqScheduler.Start(); err != nil {
			logger.Error("start scheduler", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			registry.StopAll()
			asynqScheduler.Shutdown()
		}()
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
