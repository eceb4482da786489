package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/voyagedesk/voyagedesk/internal/app"
	"github.com/voyagedesk/voyagedesk/internal/audit"
	audithttp "github.com/voyagedesk/voyagedesk/internal/audit/http"
	"github.com/voyagedesk/voyagedesk/internal/auth"
	"github.com/voyagedesk/voyagedesk/internal/authz"
	"github.com/voyagedesk/voyagedesk/internal/delegation"
	"github.com/voyagedesk/voyagedesk/internal/observability"
	"github.com/voyagedesk/voyagedesk/internal/override"
	"github.com/voyagedesk/voyagedesk/internal/platform/cache"
	"github.com/voyagedesk/voyagedesk/internal/platform/db"
	"github.com/voyagedesk/voyagedesk/internal/sessctx"
	"github.com/voyagedesk/voyagedesk/internal/shared"
	"github.com/voyagedesk/voyagedesk/internal/store"
	"github.com/voyagedesk/voyagedesk/internal/users"
	"github.com/voyagedesk/voyagedesk/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Sessions and the stats cache live in Redis; without it nothing works.
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

	sessions := shared.NewSessionStore(redisClient, cfg.SessionTTL)

	authzRepo := authz.NewRepository(pool)
	roles, err := authzRepo.LoadRoles(ctx)
	if err != nil {
		logger.Error("load roles", slog.Any("error", err))
		os.Exit(1)
	}
	catalog, err := authz.NewCatalog(roles)
	if err != nil {
		logger.Error("build role catalog", slog.Any("error", err))
		os.Exit(1)
	}
	if err := catalog.Validate(); err != nil {
		// A cyclic chain must not stop the process: checks on the affected
		// chain fail closed while the rest of the catalog keeps serving.
		logger.Error("role catalog has inconsistencies", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()

	queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()

	auditRepo := audit.NewRepository(pool)
	recorder := audit.NewRecorder(audit.RecorderConfig{
		Sink:    auditRepo,
		Queue:   queue,
		Metrics: metrics,
		Logger:  logger,
	})
	reporter := audit.NewReporter(audit.ReporterConfig{
		Repo:     auditRepo,
		Cache:    redisClient,
		CacheTTL: cfg.StatsCacheTTL,
		Logger:   logger,
	})

	usersService := users.NewService(users.ServiceConfig{
		Repo:    users.NewRepository(pool),
		Catalog: catalog,
		Auditor: recorder,
		Logger:  logger,
	})

	delegationRepo := delegation.NewRepository(pool)
	overrideRepo := override.NewRepository(pool)

	resolver := authz.NewResolver(authz.ResolverConfig{
		Catalog:     catalog,
		Users:       usersService,
		Delegations: delegationRepo,
		Overrides:   overrideRepo,
		Logger:      logger,
	})
	guard := authz.Middleware{Resolver: resolver, Logger: logger, Metrics: metrics}

	delegationService := delegation.NewService(delegation.ServiceConfig{
		Repo:    delegationRepo,
		Catalog: catalog,
		Users:   usersService,
		Checker: resolver,
		Auditor: recorder,
		Logger:  logger,
	})
	overrideService := override.NewService(override.ServiceConfig{
		Repo:    overrideRepo,
		Users:   usersService,
		Checker: resolver,
		Auditor: recorder,
		Metrics: metrics,
		Logger:  logger,
	})
	contextService := sessctx.NewService(sessctx.ServiceConfig{
		Contexts: authzRepo,
		Sessions: sessions,
		Users:    usersService,
		Resolver: resolver,
		Auditor:  recorder,
		Logger:   logger,
	})
	authService := auth.NewService(auth.ServiceConfig{
		Verifier:       usersService,
		Sessions:       sessions,
		Auditor:        recorder,
		DefaultContext: cfg.DefaultContext,
		Logger:         logger,
	})

	records := store.New(store.NewRepository(pool), recorder, store.DefaultConfig())

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:   logger,
		Config:   cfg,
		Sessions: sessions,
		AuthHandler: auth.NewHandler(auth.HandlerConfig{
			Logger:     logger,
			Service:    authService,
			CookieName: cfg.SessionCookieName,
			CookieTTL:  cfg.SessionTTL,
			Secure:     cfg.IsProduction(),
		}),
		AuthzHandler:      authz.NewHandler(logger, resolver),
		UsersHandler:      users.NewHandler(logger, usersService, guard),
		DelegationHandler: delegation.NewHandler(logger, delegationService),
		OverrideHandler:   override.NewHandler(logger, overrideService),
		ContextHandler:    sessctx.NewHandler(logger, contextService, cfg.SessionCookieName),
		AuditHandler:      audithttp.NewHandler(logger, reporter, auditRepo, guard),
		RecordHandler:     store.NewHandler(logger, records, resolver),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
