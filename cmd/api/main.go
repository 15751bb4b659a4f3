package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/dsi-platform/screening-service/internal/analysis"
	httptransport "github.com/dsi-platform/screening-service/internal/api/http"
	"github.com/dsi-platform/screening-service/internal/api/http/handlers"
	"github.com/dsi-platform/screening-service/internal/auth"
	"github.com/dsi-platform/screening-service/internal/config"
	"github.com/dsi-platform/screening-service/internal/events"
	"github.com/dsi-platform/screening-service/internal/observability"
	"github.com/dsi-platform/screening-service/internal/persistence"
	"github.com/dsi-platform/screening-service/internal/repository"
	"github.com/dsi-platform/screening-service/internal/service"
	"github.com/dsi-platform/screening-service/internal/worker"
)

type stores struct {
	cases       repository.CaseRepository
	submissions repository.SubmissionRepository
	directory   repository.AssessorDirectory
	audit       repository.AuditRepository
}

func main() {
	startedAt := time.Now().UTC()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics("screening")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(cfg.Postgres.DSN, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var locker persistence.CaseLocker = persistence.NewLocalLocker()
	if redis != nil {
		locker = persistence.NewRedisLocker(redis.Client, "")
	}

	st := buildStores(pg)
	directory := repository.NewCachedAssessorDirectory(
		st.directory,
		cfg.Cache.AssessorCacheSize,
		cfg.Cache.AssessorCacheTTL(),
		metrics,
	)

	dispatcher := events.NewInMemoryDispatcher(logger)
	service.NewAuditService(dispatcher, st.audit, directory, logger).RegisterHandlers()

	if cfg.Analysis.Endpoint == "" {
		logger.Warn("ML_API_ENDPOINT not set; every case will receive the fallback verdict")
	}
	analyzer := analysis.NewClient(cfg.Analysis, logger, metrics)

	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		Directory:  directory,
		CaseRepo:   st.cases,
		Locker:     locker,
		LockTTL:    cfg.Pipeline.CaseLockTTL(),
		Dispatcher: dispatcher,
	})
	pipeline := service.NewPipelineService(service.PipelineDependencies{
		CaseRepo:   st.cases,
		Analyzer:   analyzer,
		Assignment: assignmentService,
		Locker:     locker,
		LockTTL:    cfg.Pipeline.CaseLockTTL(),
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	queue := worker.NewQueue(pipeline, logger, metrics)

	submissionService := service.NewSubmissionService(service.SubmissionDependencies{
		SubmissionRepo: st.submissions,
		CaseRepo:       st.cases,
		Queue:          queue,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	reviewService := service.NewReviewService(service.ReviewDependencies{
		CaseRepo:       st.cases,
		SubmissionRepo: st.submissions,
		Dispatcher:     dispatcher,
	})
	adminService := service.NewAdminService(service.AdminDependencies{
		CaseRepo:  st.cases,
		AuditRepo: st.audit,
		Directory: directory,
		Queue:     queue,
	})
	authService := service.NewAuthService(cfg.Auth, directory)

	if cfg.Auth.BootstrapAdminUsername != "" {
		admin, created, err := authService.EnsureAdmin(ctx, cfg.Auth.BootstrapAdminUsername, cfg.Auth.BootstrapAdminPassword)
		if err != nil {
			logger.Fatal("failed to bootstrap admin account", zap.Error(err))
		}
		if created {
			logger.Info("bootstrap admin created", zap.String("account_id", admin.ID))
		}
	}

	// Cases created before this process started were either lost with a
	// previous worker or never queued.
	if n, err := submissionService.Reconcile(ctx, startedAt); err != nil {
		logger.Error("startup reconciliation failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("re-enqueued unprocessed cases", zap.Int("count", n))
	}

	go worker.RunPeriodic(ctx, "reconcile", cfg.Pipeline.ReconcileInterval(), logger, func(ctx context.Context) error {
		n, err := submissionService.Reconcile(ctx, time.Now().UTC().Add(-cfg.Pipeline.StaleAfter()))
		if n > 0 {
			logger.Info("re-enqueued stale cases", zap.Int("count", n))
		}
		return err
	})

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env != "development",
		Immutable:             true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Drawings:       handlers.NewDrawingsHandler(submissionService),
		Cases:          handlers.NewCasesHandler(reviewService),
		Admin:          handlers.NewAdminHandler(adminService, assignmentService, authService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), directory),
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout())
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		logger.Warn("worker did not finish in time; unfinished cases will be reconciled on restart", zap.Error(err))
	}
}

func buildStores(pg *persistence.Postgres) stores {
	if !pg.Enabled() {
		mem := repository.NewMemoryStore()
		return stores{
			cases:       mem.Cases(),
			submissions: mem.Submissions(),
			directory:   mem.Assessors(),
			audit:       mem.Audit(),
		}
	}
	return stores{
		cases:       repository.NewCaseRepository(pg.Pool),
		submissions: repository.NewSubmissionRepository(pg.Pool),
		directory:   repository.NewAssessorDirectory(pg.Pool),
		audit:       repository.NewAuditRepository(pg.Pool),
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
