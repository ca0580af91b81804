package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/grievance-portal/internal/api/http"
	"github.com/spec-kit/grievance-portal/internal/api/http/handlers"
	"github.com/spec-kit/grievance-portal/internal/auth"
	"github.com/spec-kit/grievance-portal/internal/config"
	"github.com/spec-kit/grievance-portal/internal/events"
	"github.com/spec-kit/grievance-portal/internal/notify"
	"github.com/spec-kit/grievance-portal/internal/observability"
	"github.com/spec-kit/grievance-portal/internal/persistence"
	"github.com/spec-kit/grievance-portal/internal/registration"
	"github.com/spec-kit/grievance-portal/internal/repository"
	"github.com/spec-kit/grievance-portal/internal/service"
	"github.com/spec-kit/grievance-portal/internal/storage"
	"github.com/spec-kit/grievance-portal/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis, err := persistence.NewRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	grievanceRepo := repository.NewGrievanceRepository(pool)
	responseRepo := repository.NewResponseRepository(pool)
	correspondenceRepo := repository.NewCorrespondenceRepository(pool)
	resetRepo := repository.NewPasswordResetRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	transport := notify.NewRelayTransport(cfg.Notifier, logger)
	notifier := notify.NewEmailDispatcher(transport, notify.DefaultRetryPolicy(), cfg.Notifier.FromAddress, logger, metrics)

	pendingStore := registration.NewStore(registration.NewRedisBackend(redis.Client), userRepo, notifier, logger)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:          userRepo,
		PendingStore:      pendingStore,
		PasswordResetRepo: resetRepo,
		Notifier:          notifier,
		Dispatcher:        dispatcher,
	})
	grievanceService := service.NewGrievanceService(service.GrievanceDependencies{
		GrievanceRepo: grievanceRepo,
		ResponseRepo:  responseRepo,
		UserRepo:      userRepo,
		Notifier:      notifier,
		Dispatcher:    dispatcher,
		AdminAddress:  cfg.Notifier.AdminAddress,
		Logger:        logger,
		Metrics:       metrics,
	})
	correspondenceService := service.NewCorrespondenceService(service.CorrespondenceDependencies{
		InboxRepo:    correspondenceRepo,
		GrievanceSvc: grievanceService,
		Notifier:     notifier,
		Dispatcher:   dispatcher,
		SelfAddress:  cfg.Notifier.FromAddress,
		Logger:       logger,
	})

	activityLog := service.NewActivityLogService(dispatcher, logger)
	activityLog.RegisterHandlers()

	attachmentStore, err := storage.NewLocalStore(cfg.Attachments.Dir, cfg.Attachments.BaseURL)
	if err != nil {
		logger.Fatal("failed to init attachment store", zap.Error(err))
	}

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	app.Static(cfg.Attachments.BaseURL, cfg.Attachments.Dir)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService, cfg.Registration.AllowedEmailDomain),
		Grievances:     handlers.NewGrievancesHandler(grievanceService),
		Inbox:          handlers.NewInboxHandler(correspondenceService),
		Attachments:    handlers.NewAttachmentsHandler(attachmentStore),
		AuthMiddleware: authMiddleware,
	})

	var poller *worker.InboundPoller
	if cfg.MailPoller.Enabled && cfg.MailPoller.InboxURL != "" {
		poller = worker.NewInboundPoller(
			worker.NewHTTPMailSource(cfg.MailPoller.InboxURL),
			correspondenceService,
			cfg.MailPoller.Interval(),
			logger,
		)
		poller.Start(ctx)
		logger.Info("inbound mail poller started", zap.Duration("interval", cfg.MailPoller.Interval()))
	}

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if poller != nil {
		poller.Stop()
	}
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
