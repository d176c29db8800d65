package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/consult-case-service/internal/api/http"
	"github.com/spec-kit/consult-case-service/internal/api/http/handlers"
	"github.com/spec-kit/consult-case-service/internal/auth"
	"github.com/spec-kit/consult-case-service/internal/broadcast"
	"github.com/spec-kit/consult-case-service/internal/chat"
	"github.com/spec-kit/consult-case-service/internal/config"
	"github.com/spec-kit/consult-case-service/internal/observability"
	"github.com/spec-kit/consult-case-service/internal/persistence"
	"github.com/spec-kit/consult-case-service/internal/repository"
	"github.com/spec-kit/consult-case-service/internal/service"
	"github.com/spec-kit/consult-case-service/internal/storage"
	"github.com/spec-kit/consult-case-service/internal/worker"
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

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var channel broadcast.Channel
	if cfg.Broadcast.Driver == "memory" {
		channel = broadcast.NewInMemoryChannel()
	} else {
		channel = broadcast.NewRedisChannel(redis.Client, logger)
	}

	objectStore, err := storage.NewLocalStore(cfg.Storage.RootDir, cfg.App.BaseURL, logger)
	if err != nil {
		logger.Fatal("failed to init object store", zap.Error(err))
	}

	pool := pg.PoolHandle()
	caseRepo := repository.NewCaseRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	attachmentRepo := repository.NewAttachmentRepository(pool)
	participantRepo := repository.NewParticipantRepository(pool)
	caseEventRepo := repository.NewCaseEventRepository(pool)

	authService := service.NewAuthService(*cfg, participantRepo)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), participantRepo)

	caseService := service.NewCaseService(service.CaseDependencies{
		CaseRepo:        caseRepo,
		CaseEventRepo:   caseEventRepo,
		ParticipantRepo: participantRepo,
		Channel:         channel,
		Topic:           cfg.Broadcast.Topic,
		Logger:          logger,
	})
	messageService := service.NewMessageService(service.MessageDependencies{
		CaseRepo:       caseRepo,
		MessageRepo:    messageRepo,
		AttachmentRepo: attachmentRepo,
		Channel:        channel,
		Topic:          cfg.Broadcast.Topic,
		Logger:         logger,
	})
	attachmentService := service.NewAttachmentService(objectStore, cfg.Storage.Bucket)

	chatManager := chat.NewManager(chat.ManagerConfig{
		Topic:    cfg.Broadcast.Topic,
		Cases:    caseRepo,
		Messages: messageService,
		Uploads:  attachmentService,
		Channel:  channel,
		Logger:   logger,
	})
	defer chatManager.CloseAll()

	notificationService := service.NewNotificationService(channel, cfg.Broadcast.Topic, logger, cfg.Notification)
	if err := worker.StartNotificationWorker(notificationService); err != nil {
		logger.Warn("notification worker not started", zap.Error(err))
	}
	defer notificationService.Stop()

	metrics := observability.NewMetrics()

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: storage.MaxAttachmentBytes + 1<<20,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	authHandler := handlers.NewAuthHandler(authService)
	casesHandler := handlers.NewCasesHandler(caseService)
	chatHandler := handlers.NewChatHandler(chatManager, caseService, attachmentService)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Auth:           authHandler,
		Cases:          casesHandler,
		Chat:           chatHandler,
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
