package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"foco/internal/api"
	"foco/internal/config"
	"foco/internal/i18n"
	"foco/internal/llm"
	"foco/internal/repository"
	"foco/internal/service"
	"foco/internal/storage"
	"foco/pkg/db"
	"foco/pkg/logger"
	"foco/pkg/mq"
	"foco/pkg/otel"
	"foco/pkg/outbox"
	redisclient "foco/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Log.Level)
	defer log.Sync()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Info("Starting foco server...",
		zap.String("port", cfg.Server.Port),
		zap.String("db_host", cfg.DB.Host),
		zap.String("mq_url", cfg.MQ.URL),
	)

	shutdownOtel, err := otel.Init(otel.Config{
		ServiceName:    "foco-server",
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.Otel.Endpoint,
		Enabled:        cfg.Otel.Enabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownOtel()

	// DB
	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer pool.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), time.Minute)
	if err := db.Migrate(migrateCtx, pool, log); err != nil {
		migrateCancel()
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	migrateCancel()

	// Redis
	rdb, err := redisclient.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal("Failed to init Redis", zap.Error(err))
	}
	defer rdb.Close()

	// MQ publisher，outbox dispatcher 使用
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	tr, err := i18n.New(cfg.I18n.DefaultLocale)
	if err != nil {
		log.Fatal("Failed to init translator", zap.Error(err))
	}

	store, err := storage.NewLocal(cfg.Storage.Root)
	if err != nil {
		log.Fatal("Failed to init storage", zap.Error(err))
	}

	// Repositories
	userRepo := repository.NewUserRepository(pool, log)
	orgRepo := repository.NewOrganizationRepository(pool, log)
	projectRepo := repository.NewProjectRepository(pool, log)
	milestoneRepo := repository.NewMilestoneRepository(pool, log)
	taskRepo := repository.NewTaskRepository(pool, log)
	entryRepo := repository.NewTimeEntryRepository(pool, log)
	commentRepo := repository.NewCommentRepository(pool, log)
	notificationRepo := repository.NewNotificationRepository(pool, log)
	attachmentRepo := repository.NewAttachmentRepository(pool, log)
	goalRepo := repository.NewGoalRepository(pool, log)
	policyRepo := repository.NewAIPolicyRepository(pool, log)
	outboxRepo := outbox.NewRepository(pool)

	// Services
	authSvc := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWTTTL(), log)
	orgSvc := service.NewOrganizationService(pool, orgRepo, log)
	projectSvc := service.NewProjectService(orgSvc, projectRepo, log)
	milestoneSvc := service.NewMilestoneService(projectSvc, milestoneRepo, log)
	taskSvc := service.NewTaskService(pool, projectSvc, taskRepo, projectRepo, milestoneRepo, outboxRepo, log)
	timeSvc := service.NewTimeTrackingService(pool, projectSvc, entryRepo, taskRepo, log)
	entities := service.NewEntityResolver(projectSvc, taskRepo, milestoneRepo)
	commentSvc := service.NewCommentService(pool, entities, commentRepo, userRepo, outboxRepo, log)
	notificationSvc := service.NewNotificationService(pool, notificationRepo, service.NewUnreadCache(rdb, cfg.Cache.UnreadTTL()), outboxRepo, log)
	uploadSvc := service.NewFileUploadService(pool, entities, attachmentRepo, store, outboxRepo, service.UploadLimits{
		MaxBytes:     cfg.MaxUploadBytes(),
		AllowedTypes: cfg.Upload.AllowedTypes,
	}, log)
	uploadQueue := service.NewUploadQueue(cfg.Upload.Concurrency, cfg.UploadJobRetention(), log)
	analyticsSvc := service.NewAnalyticsService(orgSvc, projectSvc, projectRepo, taskRepo, entryRepo, goalRepo,
		service.NewAnalyticsCache(rdb, cfg.Cache.AnalyticsTTL()), log)
	calendarSvc := service.NewCalendarService(orgSvc, projectRepo, milestoneRepo, taskRepo, entryRepo, log)
	goalSvc := service.NewGoalService(orgSvc, projectRepo, goalRepo, log)
	policySvc := service.NewAIPolicyService(pool, orgSvc, policyRepo, outboxRepo, log)
	voiceSvc := service.NewVoiceService(
		llm.NewClient(cfg.LLM, log),
		service.NewServiceVoiceActions(projectSvc, taskSvc, timeSvc),
		policySvc,
		tr,
		service.VoiceOptions{
			IdleTTL:       cfg.Voice.IdleTTL(),
			MaxHistory:    cfg.Voice.MaxHistory,
			MinConfidence: cfg.Voice.MinConfidence,
		},
		log,
	)
	presenceSvc := service.NewPresenceService(projectSvc, service.NewPresenceTracker(rdb, cfg.Presence.StaleAfter(), log), log)
	exportSvc := service.NewExportService(projectSvc, taskSvc, taskRepo, milestoneRepo, log)

	router := api.NewRouter(api.Deps{
		Translator:    tr,
		Logger:        log,
		Auth:          authSvc,
		Organizations: orgSvc,
		Projects:      projectSvc,
		Milestones:    milestoneSvc,
		Tasks:         taskSvc,
		Time:          timeSvc,
		Comments:      commentSvc,
		Notifications: notificationSvc,
		Uploads:       uploadSvc,
		UploadQueue:   uploadQueue,
		Analytics:     analyticsSvc,
		Calendar:      calendarSvc,
		Goals:         goalSvc,
		AIPolicy:      policySvc,
		Voice:         voiceSvc,
		Presence:      presenceSvc,
		Export:        exportSvc,
		Replay:        outbox.NewReplayService(outboxRepo, publisher, log),

		CookieName:     cfg.JWT.CookieName,
		SecureCookie:   cfg.Admin.SecureCookie,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Admins:         cfg.Admin.IDs(),
		Readiness: map[string]api.ReadinessCheck{
			"postgres": pool.Ping,
			"redis": func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
			"rabbitmq": func(context.Context) error {
				if !publisher.IsConnected() {
					return errors.New("publisher disconnected")
				}
				return nil
			},
		},
	})

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// Outbox dispatcher
	g.Go(func() error {
		outbox.NewDispatcher(pool, publisher, log).
			WithInterval(time.Duration(cfg.Outbox.IntervalMS) * time.Millisecond).
			WithBatchSize(cfg.Outbox.BatchSize).
			WithMaxRetries(cfg.Outbox.MaxRetries).
			Start(gctx)
		return nil
	})

	// 空闲语音会话清理
	g.Go(func() error {
		voiceSvc.Run(gctx, time.Minute)
		return nil
	})

	// 过期上传任务清理
	g.Go(func() error {
		uploadQueue.Run(gctx, time.Minute)
		return nil
	})

	g.Go(func() error {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down foco server gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		// 等待已接收的异步上传完成
		uploadQueue.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("foco server stopped")
}
