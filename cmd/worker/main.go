package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"foco/contracts/mq"
	"foco/internal/config"
	"foco/internal/i18n"
	"foco/internal/model"
	"foco/internal/mqhandler"
	"foco/internal/repository"
	"foco/internal/service"
	"foco/pkg/db"
	"foco/pkg/logger"
	pkgmq "foco/pkg/mq"
	"foco/pkg/otel"
	"foco/pkg/outbox"
	redisclient "foco/pkg/redis"
	"foco/pkg/util"
)

type binding struct {
	queue      string
	routingKey string
	handler    pkgmq.MessageHandler
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Log.Level)
	defer log.Sync()

	log.Info("Starting foco worker...",
		zap.String("mq_url", cfg.MQ.URL),
		zap.Int64("max_retries", cfg.Worker.MaxRetries),
	)

	shutdownOtel, err := otel.Init(otel.Config{
		ServiceName:    "foco-worker",
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.Otel.Endpoint,
		Enabled:        cfg.Otel.Enabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownOtel()

	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redisclient.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal("Failed to init Redis", zap.Error(err))
	}
	defer rdb.Close()

	// DLQ 发布
	dlq, err := pkgmq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init DLQ publisher", zap.Error(err))
	}
	defer dlq.Close()

	tr, err := i18n.New(cfg.I18n.DefaultLocale)
	if err != nil {
		log.Fatal("Failed to init translator", zap.Error(err))
	}

	dedupTTL := time.Duration(cfg.Worker.DedupTTLMinutes) * time.Minute
	deduper := util.NewDeduper(rdb, dedupTTL, log)
	retries := util.NewRetryCounter(rdb, dedupTTL)

	userRepo := repository.NewUserRepository(pool, log)
	taskRepo := repository.NewTaskRepository(pool, log)
	outboxRepo := outbox.NewRepository(pool)
	notifications := service.NewNotificationService(pool, repository.NewNotificationRepository(pool, log),
		service.NewUnreadCache(rdb, cfg.Cache.UnreadTTL()), outboxRepo, log)

	// 外部渠道目前只记录日志
	senders := map[model.Channel]mqhandler.Sender{
		model.ChannelEmail: mqhandler.NewLogSender(log.Named("email")),
		model.ChannelPush:  mqhandler.NewLogSender(log.Named("push")),
	}

	bindings := []binding{
		{"comment.created.q", mq.CommentCreated, mqhandler.NewCommentCreatedHandler(userRepo, notifications, tr, deduper, log).Handle},
		{"task.assigned.q", mq.TaskAssigned, mqhandler.NewTaskAssignedHandler(userRepo, notifications, tr, deduper, log).Handle},
		{"task.status_changed.q", mq.TaskStatusChanged, mqhandler.NewTaskStatusChangedHandler(userRepo, taskRepo, notifications, tr, deduper, log).Handle},
		{"notification.created.q", mq.NotificationCreated, mqhandler.NewNotificationCreatedHandler(senders, deduper, log).Handle},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumers := make([]*pkgmq.Consumer, 0, len(bindings))
	for _, b := range bindings {
		consumer, err := pkgmq.NewConsumer(cfg.MQ.URL, b.queue, b.routingKey, log)
		if err != nil {
			log.Fatal("Failed to init consumer", zap.String("queue", b.queue), zap.Error(err))
		}
		defer consumer.Close()
		consumer.WithRetry(retries, cfg.Worker.MaxRetries, dlq)
		consumer.SetHandler(b.handler)
		consumers = append(consumers, consumer)

		go func(c *pkgmq.Consumer, queue string) {
			if err := c.StartConsuming(); err != nil {
				log.Error("Consumer stopped with error", zap.String("queue", queue), zap.Error(err))
				stop()
			}
		}(consumer, b.queue)
		log.Info("Consumer started", zap.String("queue", b.queue), zap.String("routing_key", b.routingKey))
	}

	scanner := service.NewDueSoonScanner(taskRepo, userRepo, notifications, tr, cfg.Worker.ReminderWindow(), log)
	go scanner.Run(ctx, cfg.Worker.ReminderInterval())

	// Health endpoints
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	health := gin.New()
	health.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	health.GET("/readyz", func(c *gin.Context) {
		for _, consumer := range consumers {
			if !consumer.IsConnected() {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "rabbitmq"})
				return
			}
		}
		if err := pool.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "reason": "postgres"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	srv := &http.Server{Addr: cfg.Worker.HealthPort, Handler: health, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Health server failed", zap.Error(err))
		}
	}()

	log.Info("foco worker is running", zap.Int("consumers", len(consumers)), zap.String("health_port", cfg.Worker.HealthPort))

	<-ctx.Done()
	log.Info("Shutting down foco worker gracefully...")

	for _, c := range consumers {
		c.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Health server shutdown error", zap.Error(err))
	}
	log.Info("foco worker stopped")
}
