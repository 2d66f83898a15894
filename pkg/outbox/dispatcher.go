package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"foco/pkg/db"
	"foco/pkg/trace"
)

// Publisher 是 Dispatcher 需要的最小 MQ 接口，*mq.Publisher 满足
type Publisher interface {
	PublishRaw(ctx context.Context, routingKey string, body []byte) error
}

// Dispatcher 负责从 outbox 中读取事件并发布到 MQ
type Dispatcher struct {
	db         db.Querier
	repo       *Repository
	publisher  Publisher
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
}

// NewDispatcher 创建新的 Dispatcher
func NewDispatcher(q db.Querier, publisher Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		db:         q,
		repo:       NewRepository(q),
		publisher:  publisher,
		logger:     logger,
		maxRetries: 5,
		interval:   1 * time.Second,
		batchSize:  100,
	}
}

// WithMaxRetries 设置最大重试次数
func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	d.maxRetries = maxRetries
	return d
}

// WithInterval 设置扫描间隔
func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	d.interval = interval
	return d
}

// WithBatchSize 设置批次大小
func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	d.batchSize = batchSize
	return d
}

// Start 启动 Dispatcher，阻塞直到 ctx 取消
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting Outbox Dispatcher",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox Dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.ProcessBatch(ctx); err != nil {
				d.logger.Error("Outbox batch failed", zap.Error(err))
			}
		}
	}
}

// ProcessBatch 在一个事务内锁定一批 pending 事件并逐个发布，返回成功发布的数量
func (d *Dispatcher) ProcessBatch(ctx context.Context) (int, error) {
	sent := 0
	err := db.WithTx(ctx, d.db, func(tx pgx.Tx) error {
		events, err := d.repo.GetPendingEvents(ctx, tx, d.batchSize)
		if err != nil {
			return err
		}

		for _, event := range events {
			if err := d.publishEvent(ctx, event); err != nil {
				d.logger.Error("Failed to publish event",
					zap.Int64("event_id", event.ID),
					zap.String("routing_key", event.RoutingKey),
					zap.Error(err),
				)
				if err := d.repo.MarkAsFailed(ctx, tx, event, d.maxRetries); err != nil {
					return err
				}
				continue
			}

			if err := d.repo.MarkAsSent(ctx, tx, event.ID); err != nil {
				return err
			}
			sent++
			d.logger.Debug("Event published",
				zap.Int64("event_id", event.ID),
				zap.String("routing_key", event.RoutingKey),
			)
		}
		return nil
	})
	return sent, err
}

func (d *Dispatcher) publishEvent(ctx context.Context, event *Event) error {
	ctx = contextWithPayloadTrace(ctx, event.Payload)
	if err := d.publisher.PublishRaw(ctx, event.RoutingKey, event.Payload); err != nil {
		return fmt.Errorf("failed to publish to MQ: %w", err)
	}
	return nil
}

// contextWithPayloadTrace 从 payload 中提取 trace_id（如果存在）
func contextWithPayloadTrace(ctx context.Context, payload json.RawMessage) context.Context {
	var envelope struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return ctx
	}
	if envelope.TraceID != "" {
		ctx = trace.WithContext(ctx, envelope.TraceID)
	}
	return ctx
}
