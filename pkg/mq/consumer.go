package mq

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"foco/pkg/metrics"
	"foco/pkg/otel"
	"foco/pkg/trace"
	"foco/pkg/util"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

type Consumer struct {
	channel    *amqp091.Channel
	queue      amqp091.Queue
	routingKey string
	handler    MessageHandler
	conn       *amqp091.Connection
	logger     *zap.Logger

	retries    *util.RetryCounter
	maxRetries int64
	dlq        *Publisher

	stopOnce sync.Once
	done     chan struct{}
}

// NewConsumer creates a consumer for a specific routing key.
func NewConsumer(url, queueName, routingKey string, logger *zap.Logger) (*Consumer, error) {
	conn, ch, err := dial(url)
	if err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		closeAll(ch, conn)
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		routingKey,
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
		closeAll(ch, conn)
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	if _, err := DeclareDLQQueue(ch, routingKey); err != nil {
		closeAll(ch, conn)
		return nil, err
	}

	if err := ch.Qos(10, 0, false); err != nil {
		closeAll(ch, conn)
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", routingKey),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:       conn,
		channel:    ch,
		queue:      q,
		routingKey: routingKey,
		logger:     logger,
		maxRetries: 3,
		done:       make(chan struct{}),
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// WithRetry 启用基于 Redis 计数的有限重试，超过次数或不可重试的错误进入 DLQ
func (c *Consumer) WithRetry(counter *util.RetryCounter, maxRetries int64, dlq *Publisher) *Consumer {
	c.retries = counter
	c.maxRetries = maxRetries
	c.dlq = dlq
	return c
}

// IsConnected 用于 readiness 检查
func (c *Consumer) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// Stop 停止消费；StartConsuming 会在当前消息处理完后返回
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		if c.channel != nil {
			_ = c.channel.Cancel(c.consumerTag(), false)
		}
	})
}

func (c *Consumer) Close() {
	c.Stop()
	closeAll(c.channel, c.conn)
}

func (c *Consumer) consumerTag() string {
	return "foco-worker-" + c.queue.Name
}

// StartConsuming starts consuming messages. This method blocks and should be called in a goroutine.
func (c *Consumer) StartConsuming() error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		c.consumerTag(),
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	for {
		select {
		case <-c.done:
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.process(msg)
		}
	}
}

// process 保证每条消息都会被 ack 或 nack
func (c *Consumer) process(msg amqp091.Delivery) {
	start := time.Now()
	status := "success"

	ctx := otel.GetTextMapPropagator().Extract(context.Background(), otel.NewMQHeaderCarrier(msg.Headers))
	if traceID, ok := msg.Headers["trace_id"].(string); ok && traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	}
	ctx, span := otel.MQConsumeSpan(ctx, c.routingKey, c.queue.Name)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			c.logger.Error("Handler panic recovered",
				zap.String("routing_key", c.routingKey),
				zap.String("queue", c.queue.Name),
				zap.Any("panic", r),
			)
			c.fail(ctx, msg, fmt.Errorf("handler panic: %v", r))
		}
		metrics.RecordMQConsumeLatency(c.routingKey, c.queue.Name, status, time.Since(start))
	}()

	if err := c.handler(ctx, msg.Body); err != nil {
		status = "error"
		c.logger.Error("Handler error",
			zap.String("routing_key", c.routingKey),
			zap.String("queue", c.queue.Name),
			zap.Error(err),
		)
		c.fail(ctx, msg, err)
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack message",
			zap.String("routing_key", c.routingKey),
			zap.Error(err),
		)
	}
	if c.retries != nil {
		_ = c.retries.Reset(ctx, c.retryKey(msg.Body))
	}
}

// fail 决定重新入队还是进入 DLQ
func (c *Consumer) fail(ctx context.Context, msg amqp091.Delivery, handlerErr error) {
	retryable, errType := util.IsRetryableError(handlerErr)

	// 未启用重试计数时保持原有行为：重新入队
	if c.retries == nil || c.dlq == nil {
		if err := msg.Nack(false, true); err != nil {
			c.logger.Error("Failed to nack message", zap.String("routing_key", c.routingKey), zap.Error(err))
		}
		return
	}

	key := c.retryKey(msg.Body)
	count, err := c.retries.IncrementAndGet(ctx, key)
	if err != nil {
		c.logger.Warn("Retry counter unavailable, requeueing", zap.Error(err))
		_ = msg.Nack(false, true)
		return
	}

	if util.ShouldRetry(count, c.maxRetries, retryable) {
		c.logger.Warn("Requeueing message",
			zap.String("routing_key", c.routingKey),
			zap.String("error_type", errType),
			zap.Int64("retry_count", count),
		)
		_ = msg.Nack(false, true)
		return
	}

	if err := c.dlq.PublishToDLQ(ctx, c.routingKey, msg.Body, handlerErr.Error(), c.queue.Name); err != nil {
		c.logger.Error("Failed to publish to DLQ, requeueing", zap.Error(err))
		_ = msg.Nack(false, true)
		return
	}
	c.logger.Warn("Message moved to DLQ",
		zap.String("routing_key", c.routingKey),
		zap.String("error_type", errType),
		zap.Int64("retry_count", count),
	)
	_ = c.retries.Reset(ctx, key)
	_ = msg.Ack(false)
}

func (c *Consumer) retryKey(body []byte) string {
	sum := sha1.Sum(body)
	return util.FormatRetryKey(c.queue.Name, hex.EncodeToString(sum[:]))
}
