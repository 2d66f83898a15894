package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	contracts "foco/contracts/mq"
	"foco/internal/model"
	"foco/pkg/metrics"
	"foco/pkg/util"
)

// Sender 把已落库的通知投递到外部渠道
type Sender interface {
	Send(ctx context.Context, p contracts.NotificationCreatedPayload) error
}

// LogSender 只记录投递日志；站内通知由客户端轮询读取
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, p contracts.NotificationCreatedPayload) error {
	s.logger.Info("Delivering notification",
		zap.String("notification_id", p.NotificationID.String()),
		zap.String("user_id", p.UserID.String()),
		zap.String("channel", p.Channel),
		zap.String("title", p.Title),
	)
	return nil
}

type NotificationCreatedHandler struct {
	senders map[model.Channel]Sender
	deduper Deduper
	logger  *zap.Logger
}

// NewNotificationCreatedHandler senders 按渠道注册；in_app 不需要 sender
func NewNotificationCreatedHandler(senders map[model.Channel]Sender, deduper Deduper, logger *zap.Logger) *NotificationCreatedHandler {
	if senders == nil {
		senders = map[model.Channel]Sender{}
	}
	return &NotificationCreatedHandler{senders: senders, deduper: deduper, logger: logger}
}

func (h *NotificationCreatedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p contracts.NotificationCreatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal notification created payload (non-retryable)", zap.Error(err))
		return util.Permanent(err)
	}

	channel := model.Channel(p.Channel)
	if channel == "" {
		channel = model.ChannelInApp
	}

	id := p.NotificationID.String()
	if !h.deduper.AcquireOnce(ctx, "delivery", id) {
		return nil
	}

	if channel != model.ChannelInApp {
		sender, ok := h.senders[channel]
		if !ok {
			h.logger.Warn("No sender for channel", zap.String("channel", p.Channel), zap.String("notification_id", id))
			return util.Permanent(fmt.Errorf("unsupported channel: %s", p.Channel))
		}
		if err := sender.Send(ctx, p); err != nil {
			h.logger.Error("Failed to deliver notification",
				zap.String("notification_id", id),
				zap.String("channel", p.Channel),
				zap.Error(err),
			)
			h.deduper.Release(ctx, "delivery", id)
			return err
		}
	}

	metrics.IncrementNotificationSent(p.Type, string(channel))
	h.logger.Info("Notification delivered",
		zap.String("notification_id", id),
		zap.String("user_id", p.UserID.String()),
		zap.String("type", p.Type),
		zap.String("channel", string(channel)),
	)
	return nil
}
