package mqhandler

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	contracts "foco/contracts/mq"
	"foco/internal/i18n"
	"foco/internal/model"
	"foco/internal/service"
	"foco/pkg/util"
)

// CommentCreatedHandler 给评论中被 @ 的用户写提及通知
type CommentCreatedHandler struct {
	notifier
	notifications NotificationCreator
	deduper       Deduper
}

func NewCommentCreatedHandler(users UserLookup, notifications NotificationCreator, tr *i18n.Translator, deduper Deduper, logger *zap.Logger) *CommentCreatedHandler {
	return &CommentCreatedHandler{
		notifier:      notifier{users: users, tr: tr, logger: logger},
		notifications: notifications,
		deduper:       deduper,
	}
}

func (h *CommentCreatedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	start := time.Now()
	var p contracts.CommentCreatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal comment created payload (non-retryable)", zap.Error(err))
		return util.Permanent(err)
	}
	if len(p.Mentions) == 0 {
		return nil
	}

	// 编辑评论时会以同一 comment id 再次投递新增的提及，去重按接收人粒度
	id := p.CommentID.String()
	author := h.displayName(ctx, p.AuthorID, p.AuthorName)
	created := 0
	for _, userID := range p.Mentions {
		if userID == p.AuthorID {
			continue
		}
		nid := service.NotificationID(contracts.CommentCreated, p.CommentID, userID)
		key := nid.String()
		if !h.deduper.AcquireOnce(ctx, "mention", key) {
			continue
		}
		tag := h.tagFor(ctx, userID)
		inserted, err := h.notifications.Create(ctx, &model.Notification{
			ID:         nid,
			UserID:     userID,
			Type:       model.NotificationMention,
			Title:      h.tr.Sprintf(tag, i18n.NotifyMentionTitle, author),
			Message:    p.Excerpt,
			EntityType: p.EntityType,
			EntityID:   entityRef(p.EntityID),
			Channel:    model.ChannelInApp,
		})
		if err != nil {
			retryable, errType := util.IsRetryableError(err)
			h.logger.Error("Failed to create mention notification",
				zap.String("comment_id", id),
				zap.String("user_id", userID.String()),
				zap.String("error_type", errType),
				zap.Bool("retryable", retryable),
				zap.Error(err),
			)
			// 已写入的接收人保持加锁，重投只补写剩余的
			h.deduper.Release(ctx, "mention", key)
			return err
		}
		if inserted {
			created++
		}
	}

	h.logger.Info("Mention notifications created",
		zap.String("comment_id", id),
		zap.Int("mentions", len(p.Mentions)),
		zap.Int("created", created),
		since(start),
	)
	return nil
}
