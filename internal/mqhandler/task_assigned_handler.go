package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	contracts "foco/contracts/mq"
	"foco/internal/i18n"
	"foco/internal/model"
	"foco/internal/service"
	"foco/pkg/util"
)

type TaskAssignedHandler struct {
	notifier
	notifications NotificationCreator
	deduper       Deduper
}

func NewTaskAssignedHandler(users UserLookup, notifications NotificationCreator, tr *i18n.Translator, deduper Deduper, logger *zap.Logger) *TaskAssignedHandler {
	return &TaskAssignedHandler{
		notifier:      notifier{users: users, tr: tr, logger: logger},
		notifications: notifications,
		deduper:       deduper,
	}
}

// Handle 自己分配给自己不通知
func (h *TaskAssignedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p contracts.TaskAssignedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal task assigned payload (non-retryable)", zap.Error(err))
		return util.Permanent(err)
	}
	if p.AssigneeID == p.AssignedBy {
		h.logger.Debug("Self-assignment, skipping notification", zap.String("task_id", p.TaskID.String()))
		return nil
	}

	// 同一任务可能被多次分配给同一人，去重键包含 assignee
	notificationID := service.NotificationID(contracts.TaskAssigned, p.TaskID, p.AssigneeID)
	key := notificationID.String()
	if !h.deduper.AcquireOnce(ctx, "assignment", key) {
		return nil
	}

	tag := h.tagFor(ctx, p.AssigneeID)
	_, err := h.notifications.Create(ctx, &model.Notification{
		ID:         notificationID,
		UserID:     p.AssigneeID,
		Type:       model.NotificationAssignment,
		Title:      h.tr.Sprintf(tag, i18n.NotifyAssignmentTitle),
		Message:    h.tr.Sprintf(tag, i18n.NotifyAssignmentBody, p.Title),
		EntityType: string(model.EntityTask),
		EntityID:   entityRef(p.TaskID),
		Channel:    model.ChannelInApp,
	})
	if err != nil {
		h.logger.Error("Failed to create assignment notification",
			zap.String("task_id", p.TaskID.String()),
			zap.String("assignee_id", p.AssigneeID.String()),
			zap.Error(err),
		)
		h.deduper.Release(ctx, "assignment", key)
		return err
	}

	h.logger.Info("Assignment notification created",
		zap.String("task_id", p.TaskID.String()),
		zap.String("assignee_id", p.AssigneeID.String()),
	)
	return nil
}
