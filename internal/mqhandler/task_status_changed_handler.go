package mqhandler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	contracts "foco/contracts/mq"
	"foco/internal/i18n"
	"foco/internal/model"
	"foco/internal/repository"
	"foco/internal/service"
	"foco/pkg/util"
)

// TaskStatusChangedHandler 通知负责人和创建人，跳过操作者本人
type TaskStatusChangedHandler struct {
	notifier
	tasks         TaskLookup
	notifications NotificationCreator
	deduper       Deduper
}

func NewTaskStatusChangedHandler(users UserLookup, tasks TaskLookup, notifications NotificationCreator, tr *i18n.Translator, deduper Deduper, logger *zap.Logger) *TaskStatusChangedHandler {
	return &TaskStatusChangedHandler{
		notifier:      notifier{users: users, tr: tr, logger: logger},
		tasks:         tasks,
		notifications: notifications,
		deduper:       deduper,
	}
}

func (h *TaskStatusChangedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p contracts.TaskStatusChangedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal status changed payload (non-retryable)", zap.Error(err))
		return util.Permanent(err)
	}

	task, err := h.tasks.Get(ctx, p.TaskID)
	if errors.Is(err, repository.ErrNotFound) {
		// 任务已删除
		return nil
	}
	if err != nil {
		return err
	}

	// 每次变更都提醒；重投同一事件时 event_id 不变
	sourceID := p.EventID
	if sourceID == uuid.Nil {
		sourceID = uuid.NewSHA1(p.TaskID, []byte(p.From+">"+p.To+"@"+p.ChangedBy.String()))
	}
	key := sourceID.String()
	if !h.deduper.AcquireOnce(ctx, "status_change", key) {
		return nil
	}

	for _, userID := range recipients(task, p.ChangedBy) {
		tag := h.tagFor(ctx, userID)
		_, err := h.notifications.Create(ctx, &model.Notification{
			ID:         service.NotificationID(contracts.TaskStatusChanged, sourceID, userID),
			UserID:     userID,
			Type:       model.NotificationStatusChange,
			Title:      h.tr.Sprintf(tag, i18n.NotifyStatusTitle, task.Title, p.To),
			Message:    task.Title,
			EntityType: string(model.EntityTask),
			EntityID:   entityRef(task.ID),
			Channel:    model.ChannelInApp,
		})
		if err != nil {
			h.logger.Error("Failed to create status notification",
				zap.String("task_id", task.ID.String()),
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
			h.deduper.Release(ctx, "status_change", key)
			return err
		}
	}
	return nil
}

func recipients(t *model.Task, actor uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	if t.AssigneeID != nil && *t.AssigneeID != actor {
		out = append(out, *t.AssigneeID)
	}
	if t.ReporterID != uuid.Nil && t.ReporterID != actor && (t.AssigneeID == nil || *t.AssigneeID != t.ReporterID) {
		out = append(out, t.ReporterID)
	}
	return out
}
