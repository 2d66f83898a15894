package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/i18n"
	"foco/internal/model"
)

type dueTaskLister interface {
	ListDueBetween(ctx context.Context, from, to time.Time) ([]*model.Task, error)
}

type userLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type notificationCreator interface {
	Create(ctx context.Context, n *model.Notification) (bool, error)
}

// DueSoonScanner 周期性扫描即将到期的任务并提醒负责人
// 通知 id 由 task+assignee 推导，同一任务只提醒一次
type DueSoonScanner struct {
	tasks         dueTaskLister
	users         userLookup
	notifications notificationCreator
	tr            *i18n.Translator
	window        time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

func NewDueSoonScanner(tasks dueTaskLister, users userLookup, notifications notificationCreator, tr *i18n.Translator, window time.Duration, logger *zap.Logger) *DueSoonScanner {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &DueSoonScanner{
		tasks:         tasks,
		users:         users,
		notifications: notifications,
		tr:            tr,
		window:        window,
		logger:        logger,
		now:           time.Now,
	}
}

// Scan 返回新建的提醒数量；单条失败只记录日志
func (s *DueSoonScanner) Scan(ctx context.Context) (int, error) {
	now := s.now().UTC()
	tasks, err := s.tasks.ListDueBetween(ctx, now, now.Add(s.window))
	if err != nil {
		s.logger.Error("Failed to list tasks due soon", zap.Error(err))
		return 0, err
	}
	if len(tasks) == 0 {
		s.logger.Debug("No tasks due soon")
		return 0, nil
	}

	locales := make(map[uuid.UUID]string)
	created := 0
	for _, t := range tasks {
		if t.AssigneeID == nil || t.DueDate == nil {
			continue
		}
		assignee := *t.AssigneeID
		locale, ok := locales[assignee]
		if !ok {
			if u, err := s.users.GetByID(ctx, assignee); err == nil {
				locale = u.Locale
			}
			locales[assignee] = locale
		}
		tag := s.tr.Tag(locale)
		taskID := t.ID
		inserted, err := s.notifications.Create(ctx, &model.Notification{
			ID:         NotificationID(string(model.NotificationDueSoon), t.ID, assignee),
			UserID:     assignee,
			Type:       model.NotificationDueSoon,
			Title:      s.tr.Sprintf(tag, i18n.NotifyDueSoonTitle, t.Title),
			Message:    s.tr.Sprintf(tag, i18n.NotifyDueSoonBody, t.DueDate.UTC().Format("2006-01-02 15:04")),
			EntityType: string(model.EntityTask),
			EntityID:   &taskID,
			Channel:    model.ChannelInApp,
		})
		if err != nil {
			s.logger.Error("Failed to create due-soon notification",
				zap.String("task_id", t.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if inserted {
			created++
		}
	}

	s.logger.Info("Due-soon scan completed",
		zap.Int("due_count", len(tasks)),
		zap.Int("notified", created),
	)
	return created, nil
}

// Run 阻塞直到 ctx 取消
func (s *DueSoonScanner) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_, _ = s.Scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.Scan(ctx)
		}
	}
}
