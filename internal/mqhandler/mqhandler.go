package mqhandler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"foco/internal/i18n"
	"foco/internal/model"
)

// 处理器依赖的最小接口，测试里用内存实现替换
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type NotificationCreator interface {
	Create(ctx context.Context, n *model.Notification) (bool, error)
}

type TaskLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Task, error)
}

// Deduper 由 util.Deduper 实现
type Deduper interface {
	AcquireOnce(ctx context.Context, handler string, id string) bool
	Release(ctx context.Context, handler string, id string)
}

// notifier 按接收人的 locale 生成通知文本
type notifier struct {
	users  UserLookup
	tr     *i18n.Translator
	logger *zap.Logger
}

func (n notifier) tagFor(ctx context.Context, userID uuid.UUID) language.Tag {
	u, err := n.users.GetByID(ctx, userID)
	if err != nil {
		n.logger.Debug("Recipient locale unavailable, using default",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return n.tr.Tag("")
	}
	return n.tr.Tag(u.Locale)
}

func (n notifier) displayName(ctx context.Context, userID uuid.UUID, fallback string) string {
	if fallback != "" {
		return fallback
	}
	u, err := n.users.GetByID(ctx, userID)
	if err != nil {
		return "Someone"
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

func entityRef(id uuid.UUID) *uuid.UUID {
	return &id
}

func since(start time.Time) zap.Field {
	return zap.Duration("elapsed", time.Since(start))
}
