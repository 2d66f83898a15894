package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	contracts "foco/contracts/mq"
	"foco/internal/model"
	"foco/internal/repository"
	"foco/pkg/db"
	"foco/pkg/metrics"
	"foco/pkg/outbox"
	"foco/pkg/trace"
)

const defaultNotificationLimit = 50

// UnreadCache 未读数缓存，任何写操作后失效
type UnreadCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewUnreadCache(rdb *redis.Client, ttl time.Duration) *UnreadCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &UnreadCache{rdb: rdb, ttl: ttl}
}

func unreadKey(userID uuid.UUID) string {
	return "foco:notifications:unread:" + userID.String()
}

// Get 未命中时 ok=false
func (c *UnreadCache) Get(ctx context.Context, userID uuid.UUID) (int64, bool) {
	v, err := c.rdb.Get(ctx, unreadKey(userID)).Result()
	if err != nil {
		metrics.RecordCacheLookup("unread", false)
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	metrics.RecordCacheLookup("unread", err == nil)
	return n, err == nil
}

func (c *UnreadCache) Set(ctx context.Context, userID uuid.UUID, n int64) error {
	return c.rdb.Set(ctx, unreadKey(userID), n, c.ttl).Err()
}

func (c *UnreadCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return c.rdb.Del(ctx, unreadKey(userID)).Err()
}

type NotificationService struct {
	db            db.Querier
	notifications *repository.NotificationRepository
	cache         *UnreadCache
	events        outbox.Writer
	logger        *zap.Logger
	now           func() time.Time
}

func NewNotificationService(q db.Querier, notifications *repository.NotificationRepository, cache *UnreadCache, events outbox.Writer, logger *zap.Logger) *NotificationService {
	return &NotificationService{db: q, notifications: notifications, cache: cache, events: events, logger: logger, now: time.Now}
}

// NotificationID 由来源事件和接收人推导出稳定 id，重投的消息写入同一条通知
func NotificationID(source string, sourceID, userID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%s:%s", source, sourceID, userID)))
}

// Create 插入通知并在同一事务中写 notification.created；id 已存在时返回 false
func (s *NotificationService) Create(ctx context.Context, n *model.Notification) (bool, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Channel == "" {
		n.Channel = model.ChannelInApp
	}
	n.CreatedAt = s.now().UTC()

	var inserted bool
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		inserted, err = s.notifications.WithQuerier(tx).Insert(ctx, n)
		if err != nil || !inserted {
			return err
		}
		return s.events.Write(ctx, tx, contracts.AggregateNotification, n.ID.String(), contracts.NotificationCreated, contracts.NotificationCreatedPayload{
			NotificationID: n.ID,
			UserID:         n.UserID,
			Type:           string(n.Type),
			Channel:        string(n.Channel),
			Title:          n.Title,
			Message:        n.Message,
			CreatedAt:      n.CreatedAt,
			TraceID:        trace.FromContext(ctx),
		})
	})
	if err != nil {
		return false, err
	}
	if inserted {
		s.invalidate(ctx, n.UserID)
		s.logger.Info("Notification created",
			zap.String("notification_id", n.ID.String()),
			zap.String("user_id", n.UserID.String()),
			zap.String("type", string(n.Type)),
		)
	}
	return inserted, nil
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*model.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultNotificationLimit
	}
	return s.notifications.ListByUser(ctx, userID, unreadOnly, limit)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if n, ok := s.cache.Get(ctx, userID); ok {
		return n, nil
	}
	n, err := s.notifications.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := s.cache.Set(ctx, userID, n); err != nil {
		s.logger.Warn("Failed to cache unread count", zap.Error(err))
	}
	return n, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.notifications.MarkRead(ctx, id, userID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, userID)
	return n, nil
}

func (s *NotificationService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.notifications.Delete(ctx, id, userID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *NotificationService) invalidate(ctx context.Context, userID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, userID); err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn("Failed to invalidate unread cache", zap.String("user_id", userID.String()), zap.Error(err))
	}
}
