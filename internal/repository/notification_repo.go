package repository

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/model"
	"foco/pkg/db"
)

type NotificationRepository struct {
	db     db.Querier
	logger *zap.Logger
}

func NewNotificationRepository(q db.Querier, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{db: q, logger: logger}
}

func (r *NotificationRepository) WithQuerier(q db.Querier) *NotificationRepository {
	return &NotificationRepository{db: q, logger: r.logger}
}

const notificationColumns = `id, user_id, type, title, message, entity_type, entity_id, channel, is_read, read_at, created_at`

func scanNotification(s scanner) (*model.Notification, error) {
	var n model.Notification
	err := s.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.EntityType, &n.EntityID,
		&n.Channel, &n.IsRead, &n.ReadAt, &n.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &n, nil
}

// Insert 以 id 幂等：重复投递的消息不会产生第二条通知
func (r *NotificationRepository) Insert(ctx context.Context, n *model.Notification) (bool, error) {
	r.logger.Debug("Inserting notification",
		zap.String("user_id", n.UserID.String()),
		zap.String("type", string(n.Type)),
	)
	query := `
        INSERT INTO notifications (id, user_id, type, title, message, entity_type, entity_id, channel)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO NOTHING
    `
	tag, err := r.db.Exec(ctx, query,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.EntityType, n.EntityID, n.Channel)
	if err != nil {
		r.logger.Error("Failed to insert notification", zap.Error(err))
		return false, translate(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *NotificationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	return scanNotification(r.db.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
        WHERE user_id = $1 AND ($2 = FALSE OR is_read = FALSE)
        ORDER BY created_at DESC
        LIMIT $3`
	rows, err := r.db.Query(ctx, query, userID, unreadOnly, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := []*model.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID).Scan(&n)
	return n, translate(err)
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	return affected(r.db.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, NOW()) WHERE id = $1 AND user_id = $2`,
		id, userID))
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = NOW() WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	return affected(r.db.Exec(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID))
}
