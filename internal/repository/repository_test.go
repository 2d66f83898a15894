package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"foco/internal/model"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func TestNotificationInsertIsIdempotent(t *testing.T) {
	mock := newMock(t)
	repo := NewNotificationRepository(mock, zap.NewNop())
	taskID := uuid.New()
	n := &model.Notification{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		Type:       model.NotificationAssignment,
		Title:      "Assigned",
		Message:    "You were assigned",
		EntityType: "task",
		EntityID:   &taskID,
		Channel:    model.ChannelInApp,
	}
	args := []any{n.ID, n.UserID, n.Type, n.Title, n.Message, n.EntityType, n.EntityID, n.Channel}

	mock.ExpectExec("(?s)INSERT INTO notifications .* ON CONFLICT \\(id\\) DO NOTHING").
		WithArgs(args...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(args...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := repo.Insert(context.Background(), n)
	require.NoError(t, err)
	assert.True(t, inserted)

	// 重复投递
	inserted, err = repo.Insert(context.Background(), n)
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestNotificationInsertTranslatesErrors(t *testing.T) {
	mock := newMock(t)
	repo := NewNotificationRepository(mock, zap.NewNop())

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Insert(context.Background(), &model.Notification{ID: uuid.New(), UserID: uuid.New()})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestNotificationGetNotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewNotificationRepository(mock, zap.NewNop())
	id := uuid.New()

	mock.ExpectQuery("FROM notifications WHERE id = \\$1").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNotificationListByUser(t *testing.T) {
	mock := newMock(t)
	repo := NewNotificationRepository(mock, zap.NewNop())
	userID, taskID := uuid.New(), uuid.New()
	created := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	readAt := created.Add(time.Hour)

	rows := pgxmock.NewRows([]string{"id", "user_id", "type", "title", "message", "entity_type",
		"entity_id", "channel", "is_read", "read_at", "created_at"}).
		AddRow(uuid.New(), userID, model.NotificationMention, "Mentioned", "@ana look", "comment",
			&taskID, model.ChannelInApp, false, nil, created).
		AddRow(uuid.New(), userID, model.NotificationSystem, "Welcome", "", "",
			nil, model.ChannelEmail, true, &readAt, created.Add(-time.Hour))

	mock.ExpectQuery("SELECT .* FROM notifications\\s+WHERE user_id = \\$1").
		WithArgs(userID, false, 20).
		WillReturnRows(rows)

	list, err := repo.ListByUser(context.Background(), userID, false, 20)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, model.NotificationMention, list[0].Type)
	require.NotNil(t, list[0].EntityID)
	assert.Equal(t, taskID, *list[0].EntityID)
	assert.Nil(t, list[0].ReadAt)

	assert.True(t, list[1].IsRead)
	assert.Nil(t, list[1].EntityID)
	require.NotNil(t, list[1].ReadAt)
	assert.Equal(t, readAt, *list[1].ReadAt)
}

func TestTaskListDueBetween(t *testing.T) {
	mock := newMock(t)
	repo := NewTaskRepository(mock, zap.NewNop())
	from := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	due := from.Add(3 * time.Hour)
	assignee := uuid.New()

	cols := []string{"id", "project_id", "milestone_id", "title", "description", "status", "priority",
		"assignee_id", "reporter_id", "due_date", "estimated_hours", "actual_hours", "position",
		"tags", "completed_at", "created_at", "updated_at"}
	rows := pgxmock.NewRows(cols).
		AddRow(uuid.New(), uuid.New(), nil, "Ship release", "", model.TaskInProgress, model.PriorityHigh,
			&assignee, uuid.New(), &due, nil, 1.5, 2, nil, nil, from, from)

	mock.ExpectQuery("t.due_date >= \\$1 AND t.due_date < \\$2").
		WithArgs(from, to).
		WillReturnRows(rows)

	tasks, err := repo.ListDueBetween(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	task := tasks[0]
	assert.Equal(t, "Ship release", task.Title)
	assert.Equal(t, model.TaskInProgress, task.Status)
	assert.Equal(t, assignee, *task.AssigneeID)
	assert.Equal(t, due, *task.DueDate)
	assert.Nil(t, task.MilestoneID)
	assert.Equal(t, []string{}, task.Tags, "NULL tags scan as an empty list")
}

func TestTaskListQueryError(t *testing.T) {
	mock := newMock(t)
	repo := NewTaskRepository(mock, zap.NewNop())
	from := time.Now()

	mock.ExpectQuery("FROM tasks t").
		WithArgs(from, from).
		WillReturnError(&pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"})

	_, err := repo.ListDueBetween(context.Background(), from, from)
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "57014", pgErr.Code)
}
