package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foco/internal/validation"
	"foco/pkg/rbac"
)

func TestStartTimer(t *testing.T) {
	mock := newMock(t)
	svc := newServices(mock)
	orgID, projectID, me := uuid.New(), uuid.New(), uuid.New()
	insert := "INSERT INTO time_entries \\(id, user_id, project_id, task_id"

	expectProjectAccess(mock, projectID, orgID, me, rbac.RoleMember)
	mock.ExpectQuery(insert).
		WithArgs(pgxmock.AnyArg(), me, projectID, pgxmock.AnyArg(), "standup", fixedTime,
			pgxmock.AnyArg(), 0, true, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(fixedTime))

	// 已有运行中的计时器时唯一索引冲突
	expectProjectAccess(mock, projectID, orgID, me, rbac.RoleMember)
	mock.ExpectQuery(insert).
		WithArgs(pgxmock.AnyArg(), me, projectID, pgxmock.AnyArg(), "", fixedTime,
			pgxmock.AnyArg(), 0, false, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_time_entries_running"})

	e, err := svc.timer.StartTimer(context.Background(), me, validation.TimerStartInput{
		ProjectID: projectID, Description: "  standup ", Billable: true,
	})
	require.NoError(t, err)
	assert.True(t, e.IsRunning())
	assert.Equal(t, fixedTime, e.StartTime)
	assert.Equal(t, fixedTime, e.CreatedAt)

	_, err = svc.timer.StartTimer(context.Background(), me, validation.TimerStartInput{ProjectID: projectID})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestStartTimerViewerForbidden(t *testing.T) {
	mock := newMock(t)
	svc := newServices(mock)
	orgID, projectID, viewer := uuid.New(), uuid.New(), uuid.New()

	expectProjectAccess(mock, projectID, orgID, viewer, rbac.RoleViewer)

	_, err := svc.timer.StartTimer(context.Background(), viewer, validation.TimerStartInput{ProjectID: projectID})
	assert.ErrorIs(t, err, ErrForbidden)
}
