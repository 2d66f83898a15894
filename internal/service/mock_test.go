package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"foco/internal/model"
	"foco/internal/repository"
	"foco/pkg/rbac"
)

var fixedTime = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

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

type recordedEvent struct {
	routingKey string
	payload    any
}

// recordingWriter 记录写入 outbox 的事件
type recordingWriter struct {
	events []recordedEvent
}

func (w *recordingWriter) Write(_ context.Context, _ pgx.Tx, _, _, routingKey string, payload interface{}) error {
	w.events = append(w.events, recordedEvent{routingKey: routingKey, payload: payload})
	return nil
}

// services 所有仓储共享同一个 mock 连接
type services struct {
	orgs     *OrganizationService
	projects *ProjectService
	tasks    *TaskService
	timer    *TimeTrackingService
	comments *CommentService
	events   *recordingWriter
}

func newServices(mock pgxmock.PgxPoolIface) *services {
	log := zap.NewNop()
	events := &recordingWriter{}
	taskRepo := repository.NewTaskRepository(mock, log)
	projectRepo := repository.NewProjectRepository(mock, log)
	milestoneRepo := repository.NewMilestoneRepository(mock, log)

	orgs := NewOrganizationService(mock, repository.NewOrganizationRepository(mock, log), log)
	projects := NewProjectService(orgs, projectRepo, log)
	tasks := NewTaskService(mock, projects, taskRepo, projectRepo, milestoneRepo, events, log)
	tasks.now = func() time.Time { return fixedTime }
	timer := NewTimeTrackingService(mock, projects, repository.NewTimeEntryRepository(mock, log), taskRepo, log)
	timer.now = func() time.Time { return fixedTime }
	comments := NewCommentService(mock, NewEntityResolver(projects, taskRepo, milestoneRepo),
		repository.NewCommentRepository(mock, log), repository.NewUserRepository(mock, log), events, log)

	return &services{orgs: orgs, projects: projects, tasks: tasks, timer: timer, comments: comments, events: events}
}

func expectRole(mock pgxmock.PgxPoolIface, orgID, userID uuid.UUID, role rbac.Role) {
	mock.ExpectQuery("SELECT role FROM organization_members").
		WithArgs(orgID, userID).
		WillReturnRows(pgxmock.NewRows([]string{"role"}).AddRow(role))
}

// expectProjectAccess 项目加载 + 成员角色查询
func expectProjectAccess(mock pgxmock.PgxPoolIface, projectID, orgID, userID uuid.UUID, role rbac.Role) {
	mock.ExpectQuery("FROM projects WHERE id = \\$1").
		WithArgs(projectID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "organization_id", "name", "description", "status",
			"priority", "start_date", "due_date", "progress", "color", "created_by", "created_at", "updated_at"}).
			AddRow(projectID, orgID, "Launch", "", model.ProjectActive, model.PriorityMedium,
				nil, nil, 0, "#3B82F6", userID, fixedTime, fixedTime))
	expectRole(mock, orgID, userID, role)
}

var taskCols = []string{"id", "project_id", "milestone_id", "title", "description", "status", "priority",
	"assignee_id", "reporter_id", "due_date", "estimated_hours", "actual_hours", "position",
	"tags", "completed_at", "created_at", "updated_at"}

func taskRows(tasks ...*model.Task) *pgxmock.Rows {
	rows := pgxmock.NewRows(taskCols)
	for _, t := range tasks {
		var completed any
		if t.CompletedAt != nil {
			completed = t.CompletedAt
		}
		rows.AddRow(t.ID, t.ProjectID, nil, t.Title, "", t.Status, model.PriorityMedium,
			nil, t.ReporterID, nil, nil, 0.0, t.Position, nil, completed, fixedTime, fixedTime)
	}
	return rows
}
