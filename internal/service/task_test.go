package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	contracts "foco/contracts/mq"
	"foco/internal/model"
	"foco/internal/validation"
	"foco/pkg/rbac"
)

func TestApplyStatusCompletedAt(t *testing.T) {
	s := &TaskService{logger: zap.NewNop(), now: func() time.Time { return fixedTime }}

	task := &model.Task{Status: model.TaskInProgress}
	s.applyStatus(task, model.TaskDone)
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, fixedTime, *task.CompletedAt)

	// 已经是 done 时不刷新完成时间
	s.now = func() time.Time { return fixedTime.Add(time.Hour) }
	s.applyStatus(task, model.TaskDone)
	assert.Equal(t, fixedTime, *task.CompletedAt)

	s.applyStatus(task, model.TaskReview)
	assert.Nil(t, task.CompletedAt)
	assert.Equal(t, model.TaskReview, task.Status)

	// 非 done 之间切换不产生完成时间
	s.applyStatus(task, model.TaskBlocked)
	assert.Nil(t, task.CompletedAt)
}

func expectColumn(mock pgxmock.PgxPoolIface, projectID uuid.UUID, status model.TaskStatus, tasks ...*model.Task) {
	mock.ExpectQuery("FROM tasks t WHERE t.project_id = \\$1 AND t.status = \\$2 ORDER BY t.position").
		WithArgs(projectID, status).
		WillReturnRows(taskRows(tasks...))
}

func expectPosition(mock pgxmock.PgxPoolIface, id uuid.UUID, status model.TaskStatus, pos int) {
	mock.ExpectExec("UPDATE tasks SET status = \\$2, position = \\$3, updated_at").
		WithArgs(id, status, pos).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

func expectProgress(mock pgxmock.PgxPoolIface, projectID uuid.UUID, progress int) {
	mock.ExpectQuery("UPDATE projects p SET progress").
		WithArgs(projectID).
		WillReturnRows(pgxmock.NewRows([]string{"progress"}).AddRow(progress))
}

func TestMoveAcrossColumnsRenumbersBoth(t *testing.T) {
	mock := newMock(t)
	svc := newServices(mock)
	orgID, projectID, me := uuid.New(), uuid.New(), uuid.New()

	task := func(title string, status model.TaskStatus, pos int) *model.Task {
		return &model.Task{ID: uuid.New(), ProjectID: projectID, Title: title, Status: status, Position: pos, ReporterID: me}
	}
	a, b, c := task("a", model.TaskTodo, 0), task("b", model.TaskTodo, 1), task("c", model.TaskTodo, 2)
	d, e := task("d", model.TaskDone, 0), task("e", model.TaskDone, 1)

	mock.ExpectQuery("FROM tasks t WHERE t.id = \\$1").WithArgs(b.ID).WillReturnRows(taskRows(b))
	expectProjectAccess(mock, projectID, orgID, me, rbac.RoleMember)
	mock.ExpectBegin()
	expectColumn(mock, projectID, model.TaskTodo, a, b, c)
	expectColumn(mock, projectID, model.TaskDone, d, e)
	// 原列：c 前移
	expectPosition(mock, c.ID, model.TaskTodo, 1)
	// 新列：d 不动也写入，b 插到 1 并记录完成时间，e 后移
	expectPosition(mock, d.ID, model.TaskDone, 0)
	completed := fixedTime
	mock.ExpectExec("UPDATE tasks SET status = \\$2, position = \\$3, completed_at = \\$4").
		WithArgs(b.ID, model.TaskDone, 1, &completed).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	expectPosition(mock, e.ID, model.TaskDone, 2)
	expectProgress(mock, projectID, 40)
	mock.ExpectCommit()

	moved, err := svc.tasks.Move(context.Background(), me, b.ID, validation.TaskMoveInput{Status: model.TaskDone, Index: 1})
	require.NoError(t, err)
	assert.Equal(t, model.TaskDone, moved.Status)
	assert.Equal(t, 1, moved.Position)
	require.NotNil(t, moved.CompletedAt)
	assert.Equal(t, fixedTime, *moved.CompletedAt)

	require.Len(t, svc.events.events, 1)
	ev := svc.events.events[0]
	assert.Equal(t, contracts.TaskStatusChanged, ev.routingKey)
	payload := ev.payload.(contracts.TaskStatusChangedPayload)
	assert.Equal(t, "todo", payload.From)
	assert.Equal(t, "done", payload.To)
	assert.NotEqual(t, uuid.Nil, payload.EventID)
}

func TestMoveOutOfDoneClearsCompletedAt(t *testing.T) {
	mock := newMock(t)
	svc := newServices(mock)
	orgID, projectID, me := uuid.New(), uuid.New(), uuid.New()

	finished := fixedTime.Add(-24 * time.Hour)
	done := &model.Task{ID: uuid.New(), ProjectID: projectID, Title: "ship", Status: model.TaskDone, CompletedAt: &finished, ReporterID: me}
	todo := &model.Task{ID: uuid.New(), ProjectID: projectID, Title: "next", Status: model.TaskTodo, ReporterID: me}

	mock.ExpectQuery("FROM tasks t WHERE t.id = \\$1").WithArgs(done.ID).WillReturnRows(taskRows(done))
	expectProjectAccess(mock, projectID, orgID, me, rbac.RoleMember)
	mock.ExpectBegin()
	expectColumn(mock, projectID, model.TaskDone, done)
	expectColumn(mock, projectID, model.TaskTodo, todo)
	// index 超出列长度时追加到末尾
	expectPosition(mock, todo.ID, model.TaskTodo, 0)
	mock.ExpectExec("UPDATE tasks SET status = \\$2, position = \\$3, completed_at = \\$4").
		WithArgs(done.ID, model.TaskTodo, 1, (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	expectProgress(mock, projectID, 0)
	mock.ExpectCommit()

	moved, err := svc.tasks.Move(context.Background(), me, done.ID, validation.TaskMoveInput{Status: model.TaskTodo, Index: 9})
	require.NoError(t, err)
	assert.Equal(t, model.TaskTodo, moved.Status)
	assert.Nil(t, moved.CompletedAt)
	assert.Len(t, svc.events.events, 1)
}

func TestMoveWithinColumnSkipsEvents(t *testing.T) {
	mock := newMock(t)
	svc := newServices(mock)
	orgID, projectID, me := uuid.New(), uuid.New(), uuid.New()

	a := &model.Task{ID: uuid.New(), ProjectID: projectID, Title: "a", Status: model.TaskTodo, Position: 0, ReporterID: me}
	b := &model.Task{ID: uuid.New(), ProjectID: projectID, Title: "b", Status: model.TaskTodo, Position: 1, ReporterID: me}
	c := &model.Task{ID: uuid.New(), ProjectID: projectID, Title: "c", Status: model.TaskTodo, Position: 2, ReporterID: me}

	mock.ExpectQuery("FROM tasks t WHERE t.id = \\$1").WithArgs(c.ID).WillReturnRows(taskRows(c))
	expectProjectAccess(mock, projectID, orgID, me, rbac.RoleMember)
	mock.ExpectBegin()
	expectColumn(mock, projectID, model.TaskTodo, a, b, c)
	// c 移到最前，只有位置变化的行被写入
	expectPosition(mock, c.ID, model.TaskTodo, 0)
	expectPosition(mock, a.ID, model.TaskTodo, 1)
	expectPosition(mock, b.ID, model.TaskTodo, 2)
	mock.ExpectCommit()

	moved, err := svc.tasks.Move(context.Background(), me, c.ID, validation.TaskMoveInput{Status: model.TaskTodo, Index: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, moved.Position)
	assert.Empty(t, svc.events.events)
}

func TestMoveRequiresWritePermission(t *testing.T) {
	mock := newMock(t)
	svc := newServices(mock)
	orgID, projectID, viewer := uuid.New(), uuid.New(), uuid.New()
	task := &model.Task{ID: uuid.New(), ProjectID: projectID, Title: "a", Status: model.TaskTodo, ReporterID: viewer}

	mock.ExpectQuery("FROM tasks t WHERE t.id = \\$1").WithArgs(task.ID).WillReturnRows(taskRows(task))
	expectProjectAccess(mock, projectID, orgID, viewer, rbac.RoleViewer)

	_, err := svc.tasks.Move(context.Background(), viewer, task.ID, validation.TaskMoveInput{Status: model.TaskDone})
	assert.ErrorIs(t, err, ErrForbidden)
}
