package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contracts "foco/contracts/mq"
	"foco/internal/model"
	"foco/internal/validation"
	"foco/pkg/rbac"
)

var userCols = []string{"id", "email", "username", "display_name", "password_hash", "locale", "created_at"}

func userRow(rows *pgxmock.Rows, id uuid.UUID, username string) *pgxmock.Rows {
	return rows.AddRow(id, username+"@example.com", username, username, "", "en", fixedTime)
}

// expectCommentOnTask 加载评论并解析到任务所在项目
func expectCommentOnTask(mock pgxmock.PgxPoolIface, c *model.Comment, task *model.Task, orgID uuid.UUID) {
	mock.ExpectQuery("FROM comments WHERE id = \\$1").
		WithArgs(c.ID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "entity_type", "entity_id", "author_id", "parent_id",
			"content", "mentions", "edited", "created_at", "updated_at"}).
			AddRow(c.ID, model.EntityTask, task.ID, c.AuthorID, nil, c.Content, c.Mentions, false, fixedTime, fixedTime))
	mock.ExpectQuery("FROM tasks t WHERE t.id = \\$1").WithArgs(task.ID).WillReturnRows(taskRows(task))
	expectProjectAccess(mock, task.ProjectID, orgID, c.AuthorID, rbac.RoleMember)
}

func TestCommentUpdateNotifiesOnlyNewMentions(t *testing.T) {
	mock := newMock(t)
	svc := newServices(mock)
	orgID, me, ana, bob := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	task := &model.Task{ID: uuid.New(), ProjectID: uuid.New(), Title: "t", Status: model.TaskTodo, ReporterID: me}
	c := &model.Comment{ID: uuid.New(), AuthorID: me, Content: "@ana ping", Mentions: []uuid.UUID{ana}}
	content := "@ana please loop in @bob and @me"

	found := pgxmock.NewRows(userCols)
	userRow(found, ana, "ana")
	userRow(found, bob, "bob")
	userRow(found, me, "me")

	expectCommentOnTask(mock, c, task, orgID)
	mock.ExpectQuery("FROM users WHERE lower\\(username\\) = ANY\\(\\$1\\)").
		WithArgs([]string{"ana", "bob", "me"}).
		WillReturnRows(found)
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE comments SET content = \\$2, mentions = \\$3, edited = TRUE").
		WithArgs(c.ID, content, []uuid.UUID{ana, bob, me}).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(fixedTime))
	mock.ExpectQuery("FROM users WHERE id = \\$1").
		WithArgs(me).
		WillReturnRows(userRow(pgxmock.NewRows(userCols), me, "me"))
	mock.ExpectCommit()

	updated, err := svc.comments.Update(context.Background(), me, c.ID, validation.CommentUpdateInput{Content: content})
	require.NoError(t, err)
	assert.True(t, updated.Edited)
	assert.Equal(t, []uuid.UUID{ana, bob, me}, updated.Mentions)

	// ana 已经提醒过；作者本人不提醒
	require.Len(t, svc.events.events, 1)
	ev := svc.events.events[0]
	assert.Equal(t, contracts.CommentCreated, ev.routingKey)
	payload := ev.payload.(contracts.CommentCreatedPayload)
	assert.Equal(t, c.ID, payload.CommentID)
	assert.Equal(t, []uuid.UUID{bob}, payload.Mentions)
}

func TestCommentUpdateWithoutNewMentions(t *testing.T) {
	mock := newMock(t)
	svc := newServices(mock)
	orgID, me, ana := uuid.New(), uuid.New(), uuid.New()
	task := &model.Task{ID: uuid.New(), ProjectID: uuid.New(), Title: "t", Status: model.TaskTodo, ReporterID: me}
	c := &model.Comment{ID: uuid.New(), AuthorID: me, Content: "@ana ping", Mentions: []uuid.UUID{ana}}

	expectCommentOnTask(mock, c, task, orgID)
	mock.ExpectQuery("FROM users WHERE lower\\(username\\)").
		WithArgs([]string{"ana"}).
		WillReturnRows(userRow(pgxmock.NewRows(userCols), ana, "ana"))
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE comments SET content").
		WithArgs(c.ID, "@ana fixed typo", []uuid.UUID{ana}).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(fixedTime))
	mock.ExpectCommit()

	_, err := svc.comments.Update(context.Background(), me, c.ID, validation.CommentUpdateInput{Content: "@ana fixed typo"})
	require.NoError(t, err)
	assert.Empty(t, svc.events.events)
}

func TestCommentUpdateOnlyByAuthor(t *testing.T) {
	mock := newMock(t)
	svc := newServices(mock)
	author, other := uuid.New(), uuid.New()
	id := uuid.New()

	mock.ExpectQuery("FROM comments WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "entity_type", "entity_id", "author_id", "parent_id",
			"content", "mentions", "edited", "created_at", "updated_at"}).
			AddRow(id, model.EntityTask, uuid.New(), author, nil, "hi", []uuid.UUID{}, false, fixedTime, fixedTime))

	_, err := svc.comments.Update(context.Background(), other, id, validation.CommentUpdateInput{Content: "mine now"})
	assert.ErrorIs(t, err, ErrForbidden)
}
