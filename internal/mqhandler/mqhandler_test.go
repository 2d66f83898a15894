package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	contracts "foco/contracts/mq"
	"foco/internal/i18n"
	"foco/internal/model"
	"foco/internal/repository"
	"foco/internal/service"
	"foco/pkg/util"
)

type fakeUsers map[uuid.UUID]*model.User

func (f fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

type fakeNotifications struct {
	mu      sync.Mutex
	created map[uuid.UUID]*model.Notification
	err     error
}

func (f *fakeNotifications) Create(_ context.Context, n *model.Notification) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.created == nil {
		f.created = map[uuid.UUID]*model.Notification{}
	}
	if _, ok := f.created[n.ID]; ok {
		return false, nil
	}
	f.created[n.ID] = n
	return true, nil
}

func (f *fakeNotifications) list() []*model.Notification {
	out := make([]*model.Notification, 0, len(f.created))
	for _, n := range f.created {
		out = append(out, n)
	}
	return out
}

type fakeTasks map[uuid.UUID]*model.Task

func (f fakeTasks) Get(_ context.Context, id uuid.UUID) (*model.Task, error) {
	if t, ok := f[id]; ok {
		return t, nil
	}
	return nil, repository.ErrNotFound
}

type memDeduper struct {
	seen     map[string]bool
	released int
}

func newMemDeduper() *memDeduper { return &memDeduper{seen: map[string]bool{}} }

func (d *memDeduper) AcquireOnce(_ context.Context, handler, id string) bool {
	k := handler + ":" + id
	if d.seen[k] {
		return false
	}
	d.seen[k] = true
	return true
}

func (d *memDeduper) Release(_ context.Context, handler, id string) {
	delete(d.seen, handler+":"+id)
	d.released++
}

func translator(t *testing.T) *i18n.Translator {
	t.Helper()
	tr, err := i18n.New("en")
	require.NoError(t, err)
	return tr
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestCommentCreatedHandler_LocalizedMentions(t *testing.T) {
	author, ana, bob := uuid.New(), uuid.New(), uuid.New()
	users := fakeUsers{
		ana: {ID: ana, Locale: "es"},
		bob: {ID: bob, Locale: "en"},
	}
	store := &fakeNotifications{}
	h := NewCommentCreatedHandler(users, store, translator(t), newMemDeduper(), zap.NewNop())

	payload := contracts.CommentCreatedPayload{
		CommentID:  uuid.New(),
		EntityType: "task",
		EntityID:   uuid.New(),
		AuthorID:   author,
		AuthorName: "Carla",
		Excerpt:    "@ana @bob look at this",
		Mentions:   []uuid.UUID{ana, bob, author},
	}
	require.NoError(t, h.Handle(context.Background(), mustJSON(t, payload)))

	notes := store.list()
	require.Len(t, notes, 2)
	titles := map[uuid.UUID]string{}
	for _, n := range notes {
		assert.Equal(t, model.NotificationMention, n.Type)
		assert.Equal(t, payload.Excerpt, n.Message)
		assert.Equal(t, service.NotificationID(contracts.CommentCreated, payload.CommentID, n.UserID), n.ID)
		titles[n.UserID] = n.Title
	}
	assert.Equal(t, "Carla te mencionó", titles[ana])
	assert.Equal(t, "Carla mentioned you", titles[bob])

	// 重投被去重
	require.NoError(t, h.Handle(context.Background(), mustJSON(t, payload)))
	assert.Len(t, store.list(), 2)
}

func TestCommentCreatedHandler_ReleasesOnFailure(t *testing.T) {
	dedup := newMemDeduper()
	store := &fakeNotifications{err: errors.New("connection refused")}
	h := NewCommentCreatedHandler(fakeUsers{}, store, translator(t), dedup, zap.NewNop())

	payload := contracts.CommentCreatedPayload{CommentID: uuid.New(), AuthorID: uuid.New(), Mentions: []uuid.UUID{uuid.New()}}
	err := h.Handle(context.Background(), mustJSON(t, payload))
	require.Error(t, err)
	assert.Equal(t, 1, dedup.released)
}

func TestHandlers_BadPayloadIsPermanent(t *testing.T) {
	h := NewTaskAssignedHandler(fakeUsers{}, &fakeNotifications{}, translator(t), newMemDeduper(), zap.NewNop())
	err := h.Handle(context.Background(), json.RawMessage(`{"task_id": 12`))
	require.Error(t, err)
	retryable, _ := util.IsRetryableError(err)
	assert.False(t, retryable)
}

func TestTaskAssignedHandler(t *testing.T) {
	assignee, boss := uuid.New(), uuid.New()
	store := &fakeNotifications{}
	h := NewTaskAssignedHandler(fakeUsers{assignee: {ID: assignee, Locale: "de"}}, store, translator(t), newMemDeduper(), zap.NewNop())

	self := contracts.TaskAssignedPayload{TaskID: uuid.New(), Title: "Write docs", AssigneeID: boss, AssignedBy: boss}
	require.NoError(t, h.Handle(context.Background(), mustJSON(t, self)))
	assert.Empty(t, store.list())

	p := contracts.TaskAssignedPayload{TaskID: uuid.New(), Title: "Write docs", AssigneeID: assignee, AssignedBy: boss}
	require.NoError(t, h.Handle(context.Background(), mustJSON(t, p)))
	notes := store.list()
	require.Len(t, notes, 1)
	assert.Equal(t, assignee, notes[0].UserID)
	assert.Equal(t, model.NotificationAssignment, notes[0].Type)
	assert.Equal(t, "Ihnen wurde eine neue Aufgabe zugewiesen", notes[0].Title)
	assert.Contains(t, notes[0].Message, "Write docs")
	require.NotNil(t, notes[0].EntityID)
	assert.Equal(t, p.TaskID, *notes[0].EntityID)
}

func TestTaskStatusChangedHandler(t *testing.T) {
	assignee, reporter := uuid.New(), uuid.New()
	task := &model.Task{ID: uuid.New(), Title: "Ship it", AssigneeID: &assignee, ReporterID: reporter}
	store := &fakeNotifications{}
	h := NewTaskStatusChangedHandler(fakeUsers{}, fakeTasks{task.ID: task}, store, translator(t), newMemDeduper(), zap.NewNop())

	p := contracts.TaskStatusChangedPayload{TaskID: task.ID, From: "todo", To: "done", ChangedBy: assignee}
	require.NoError(t, h.Handle(context.Background(), mustJSON(t, p)))

	notes := store.list()
	require.Len(t, notes, 1)
	assert.Equal(t, reporter, notes[0].UserID)
	assert.Equal(t, `"Ship it" moved to done`, notes[0].Title)

	missing := contracts.TaskStatusChangedPayload{TaskID: uuid.New(), From: "todo", To: "done"}
	assert.NoError(t, h.Handle(context.Background(), mustJSON(t, missing)))
}

func TestRecipients(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, []uuid.UUID{a}, recipients(&model.Task{AssigneeID: &a, ReporterID: a}, b))
	assert.Empty(t, recipients(&model.Task{AssigneeID: &a, ReporterID: a}, a))
	assert.Equal(t, []uuid.UUID{a, b}, recipients(&model.Task{AssigneeID: &a, ReporterID: b}, uuid.New()))
}

type recordingSender struct {
	sent []contracts.NotificationCreatedPayload
	err  error
}

func (s *recordingSender) Send(_ context.Context, p contracts.NotificationCreatedPayload) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, p)
	return nil
}

func TestNotificationCreatedHandler(t *testing.T) {
	email := &recordingSender{}
	dedup := newMemDeduper()
	h := NewNotificationCreatedHandler(map[model.Channel]Sender{model.ChannelEmail: email}, dedup, zap.NewNop())
	ctx := context.Background()

	inApp := contracts.NotificationCreatedPayload{NotificationID: uuid.New(), UserID: uuid.New(), Type: "mention", Channel: "in_app"}
	require.NoError(t, h.Handle(ctx, mustJSON(t, inApp)))
	assert.Empty(t, email.sent)

	mail := contracts.NotificationCreatedPayload{NotificationID: uuid.New(), UserID: uuid.New(), Type: "due_soon", Channel: "email"}
	require.NoError(t, h.Handle(ctx, mustJSON(t, mail)))
	require.NoError(t, h.Handle(ctx, mustJSON(t, mail)))
	assert.Len(t, email.sent, 1)

	push := contracts.NotificationCreatedPayload{NotificationID: uuid.New(), Channel: "push"}
	err := h.Handle(ctx, mustJSON(t, push))
	require.Error(t, err)
	retryable, _ := util.IsRetryableError(err)
	assert.False(t, retryable)

	email.err = errors.New("smtp timeout")
	again := contracts.NotificationCreatedPayload{NotificationID: uuid.New(), Channel: "email"}
	require.Error(t, h.Handle(ctx, mustJSON(t, again)))
	assert.Equal(t, 1, dedup.released)
}

func TestCommentCreatedHandler_EditAddsMention(t *testing.T) {
	author, ana, bob := uuid.New(), uuid.New(), uuid.New()
	store := &fakeNotifications{}
	h := NewCommentCreatedHandler(fakeUsers{}, store, translator(t), newMemDeduper(), zap.NewNop())

	created := contracts.CommentCreatedPayload{CommentID: uuid.New(), AuthorID: author, AuthorName: "Carla", Mentions: []uuid.UUID{ana}}
	require.NoError(t, h.Handle(context.Background(), mustJSON(t, created)))

	// 编辑后新增 @bob，沿用同一 comment id
	edited := created
	edited.Mentions = []uuid.UUID{bob}
	require.NoError(t, h.Handle(context.Background(), mustJSON(t, edited)))

	notified := map[uuid.UUID]bool{}
	for _, n := range store.list() {
		notified[n.UserID] = true
	}
	assert.Equal(t, map[uuid.UUID]bool{ana: true, bob: true}, notified)

	// 重投编辑事件不会重复
	require.NoError(t, h.Handle(context.Background(), mustJSON(t, edited)))
	assert.Len(t, store.list(), 2)
}

func TestTaskStatusChangedHandler_RoundTrips(t *testing.T) {
	assignee, reporter := uuid.New(), uuid.New()
	task := &model.Task{ID: uuid.New(), Title: "Ship it", AssigneeID: &assignee, ReporterID: reporter}
	store := &fakeNotifications{}
	h := NewTaskStatusChangedHandler(fakeUsers{}, fakeTasks{task.ID: task}, store, translator(t), newMemDeduper(), zap.NewNop())

	changes := []contracts.TaskStatusChangedPayload{
		{EventID: uuid.New(), TaskID: task.ID, From: "todo", To: "done", ChangedBy: assignee},
		{EventID: uuid.New(), TaskID: task.ID, From: "done", To: "todo", ChangedBy: assignee},
		{EventID: uuid.New(), TaskID: task.ID, From: "todo", To: "done", ChangedBy: assignee},
	}
	for _, p := range changes {
		require.NoError(t, h.Handle(context.Background(), mustJSON(t, p)))
	}
	assert.Len(t, store.list(), 3)

	// 同一事件重投
	require.NoError(t, h.Handle(context.Background(), mustJSON(t, changes[2])))
	assert.Len(t, store.list(), 3)
}
