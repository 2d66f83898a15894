package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"foco/internal/llm"
	"foco/internal/model"
	"foco/internal/service"
	"foco/pkg/rbac"
)

// withUser 模拟 AuthMiddleware
func withUser(id uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(userIDKey, id)
		c.Next()
	}
}

func doJSON(r http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type fakeNotificationStore struct {
	mu       sync.Mutex
	items    map[uuid.UUID]*model.Notification
	lastUser uuid.UUID
}

func (f *fakeNotificationStore) List(_ context.Context, userID uuid.UUID, unreadOnly bool, _ int) ([]*model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUser = userID
	var out []*model.Notification
	for _, n := range f.items {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotificationStore) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	list, _ := f.List(ctx, userID, true, 0)
	return int64(len(list)), nil
}

func (f *fakeNotificationStore) MarkRead(_ context.Context, userID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.items[id]
	if !ok || n.UserID != userID {
		return service.ErrNotFound
	}
	n.IsRead = true
	return nil
}

func (f *fakeNotificationStore) MarkAllRead(_ context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, it := range f.items {
		if it.UserID == userID && !it.IsRead {
			it.IsRead = true
			n++
		}
	}
	return n, nil
}

func (f *fakeNotificationStore) Delete(_ context.Context, userID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.items[id]
	if !ok || n.UserID != userID {
		return service.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

func TestNotificationHandler(t *testing.T) {
	me, other := uuid.New(), uuid.New()
	mine, theirs := uuid.New(), uuid.New()
	store := &fakeNotificationStore{items: map[uuid.UUID]*model.Notification{
		mine:   {ID: mine, UserID: me, Title: "mine"},
		theirs: {ID: theirs, UserID: other, Title: "theirs"},
	}}
	h := NewNotificationHandler(testBase(t), store)

	r := gin.New()
	r.Use(withUser(me))
	r.GET("/notifications", h.List)
	r.GET("/notifications/unread-count", h.UnreadCount)
	r.POST("/notifications/read-all", h.MarkAllRead)
	r.POST("/notifications/:notificationID/read", h.MarkRead)
	r.DELETE("/notifications/:notificationID", h.Delete)

	w := doJSON(r, http.MethodGet, "/notifications/unread-count", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["unread"])

	// 其他用户的通知不可见
	w = doJSON(r, http.MethodPost, "/notifications/"+theirs.String()+"/read", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodPost, "/notifications/not-a-uuid/read", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/notifications/"+mine.String()+"/read", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(r, http.MethodGet, "/notifications?unread=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["notifications"])
	assert.Equal(t, me, store.lastUser)

	w = doJSON(r, http.MethodDelete, "/notifications/"+mine.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Len(t, store.items, 1)
}

type scriptedChat struct {
	replies []string
	calls   int
}

func (s *scriptedChat) Complete(_ context.Context, _ []llm.Message) (string, error) {
	if s.calls >= len(s.replies) {
		return "", llm.ErrUnavailable
	}
	r := s.replies[s.calls]
	s.calls++
	return r, nil
}

type fakeVoiceActions struct {
	service.VoiceActions
	created []string
}

func (f *fakeVoiceActions) CreateProject(_ context.Context, _ uuid.UUID, orgID uuid.UUID, name, description string) (*model.Project, error) {
	f.created = append(f.created, name)
	return &model.Project{ID: uuid.New(), OrganizationID: orgID, Name: name, Description: description}, nil
}

type allowAll struct{ recorded int }

func (a *allowAll) Authorize(_ context.Context, req service.ToolRequest) (*service.Decision, error) {
	return &service.Decision{Request: req}, nil
}

func (a *allowAll) Record(context.Context, *service.Decision, any) { a.recorded++ }

type memberOf struct{ orgID uuid.UUID }

func (m memberOf) Authorize(_ context.Context, orgID, _ uuid.UUID, _ rbac.Permission) (rbac.Role, error) {
	if orgID != m.orgID {
		return "", service.ErrForbidden
	}
	return rbac.RoleMember, nil
}

func TestVoiceHandlerConversation(t *testing.T) {
	b := testBase(t)
	userID, orgID := uuid.New(), uuid.New()
	chat := &scriptedChat{replies: []string{
		"```json\n{\"intent\":\"create_project\",\"confidence\":0.92,\"entities\":{\"name\":\"Apollo\"}}\n```",
	}}
	actions := &fakeVoiceActions{}
	policy := &allowAll{}
	voice := service.NewVoiceService(chat, actions, policy, b.tr, service.VoiceOptions{}, zap.NewNop())
	h := NewVoiceHandler(b, voice, memberOf{orgID: orgID})

	r := gin.New()
	r.Use(b.tr.Middleware(), withUser(userID))
	r.POST("/voice/conversations", h.Start)
	r.POST("/voice/conversations/:conversationID/commands", h.Command)
	r.GET("/voice/conversations/:conversationID", h.History)
	r.DELETE("/voice/conversations/:conversationID", h.End)

	w := doJSON(r, http.MethodPost, "/voice/conversations", gin.H{"organization_id": uuid.New()})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// locale 取自 Accept-Language 协商结果
	w = doJSON(r, http.MethodPost, "/voice/conversations", gin.H{"organization_id": orgID}, "Accept-Language", "es-MX,es;q=0.9")
	require.Equal(t, http.StatusCreated, w.Code)
	started := decode(t, w)
	assert.Equal(t, "es", started["locale"])
	assert.Contains(t, started["reply"], "¡Hola!")
	convID := started["conversation_id"].(string)

	w = doJSON(r, http.MethodPost, "/voice/conversations/"+convID+"/commands", gin.H{"transcript": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/voice/conversations/"+convID+"/commands", gin.H{"transcript": "crea un proyecto llamado Apollo"})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	assert.Equal(t, "create_project", res["intent"])
	assert.Equal(t, true, res["executed"])
	assert.Equal(t, "Proyecto \"Apollo\" creado.", res["reply"])
	assert.Equal(t, []string{"Apollo"}, actions.created)
	assert.Equal(t, 1, policy.recorded)

	// LLM 不可用时仍返回 200 和提示语
	w = doJSON(r, http.MethodPost, "/voice/conversations/"+convID+"/commands", gin.H{"transcript": "otra cosa"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["executed"])

	w = doJSON(r, http.MethodGet, "/voice/conversations/"+convID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["messages"], 5)

	w = doJSON(r, http.MethodDelete, "/voice/conversations/"+convID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(r, http.MethodGet, "/voice/conversations/"+convID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
