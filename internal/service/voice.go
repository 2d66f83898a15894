package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"foco/internal/i18n"
	"foco/internal/llm"
	"foco/internal/model"
	"foco/pkg/metrics"
)

const (
	IntentUnknown = "unknown"

	outcomeExecuted    = "executed"
	outcomeClarify     = "clarify"
	outcomeDenied      = "denied"
	outcomeFailed      = "failed"
	outcomeUnavailable = "unavailable"
)

// VoiceIntent 模型返回的 JSON
type VoiceIntent struct {
	Intent     string        `json:"intent"`
	Confidence float64       `json:"confidence"`
	Entities   VoiceEntities `json:"entities"`
	Reply      string        `json:"reply"`
}

type VoiceEntities struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Project     string  `json:"project,omitempty"`
	Task        string  `json:"task,omitempty"`
	Status      string  `json:"status,omitempty"`
	Priority    string  `json:"priority,omitempty"`
	DueDate     string  `json:"due_date,omitempty"`
	Minutes     int     `json:"minutes,omitempty"`
	Hours       float64 `json:"hours,omitempty"`
	Name        string  `json:"name,omitempty"`
}

// ParseIntent 容忍 ```json 围栏和前后的说明文字，取第一个完整的 JSON 对象
func ParseIntent(raw string) (VoiceIntent, error) {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.Contains(rest[:nl], "{") {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = strings.TrimSpace(rest)
	}
	obj, ok := firstJSONObject(s)
	if !ok {
		return VoiceIntent{}, fmt.Errorf("no json object in model output")
	}
	var in VoiceIntent
	if err := json.Unmarshal([]byte(obj), &in); err != nil {
		return VoiceIntent{}, fmt.Errorf("decode intent: %w", err)
	}
	in.Intent = strings.ToLower(strings.TrimSpace(in.Intent))
	if in.Intent == "" {
		in.Intent = IntentUnknown
	}
	return in, nil
}

// firstJSONObject 括号配对扫描，跳过字符串里的括号
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// VoiceActions 语音意图落到业务服务上的操作
type VoiceActions interface {
	FindProject(ctx context.Context, userID, orgID uuid.UUID, name string) (*model.Project, error)
	FindTask(ctx context.Context, userID, orgID uuid.UUID, title string) (*model.Task, error)
	CreateTask(ctx context.Context, userID, projectID uuid.UUID, e VoiceEntities) (*model.Task, error)
	UpdateTaskStatus(ctx context.Context, userID, taskID uuid.UUID, status model.TaskStatus) (*model.Task, error)
	ListTasks(ctx context.Context, userID, orgID uuid.UUID, projectID *uuid.UUID, status string) ([]*model.Task, error)
	LogTime(ctx context.Context, userID, projectID uuid.UUID, taskID *uuid.UUID, minutes int, description string) (*model.TimeEntry, error)
	CreateProject(ctx context.Context, userID, orgID uuid.UUID, name, description string) (*model.Project, error)
}

// ToolAuthorizer AI 策略检查与审计
type ToolAuthorizer interface {
	Authorize(ctx context.Context, req ToolRequest) (*Decision, error)
	Record(ctx context.Context, d *Decision, output any)
}

type Conversation struct {
	ID             uuid.UUID     `json:"id"`
	UserID         uuid.UUID     `json:"user_id"`
	OrganizationID uuid.UUID     `json:"organization_id"`
	Locale         string        `json:"locale"`
	Messages       []llm.Message `json:"messages"`
	StartedAt      time.Time     `json:"started_at"`
	LastActive     time.Time     `json:"last_active"`

	tag language.Tag
}

type VoiceResult struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Intent         string    `json:"intent"`
	Confidence     float64   `json:"confidence"`
	Executed       bool      `json:"executed"`
	Reply          string    `json:"reply"`
	Data           any       `json:"data,omitempty"`
}

type VoiceOptions struct {
	IdleTTL       time.Duration
	MaxHistory    int
	MinConfidence float64
}

type VoiceService struct {
	chat    llm.ChatClient
	actions VoiceActions
	policy  ToolAuthorizer
	tr      *i18n.Translator
	opts    VoiceOptions
	logger  *zap.Logger
	now     func() time.Time

	mu            sync.Mutex
	conversations map[uuid.UUID]*Conversation
}

func NewVoiceService(chat llm.ChatClient, actions VoiceActions, policy ToolAuthorizer, tr *i18n.Translator, opts VoiceOptions, logger *zap.Logger) *VoiceService {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 20
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = 0.5
	}
	return &VoiceService{
		chat:          chat,
		actions:       actions,
		policy:        policy,
		tr:            tr,
		opts:          opts,
		logger:        logger,
		now:           time.Now,
		conversations: make(map[uuid.UUID]*Conversation),
	}
}

// Start 新建会话，返回问候语
func (s *VoiceService) Start(ctx context.Context, userID, orgID uuid.UUID, locale string) (*Conversation, string) {
	s.Sweep()
	now := s.now()
	tag := s.tr.Tag(locale)
	c := &Conversation{
		ID:             uuid.New(),
		UserID:         userID,
		OrganizationID: orgID,
		Locale:         tag.String(),
		StartedAt:      now,
		LastActive:     now,
		tag:            tag,
	}
	greeting := s.tr.Sprintf(tag, i18n.VoiceGreeting)
	c.Messages = []llm.Message{{Role: llm.RoleAssistant, Content: greeting}}

	s.mu.Lock()
	s.conversations[c.ID] = c
	s.mu.Unlock()

	s.logger.Info("Voice conversation started",
		zap.String("conversation_id", c.ID.String()),
		zap.String("user_id", userID.String()),
	)
	return c, greeting
}

// get 只有会话所有者可以访问；过期会话视为不存在
func (s *VoiceService) get(userID, id uuid.UUID) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok || c.UserID != userID {
		return nil, ErrNotFound
	}
	if s.now().Sub(c.LastActive) > s.opts.IdleTTL {
		delete(s.conversations, id)
		return nil, ErrNotFound
	}
	return c, nil
}

// History 返回消息副本
func (s *VoiceService) History(ctx context.Context, userID, id uuid.UUID) ([]llm.Message, error) {
	c, err := s.get(userID, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), c.Messages...), nil
}

func (s *VoiceService) End(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.get(userID, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.conversations, id)
	s.mu.Unlock()
	return nil
}

// Sweep 清理空闲会话，返回清理数量
func (s *VoiceService) Sweep() int {
	cutoff := s.now().Add(-s.opts.IdleTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.conversations {
		if c.LastActive.Before(cutoff) {
			delete(s.conversations, id)
			n++
		}
	}
	return n
}

// Run 定期清理，直到 ctx 结束
func (s *VoiceService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("Expired voice conversations", zap.Int("count", n))
			}
		}
	}
}

func (s *VoiceService) Process(ctx context.Context, userID, conversationID uuid.UUID, transcript string) (*VoiceResult, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, fmt.Errorf("%w: empty transcript", ErrInvalidInput)
	}
	c, err := s.get(userID, conversationID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	c.Messages = append(c.Messages, llm.Message{Role: llm.RoleUser, Content: transcript})
	c.LastActive = s.now()
	prompt := append([]llm.Message{{Role: llm.RoleSystem, Content: systemPrompt(s.now())}}, c.Messages...)
	s.mu.Unlock()

	res := &VoiceResult{ConversationID: c.ID, Intent: IntentUnknown}
	raw, err := s.chat.Complete(ctx, prompt)
	switch {
	case err != nil:
		s.logger.Warn("Voice LLM call failed", zap.String("conversation_id", c.ID.String()), zap.Error(err))
		res.Reply = s.tr.Sprintf(c.tag, i18n.VoiceUnavailable)
		metrics.IncrementVoiceIntent(IntentUnknown, outcomeUnavailable)
	default:
		intent, perr := ParseIntent(raw)
		if perr != nil {
			s.logger.Warn("Unparseable voice intent", zap.Error(perr), zap.String("raw", truncate(raw, 200)))
			intent = VoiceIntent{Intent: IntentUnknown}
		}
		res.Intent, res.Confidence = intent.Intent, intent.Confidence
		s.dispatch(ctx, c, intent, res)
	}

	s.mu.Lock()
	c.Messages = append(c.Messages, llm.Message{Role: llm.RoleAssistant, Content: res.Reply})
	if over := len(c.Messages) - s.opts.MaxHistory; over > 0 {
		c.Messages = append([]llm.Message(nil), c.Messages[over:]...)
	}
	c.LastActive = s.now()
	s.mu.Unlock()
	return res, nil
}

func (s *VoiceService) dispatch(ctx context.Context, c *Conversation, in VoiceIntent, res *VoiceResult) {
	known := false
	for _, t := range model.VoiceTools {
		if t == in.Intent {
			known = true
		}
	}
	if !known || in.Confidence < s.opts.MinConfidence {
		res.Reply = in.Reply
		if res.Reply == "" || known {
			res.Reply = s.tr.Sprintf(c.tag, i18n.VoiceClarify)
		}
		metrics.IncrementVoiceIntent(in.Intent, outcomeClarify)
		return
	}

	data, reply, err := s.execute(ctx, c, in)
	switch {
	case errors.Is(err, ErrPolicyDenied), errors.Is(err, ErrForbidden):
		res.Reply = s.tr.Sprintf(c.tag, i18n.VoiceDenied, strings.ReplaceAll(in.Intent, "_", " "))
		metrics.IncrementVoiceIntent(in.Intent, outcomeDenied)
	case err != nil:
		s.logger.Warn("Voice intent failed", zap.String("intent", in.Intent), zap.Error(err))
		res.Reply = reply
		if res.Reply == "" {
			res.Reply = s.tr.Sprintf(c.tag, i18n.VoiceClarify)
		}
		metrics.IncrementVoiceIntent(in.Intent, outcomeFailed)
	default:
		res.Executed = true
		res.Data = data
		res.Reply = reply
		metrics.IncrementVoiceIntent(in.Intent, outcomeExecuted)
	}
}

// errNeedsInput 意图缺少必要实体；reply 已经是给用户的提示
var errNeedsInput = errors.New("missing entity")

func (s *VoiceService) execute(ctx context.Context, c *Conversation, in VoiceIntent) (any, string, error) {
	e := in.Entities
	req := ToolRequest{OrganizationID: c.OrganizationID, UserID: c.UserID, Tool: in.Intent, Input: e}

	switch in.Intent {
	case model.ToolCreateTask:
		if strings.TrimSpace(e.Title) == "" {
			return nil, "", errNeedsInput
		}
		p, reply, err := s.project(ctx, c, e.Project)
		if err != nil {
			return nil, reply, err
		}
		req.ProjectID, req.TaskCount = &p.ID, 1
		return s.authorized(ctx, req, func() (any, string, error) {
			t, err := s.actions.CreateTask(ctx, c.UserID, p.ID, e)
			if err != nil {
				return nil, "", err
			}
			return t, s.tr.Sprintf(c.tag, i18n.VoiceTaskCreated, t.Title), nil
		})

	case model.ToolUpdateTaskStatus:
		status := model.TaskStatus(strings.ReplaceAll(strings.ToLower(e.Status), " ", "_"))
		if !validTaskStatus(status) || e.Task == "" {
			return nil, "", errNeedsInput
		}
		t, err := s.actions.FindTask(ctx, c.UserID, c.OrganizationID, e.Task)
		if errors.Is(err, ErrNotFound) {
			return nil, s.tr.Sprintf(c.tag, i18n.VoiceTaskNotFound, e.Task), err
		}
		if err != nil {
			return nil, "", err
		}
		req.ProjectID, req.TaskCount = &t.ProjectID, 1
		return s.authorized(ctx, req, func() (any, string, error) {
			t, err := s.actions.UpdateTaskStatus(ctx, c.UserID, t.ID, status)
			if err != nil {
				return nil, "", err
			}
			return t, s.tr.Sprintf(c.tag, i18n.VoiceStatusUpdated, t.Title, string(t.Status)), nil
		})

	case model.ToolListTasks:
		var projectID *uuid.UUID
		if e.Project != "" {
			p, reply, err := s.project(ctx, c, e.Project)
			if err != nil {
				return nil, reply, err
			}
			projectID, req.ProjectID = &p.ID, &p.ID
		}
		return s.authorized(ctx, req, func() (any, string, error) {
			tasks, err := s.actions.ListTasks(ctx, c.UserID, c.OrganizationID, projectID, e.Status)
			if err != nil {
				return nil, "", err
			}
			return tasks, s.tr.Sprintf(c.tag, i18n.VoiceTasksListed, len(tasks)), nil
		})

	case model.ToolLogTime:
		minutes := e.Minutes
		if minutes <= 0 && e.Hours > 0 {
			minutes = int(e.Hours*60 + 0.5)
		}
		if minutes <= 0 || minutes > 24*60 {
			return nil, "", errNeedsInput
		}
		var taskID *uuid.UUID
		var projectID uuid.UUID
		if e.Task != "" {
			t, err := s.actions.FindTask(ctx, c.UserID, c.OrganizationID, e.Task)
			if errors.Is(err, ErrNotFound) {
				return nil, s.tr.Sprintf(c.tag, i18n.VoiceTaskNotFound, e.Task), err
			}
			if err != nil {
				return nil, "", err
			}
			taskID, projectID = &t.ID, t.ProjectID
		} else {
			p, reply, err := s.project(ctx, c, e.Project)
			if err != nil {
				return nil, reply, err
			}
			projectID = p.ID
		}
		req.ProjectID = &projectID
		return s.authorized(ctx, req, func() (any, string, error) {
			entry, err := s.actions.LogTime(ctx, c.UserID, projectID, taskID, minutes, e.Description)
			if err != nil {
				return nil, "", err
			}
			return entry, s.tr.Sprintf(c.tag, i18n.VoiceTimeLogged, model.FormatDuration(entry.DurationMinutes)), nil
		})

	case model.ToolCreateProject:
		name := strings.TrimSpace(e.Name)
		if name == "" {
			name = strings.TrimSpace(e.Title)
		}
		if name == "" {
			return nil, "", errNeedsInput
		}
		return s.authorized(ctx, req, func() (any, string, error) {
			p, err := s.actions.CreateProject(ctx, c.UserID, c.OrganizationID, name, e.Description)
			if err != nil {
				return nil, "", err
			}
			return p, s.tr.Sprintf(c.tag, i18n.VoiceProjectCreated, p.Name), nil
		})
	}
	return nil, "", errNeedsInput
}

// authorized 策略允许后执行并记录审计
func (s *VoiceService) authorized(ctx context.Context, req ToolRequest, run func() (any, string, error)) (any, string, error) {
	d, err := s.policy.Authorize(ctx, req)
	if err != nil {
		return nil, "", err
	}
	data, reply, err := run()
	if err != nil {
		return nil, "", err
	}
	s.policy.Record(ctx, d, data)
	return data, reply, nil
}

func (s *VoiceService) project(ctx context.Context, c *Conversation, name string) (*model.Project, string, error) {
	p, err := s.actions.FindProject(ctx, c.UserID, c.OrganizationID, name)
	if errors.Is(err, ErrNotFound) {
		return nil, s.tr.Sprintf(c.tag, i18n.VoiceNoProject), err
	}
	return p, "", err
}

func validTaskStatus(st model.TaskStatus) bool {
	for _, v := range model.TaskStatuses {
		if v == st {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func systemPrompt(now time.Time) string {
	return `You are Foco's voice assistant for a project management app.
Today is ` + now.UTC().Format("2006-01-02 (Monday)") + `.
Classify the user's latest request and answer with ONE JSON object and nothing else:
{"intent": "...", "confidence": 0.0-1.0, "entities": {...}, "reply": "..."}

intent is one of: create_task, update_task_status, list_tasks, log_time, create_project, unknown.
entities may contain:
  title, description, project, priority (low|medium|high|urgent), due_date (YYYY-MM-DD)   for create_task
  task, status (todo|in_progress|review|done|blocked)                                      for update_task_status
  project, status                                                                          for list_tasks
  task or project, minutes or hours, description                                           for log_time
  name, description                                                                        for create_project
Use "unknown" with a short clarifying question in reply when the request is ambiguous.`
}
