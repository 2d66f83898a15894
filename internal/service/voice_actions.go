package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"foco/internal/filtering"
	"foco/internal/model"
	"foco/internal/validation"
)

// ServiceVoiceActions 把语音意图映射到 Project/Task/TimeTracking 服务，权限检查沿用这些服务
type ServiceVoiceActions struct {
	projects *ProjectService
	tasks    *TaskService
	time     *TimeTrackingService
	now      func() time.Time
}

func NewServiceVoiceActions(projects *ProjectService, tasks *TaskService, tt *TimeTrackingService) *ServiceVoiceActions {
	return &ServiceVoiceActions{projects: projects, tasks: tasks, time: tt, now: time.Now}
}

// FindProject 名字为空且组织内只有一个进行中的项目时直接使用它
func (a *ServiceVoiceActions) FindProject(ctx context.Context, userID, orgID uuid.UUID, name string) (*model.Project, error) {
	page, err := a.projects.List(ctx, userID, orgID, filtering.Options{})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		var open []*model.Project
		for _, p := range page.Items {
			if !p.IsClosed() {
				open = append(open, p)
			}
		}
		if len(open) == 1 {
			return open[0], nil
		}
		return nil, ErrNotFound
	}
	if p := bestMatch(page.Items, name, func(p *model.Project) string { return p.Name }); p != nil {
		return p, nil
	}
	return nil, ErrNotFound
}

func (a *ServiceVoiceActions) FindTask(ctx context.Context, userID, orgID uuid.UUID, title string) (*model.Task, error) {
	page, err := a.tasks.ListForOrg(ctx, userID, orgID, filtering.Options{Sort: []filtering.SortKey{{Field: "updated_at", Desc: true}}})
	if err != nil {
		return nil, err
	}
	if t := bestMatch(page.Items, title, func(t *model.Task) string { return t.Title }); t != nil {
		return t, nil
	}
	return nil, ErrNotFound
}

func (a *ServiceVoiceActions) CreateTask(ctx context.Context, userID, projectID uuid.UUID, e VoiceEntities) (*model.Task, error) {
	in := validation.TaskInput{
		Title:       strings.TrimSpace(e.Title),
		Description: e.Description,
		Priority:    model.Priority(strings.ToLower(e.Priority)),
	}
	if !validPriority(in.Priority) {
		in.Priority = ""
	}
	if d, err := time.Parse(time.DateOnly, e.DueDate); err == nil {
		in.DueDate = &d
	}
	return a.tasks.Create(ctx, userID, projectID, in, SourceVoice)
}

func (a *ServiceVoiceActions) UpdateTaskStatus(ctx context.Context, userID, taskID uuid.UUID, status model.TaskStatus) (*model.Task, error) {
	return a.tasks.Update(ctx, userID, taskID, validation.TaskUpdateInput{Status: &status})
}

func (a *ServiceVoiceActions) ListTasks(ctx context.Context, userID, orgID uuid.UUID, projectID *uuid.UUID, status string) ([]*model.Task, error) {
	opts := filtering.Options{Sort: []filtering.SortKey{{Field: "due_date"}, {Field: "priority_rank", Desc: true}}}
	if status != "" {
		opts.Conditions = append(opts.Conditions, filtering.Condition{Field: "status", Operator: filtering.OpEq, Value: strings.ReplaceAll(strings.ToLower(status), " ", "_")})
	}
	var (
		page filtering.Page[*model.Task]
		err  error
	)
	if projectID != nil {
		page, err = a.tasks.List(ctx, userID, *projectID, opts)
	} else {
		page, err = a.tasks.ListForOrg(ctx, userID, orgID, opts)
	}
	return page.Items, err
}

// LogTime 记录以当前时间结束的一段工时
func (a *ServiceVoiceActions) LogTime(ctx context.Context, userID, projectID uuid.UUID, taskID *uuid.UUID, minutes int, description string) (*model.TimeEntry, error) {
	return a.time.LogEntry(ctx, userID, validation.TimeEntryInput{
		ProjectID:       projectID,
		TaskID:          taskID,
		Description:     description,
		StartTime:       a.now().UTC().Add(-time.Duration(minutes) * time.Minute),
		DurationMinutes: &minutes,
	})
}

func (a *ServiceVoiceActions) CreateProject(ctx context.Context, userID, orgID uuid.UUID, name, description string) (*model.Project, error) {
	return a.projects.Create(ctx, userID, orgID, validation.ProjectCreateInput{Name: name, Description: description, Status: model.ProjectActive})
}

// bestMatch 完全匹配优先，其次前缀，最后包含（均不区分大小写）
func bestMatch[T any](items []T, query string, name func(T) string) T {
	var zero T
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return zero
	}
	for _, match := range []func(string) bool{
		func(s string) bool { return s == q },
		func(s string) bool { return strings.HasPrefix(s, q) },
		func(s string) bool { return strings.Contains(s, q) },
	} {
		for _, it := range items {
			if match(strings.ToLower(name(it))) {
				return it
			}
		}
	}
	return zero
}

func validPriority(p model.Priority) bool {
	for _, v := range model.Priorities {
		if v == p {
			return true
		}
	}
	return false
}
