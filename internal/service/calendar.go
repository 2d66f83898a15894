package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/model"
	"foco/internal/repository"
	"foco/pkg/rbac"
)

type CalendarFilter struct {
	ProjectID uuid.UUID
	Kinds     []model.CalendarEventKind // 为空表示全部
	UserID    uuid.UUID                 // 非空时只保留该用户的任务和工时
}

func (f CalendarFilter) wants(kind model.CalendarEventKind) bool {
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

type CalendarService struct {
	orgs       *OrganizationService
	projects   *repository.ProjectRepository
	milestones *repository.MilestoneRepository
	tasks      *repository.TaskRepository
	entries    *repository.TimeEntryRepository
	logger     *zap.Logger
}

func NewCalendarService(orgs *OrganizationService, projects *repository.ProjectRepository, milestones *repository.MilestoneRepository, tasks *repository.TaskRepository, entries *repository.TimeEntryRepository, logger *zap.Logger) *CalendarService {
	return &CalendarService{orgs: orgs, projects: projects, milestones: milestones, tasks: tasks, entries: entries, logger: logger}
}

func (s *CalendarService) Events(ctx context.Context, userID, orgID uuid.UUID, from, to time.Time, f CalendarFilter) ([]model.CalendarEvent, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: to must be after from", ErrInvalidInput)
	}
	if _, err := s.orgs.Authorize(ctx, orgID, userID, rbac.PermissionReadProject); err != nil {
		return nil, err
	}

	projects, err := s.projects.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	milestones, err := s.milestones.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	var entries []*model.TimeEntry
	if f.wants(model.EventTimeEntry) {
		entries, err = s.entries.List(ctx, repository.TimeEntryFilter{OrganizationID: orgID, ProjectID: f.ProjectID, UserID: f.UserID, From: from, To: to})
		if err != nil {
			return nil, err
		}
	}
	return BuildCalendar(projects, milestones, tasks, entries, from, to, f), nil
}

// BuildCalendar 合并各类日期为事件，只保留与 [from, to) 相交的，按开始时间、标题排序
func BuildCalendar(projects []*model.Project, milestones []*model.Milestone, tasks []*model.Task, entries []*model.TimeEntry, from, to time.Time, f CalendarFilter) []model.CalendarEvent {
	colors := make(map[uuid.UUID]string, len(projects))
	for _, p := range projects {
		colors[p.ID] = p.Color
	}
	inProject := func(id uuid.UUID) bool {
		return f.ProjectID == uuid.Nil || f.ProjectID == id
	}

	out := []model.CalendarEvent{}
	add := func(ev model.CalendarEvent) {
		if !f.wants(ev.Kind) || !inProject(ev.ProjectID) {
			return
		}
		if ev.End.Before(ev.Start) {
			ev.End = ev.Start
		}
		// 与区间相交：start < to && end >= from
		if ev.Start.Before(to) && !ev.End.Before(from) {
			ev.Color = colors[ev.ProjectID]
			out = append(out, ev)
		}
	}
	allDay := func(id string, kind model.CalendarEventKind, title string, d time.Time, projectID uuid.UUID) {
		add(model.CalendarEvent{ID: id, Kind: kind, Title: title, Start: d, End: d, AllDay: true, ProjectID: projectID})
	}

	for _, p := range projects {
		if p.StartDate != nil {
			allDay("project-start-"+p.ID.String(), model.EventProjectStart, p.Name, *p.StartDate, p.ID)
		}
		if p.DueDate != nil {
			allDay("project-due-"+p.ID.String(), model.EventProjectDue, p.Name, *p.DueDate, p.ID)
		}
	}
	for _, m := range milestones {
		if m.DueDate != nil {
			allDay("milestone-"+m.ID.String(), model.EventMilestoneDue, m.Title, *m.DueDate, m.ProjectID)
		}
	}
	for _, t := range tasks {
		if t.DueDate == nil {
			continue
		}
		if f.UserID != uuid.Nil && (t.AssigneeID == nil || *t.AssigneeID != f.UserID) {
			continue
		}
		allDay("task-"+t.ID.String(), model.EventTaskDue, t.Title, *t.DueDate, t.ProjectID)
	}
	for _, e := range entries {
		if f.UserID != uuid.Nil && e.UserID != f.UserID {
			continue
		}
		end := e.StartTime.Add(time.Duration(e.DurationMinutes) * time.Minute)
		if e.EndTime != nil {
			end = *e.EndTime
		}
		title := e.Description
		if title == "" {
			title = model.FormatDuration(e.DurationMinutes)
		}
		add(model.CalendarEvent{ID: "time-" + e.ID.String(), Kind: model.EventTimeEntry, Title: title, Start: e.StartTime, End: end, ProjectID: e.ProjectID})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Title < out[j].Title
	})
	return out
}
