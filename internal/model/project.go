package model

import (
	"time"

	"github.com/google/uuid"
)

type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "planning"
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCompleted ProjectStatus = "completed"
	ProjectCancelled ProjectStatus = "cancelled"
)

var ProjectStatuses = []ProjectStatus{ProjectPlanning, ProjectActive, ProjectOnHold, ProjectCompleted, ProjectCancelled}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// Rank 用于排序：urgent 最大
func (p Priority) Rank() int {
	for i, v := range Priorities {
		if v == p {
			return i + 1
		}
	}
	return 0
}

type Project struct {
	ID             uuid.UUID     `json:"id"`
	OrganizationID uuid.UUID     `json:"organization_id"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	Status         ProjectStatus `json:"status"`
	Priority       Priority      `json:"priority"`
	StartDate      *time.Time    `json:"start_date,omitempty"`
	DueDate        *time.Time    `json:"due_date,omitempty"`
	Progress       int           `json:"progress"`
	Color          string        `json:"color"`
	CreatedBy      uuid.UUID     `json:"created_by"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// IsClosed completed 或 cancelled 的项目不再接受新任务
func (p *Project) IsClosed() bool {
	return p.Status == ProjectCompleted || p.Status == ProjectCancelled
}

func (p *Project) FieldValue(name string) (any, bool) {
	switch name {
	case "id":
		return p.ID.String(), true
	case "name":
		return p.Name, true
	case "description":
		return p.Description, true
	case "status":
		return string(p.Status), true
	case "priority":
		return string(p.Priority), true
	case "priority_rank":
		return p.Priority.Rank(), true
	case "start_date":
		return timeOrNil(p.StartDate), true
	case "due_date":
		return timeOrNil(p.DueDate), true
	case "progress":
		return p.Progress, true
	case "created_at":
		return p.CreatedAt, true
	case "updated_at":
		return p.UpdatedAt, true
	}
	return nil, false
}

type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "pending"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneCompleted  MilestoneStatus = "completed"
	MilestoneCancelled  MilestoneStatus = "cancelled"
)

var MilestoneStatuses = []MilestoneStatus{MilestonePending, MilestoneInProgress, MilestoneCompleted, MilestoneCancelled}

type Milestone struct {
	ID          uuid.UUID       `json:"id"`
	ProjectID   uuid.UUID       `json:"project_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	Status      MilestoneStatus `json:"status"`
	Progress    int             `json:"progress"`
	Position    int             `json:"position"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (m *Milestone) FieldValue(name string) (any, bool) {
	switch name {
	case "id":
		return m.ID.String(), true
	case "title":
		return m.Title, true
	case "description":
		return m.Description, true
	case "status":
		return string(m.Status), true
	case "due_date":
		return timeOrNil(m.DueDate), true
	case "progress":
		return m.Progress, true
	case "position":
		return m.Position, true
	case "created_at":
		return m.CreatedAt, true
	}
	return nil, false
}

// timeOrNil 让可选时间在过滤引擎里表现为缺失值
func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func uuidOrNil(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
