package model

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskReview     TaskStatus = "review"
	TaskDone       TaskStatus = "done"
	TaskBlocked    TaskStatus = "blocked"
)

var TaskStatuses = []TaskStatus{TaskTodo, TaskInProgress, TaskReview, TaskDone, TaskBlocked}

type Task struct {
	ID             uuid.UUID  `json:"id"`
	ProjectID      uuid.UUID  `json:"project_id"`
	MilestoneID    *uuid.UUID `json:"milestone_id,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         TaskStatus `json:"status"`
	Priority       Priority   `json:"priority"`
	AssigneeID     *uuid.UUID `json:"assignee_id,omitempty"`
	ReporterID     uuid.UUID  `json:"reporter_id"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty"`
	ActualHours    float64    `json:"actual_hours"`
	Position       int        `json:"position"`
	Tags           []string   `json:"tags"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (t *Task) IsDone() bool {
	return t.Status == TaskDone
}

// IsOverdue 有截止日期、未完成且已过期
func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && !t.IsDone() && t.DueDate.Before(now)
}

// CompletedOnTime 完成时间不晚于截止日期；没有截止日期的已完成任务视为准时
func (t *Task) CompletedOnTime() bool {
	if !t.IsDone() {
		return false
	}
	if t.DueDate == nil || t.CompletedAt == nil {
		return true
	}
	return !t.CompletedAt.After(*t.DueDate)
}

func (t *Task) FieldValue(name string) (any, bool) {
	switch name {
	case "id":
		return t.ID.String(), true
	case "project_id":
		return t.ProjectID.String(), true
	case "milestone_id":
		return uuidOrNil(t.MilestoneID), true
	case "title":
		return t.Title, true
	case "description":
		return t.Description, true
	case "status":
		return string(t.Status), true
	case "priority":
		return string(t.Priority), true
	case "priority_rank":
		return t.Priority.Rank(), true
	case "assignee_id":
		return uuidOrNil(t.AssigneeID), true
	case "reporter_id":
		return t.ReporterID.String(), true
	case "due_date":
		return timeOrNil(t.DueDate), true
	case "estimated_hours":
		if t.EstimatedHours == nil {
			return nil, true
		}
		return *t.EstimatedHours, true
	case "actual_hours":
		return t.ActualHours, true
	case "position":
		return t.Position, true
	case "tags":
		return t.Tags, true
	case "completed_at":
		return timeOrNil(t.CompletedAt), true
	case "created_at":
		return t.CreatedAt, true
	case "updated_at":
		return t.UpdatedAt, true
	}
	return nil, false
}
