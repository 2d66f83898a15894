package mq

import (
	"time"

	"github.com/google/uuid"
)

type TaskCreatedPayload struct {
	TaskID    uuid.UUID `json:"task_id"`
	ProjectID uuid.UUID `json:"project_id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedBy uuid.UUID `json:"created_by"`
	Source    string    `json:"source"` // api / voice / import
	TraceID   string    `json:"trace_id,omitempty"`
}

type TaskAssignedPayload struct {
	TaskID         uuid.UUID  `json:"task_id"`
	ProjectID      uuid.UUID  `json:"project_id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	Title          string     `json:"title"`
	AssigneeID     uuid.UUID  `json:"assignee_id"`
	AssignedBy     uuid.UUID  `json:"assigned_by"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	TraceID        string     `json:"trace_id,omitempty"`
}

// TaskStatusChangedPayload EventID 每次状态变更唯一，用于区分同一任务的多次往返
type TaskStatusChangedPayload struct {
	EventID   uuid.UUID `json:"event_id"`
	TaskID    uuid.UUID `json:"task_id"`
	ProjectID uuid.UUID `json:"project_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedBy uuid.UUID `json:"changed_by"`
	TraceID   string    `json:"trace_id,omitempty"`
}
