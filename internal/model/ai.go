package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLevel string

const (
	AuditNone  AuditLevel = "none"
	AuditBasic AuditLevel = "basic"
	AuditFull  AuditLevel = "full"
)

// 语音助手可调用的工具
const (
	ToolCreateTask       = "create_task"
	ToolUpdateTaskStatus = "update_task_status"
	ToolListTasks        = "list_tasks"
	ToolLogTime          = "log_time"
	ToolCreateProject    = "create_project"
	ToolDeleteTask       = "delete_task"
)

var VoiceTools = []string{ToolCreateTask, ToolUpdateTaskStatus, ToolListTasks, ToolLogTime, ToolCreateProject}

type AIConstraints struct {
	MaxTasksPerRequest int         `json:"max_tasks_per_request"`
	AllowDelete        bool        `json:"allow_delete"`
	AllowedProjectIDs  []uuid.UUID `json:"allowed_project_ids,omitempty"`
}

type AIPolicy struct {
	OrganizationID uuid.UUID     `json:"organization_id"`
	EnabledTools   []string      `json:"enabled_tools"`
	Constraints    AIConstraints `json:"constraints"`
	AuditLevel     AuditLevel    `json:"audit_level"`
	UpdatedBy      *uuid.UUID    `json:"updated_by,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// DefaultAIPolicy 组织未配置时使用的策略
func DefaultAIPolicy(orgID uuid.UUID) *AIPolicy {
	return &AIPolicy{
		OrganizationID: orgID,
		EnabledTools:   append([]string(nil), VoiceTools...),
		Constraints: AIConstraints{
			MaxTasksPerRequest: 10,
			AllowDelete:        false,
		},
		AuditLevel: AuditBasic,
	}
}

func (p *AIPolicy) ToolEnabled(tool string) bool {
	for _, t := range p.EnabledTools {
		if t == tool {
			return true
		}
	}
	return false
}

// ProjectAllowed 空列表表示不限制
func (p *AIPolicy) ProjectAllowed(projectID uuid.UUID) bool {
	if len(p.Constraints.AllowedProjectIDs) == 0 {
		return true
	}
	for _, id := range p.Constraints.AllowedProjectIDs {
		if id == projectID {
			return true
		}
	}
	return false
}

type AIAuditEntry struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	UserID         uuid.UUID       `json:"user_id"`
	Tool           string          `json:"tool"`
	Allowed        bool            `json:"allowed"`
	Reason         string          `json:"reason,omitempty"`
	Input          json.RawMessage `json:"input,omitempty"`
	Output         json.RawMessage `json:"output,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type CalendarEventKind string

const (
	EventTaskDue      CalendarEventKind = "task_due"
	EventMilestoneDue CalendarEventKind = "milestone_due"
	EventProjectStart CalendarEventKind = "project_start"
	EventProjectDue   CalendarEventKind = "project_due"
	EventTimeEntry    CalendarEventKind = "time_entry"
)

type CalendarEvent struct {
	ID        string            `json:"id"`
	Kind      CalendarEventKind `json:"kind"`
	Title     string            `json:"title"`
	Start     time.Time         `json:"start"`
	End       time.Time         `json:"end"`
	AllDay    bool              `json:"all_day"`
	ProjectID uuid.UUID         `json:"project_id"`
	Color     string            `json:"color,omitempty"`
}
