package validation

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"foco/internal/model"
	"foco/pkg/rbac"
)

type RegisterInput struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Username    string `json:"username" validate:"required,username"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"max=100"`
	Locale      string `json:"locale" validate:"omitempty,oneof=en es fr de"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type OrganizationInput struct {
	Name        string `json:"name" validate:"required,notblank,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

type MemberInput struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Role   rbac.Role `json:"role" validate:"required,oneof=owner admin member viewer"`
}

type MemberRoleInput struct {
	Role rbac.Role `json:"role" validate:"required,oneof=owner admin member viewer"`
}

type ProjectCreateInput struct {
	Name        string              `json:"name" validate:"required,notblank,max=200"`
	Description string              `json:"description" validate:"max=5000"`
	Status      model.ProjectStatus `json:"status" validate:"omitempty,oneof=planning active on_hold completed cancelled"`
	Priority    model.Priority      `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	StartDate   *time.Time          `json:"start_date"`
	DueDate     *time.Time          `json:"due_date"`
	Color       string              `json:"color" validate:"omitempty,hexcolor"`
}

type ProjectUpdateInput struct {
	Name        *string              `json:"name" validate:"omitempty,notblank,max=200"`
	Description *string              `json:"description" validate:"omitempty,max=5000"`
	Status      *model.ProjectStatus `json:"status" validate:"omitempty,oneof=planning active on_hold completed cancelled"`
	Priority    *model.Priority      `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	StartDate   *time.Time           `json:"start_date"`
	DueDate     *time.Time           `json:"due_date"`
	Progress    *int                 `json:"progress" validate:"omitempty,min=0,max=100"`
	Color       *string              `json:"color" validate:"omitempty,hexcolor"`
}

type MilestoneCreateInput struct {
	Title       string                `json:"title" validate:"required,notblank,max=200"`
	Description string                `json:"description" validate:"max=5000"`
	DueDate     *time.Time            `json:"due_date"`
	Status      model.MilestoneStatus `json:"status" validate:"omitempty,oneof=pending in_progress completed cancelled"`
}

type MilestoneUpdateInput struct {
	Title       *string                `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string                `json:"description" validate:"omitempty,max=5000"`
	DueDate     *time.Time             `json:"due_date"`
	Status      *model.MilestoneStatus `json:"status" validate:"omitempty,oneof=pending in_progress completed cancelled"`
	Position    *int                   `json:"position" validate:"omitempty,min=0"`
}

type TaskInput struct {
	Title          string           `json:"title" validate:"required,notblank,max=200"`
	Description    string           `json:"description" validate:"max=10000"`
	Status         model.TaskStatus `json:"status" validate:"omitempty,oneof=todo in_progress review done blocked"`
	Priority       model.Priority   `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	MilestoneID    *uuid.UUID       `json:"milestone_id"`
	AssigneeID     *uuid.UUID       `json:"assignee_id"`
	DueDate        *time.Time       `json:"due_date"`
	EstimatedHours *float64         `json:"estimated_hours" validate:"omitempty,gte=0,lte=10000"`
	Tags           []string         `json:"tags" validate:"max=20,dive,notblank,max=50"`
}

type TaskUpdateInput struct {
	Title          *string           `json:"title" validate:"omitempty,notblank,max=200"`
	Description    *string           `json:"description" validate:"omitempty,max=10000"`
	Status         *model.TaskStatus `json:"status" validate:"omitempty,oneof=todo in_progress review done blocked"`
	Priority       *model.Priority   `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	MilestoneID    *uuid.UUID        `json:"milestone_id"`
	AssigneeID     *uuid.UUID        `json:"assignee_id"`
	ClearAssignee  bool              `json:"clear_assignee"`
	DueDate        *time.Time        `json:"due_date"`
	EstimatedHours *float64          `json:"estimated_hours" validate:"omitempty,gte=0,lte=10000"`
	Tags           *[]string         `json:"tags" validate:"omitempty,max=20,dive,notblank,max=50"`
}

type TaskMoveInput struct {
	Status model.TaskStatus `json:"status" validate:"required,oneof=todo in_progress review done blocked"`
	Index  int              `json:"index" validate:"min=0"`
}

type BulkStatusInput struct {
	TaskIDs []uuid.UUID      `json:"task_ids" validate:"required,min=1,max=100"`
	Status  model.TaskStatus `json:"status" validate:"required,oneof=todo in_progress review done blocked"`
}

type TimeEntryInput struct {
	ProjectID       uuid.UUID  `json:"project_id" validate:"required"`
	TaskID          *uuid.UUID `json:"task_id"`
	Description     string     `json:"description" validate:"max=2000"`
	StartTime       time.Time  `json:"start_time" validate:"required"`
	EndTime         *time.Time `json:"end_time"`
	DurationMinutes *int       `json:"duration_minutes" validate:"omitempty,gte=1,lte=1440"`
	Billable        bool       `json:"billable"`
	HourlyRate      *float64   `json:"hourly_rate" validate:"omitempty,gte=0"`
}

type TimerStartInput struct {
	ProjectID   uuid.UUID  `json:"project_id" validate:"required"`
	TaskID      *uuid.UUID `json:"task_id"`
	Description string     `json:"description" validate:"max=2000"`
	Billable    bool       `json:"billable"`
	HourlyRate  *float64   `json:"hourly_rate" validate:"omitempty,gte=0"`
}

type CommentInput struct {
	EntityType model.EntityType `json:"entity_type" validate:"required,oneof=task project milestone"`
	EntityID   uuid.UUID        `json:"entity_id" validate:"required"`
	Content    string           `json:"content" validate:"required,notblank,max=10000"`
	ParentID   *uuid.UUID       `json:"parent_id"`
}

type CommentUpdateInput struct {
	Content string `json:"content" validate:"required,notblank,max=10000"`
}

type GoalInput struct {
	Title        string           `json:"title" validate:"required,notblank,max=200"`
	Description  string           `json:"description" validate:"max=5000"`
	ProjectID    *uuid.UUID       `json:"project_id"`
	TargetValue  float64          `json:"target_value" validate:"gte=0"`
	CurrentValue float64          `json:"current_value" validate:"gte=0"`
	Unit         string           `json:"unit" validate:"max=32"`
	Status       model.GoalStatus `json:"status" validate:"omitempty,oneof=not_started on_track at_risk off_track completed"`
	DueDate      *time.Time       `json:"due_date"`
}

type GoalUpdateInput struct {
	Title       *string           `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string           `json:"description" validate:"omitempty,max=5000"`
	TargetValue *float64          `json:"target_value" validate:"omitempty,gte=0"`
	Unit        *string           `json:"unit" validate:"omitempty,max=32"`
	Status      *model.GoalStatus `json:"status" validate:"omitempty,oneof=not_started on_track at_risk off_track completed"`
	DueDate     *time.Time        `json:"due_date"`
}

type GoalProgressInput struct {
	CurrentValue float64           `json:"current_value" validate:"gte=0"`
	Status       *model.GoalStatus `json:"status" validate:"omitempty,oneof=not_started on_track at_risk off_track completed"`
}

type AIConstraintsInput struct {
	MaxTasksPerRequest int         `json:"max_tasks_per_request" validate:"min=1,max=100"`
	AllowDelete        bool        `json:"allow_delete"`
	AllowedProjectIDs  []uuid.UUID `json:"allowed_project_ids" validate:"max=500"`
}

type AIPolicyInput struct {
	EnabledTools []string           `json:"enabled_tools" validate:"max=10,dive,oneof=create_task update_task_status list_tasks log_time create_project delete_task"`
	Constraints  AIConstraintsInput `json:"constraints"`
	AuditLevel   model.AuditLevel   `json:"audit_level" validate:"required,oneof=none basic full"`
}

type FileMetaInput struct {
	EntityType model.EntityType `json:"entity_type" validate:"required,oneof=task project milestone"`
	EntityID   uuid.UUID        `json:"entity_id" validate:"required"`
	FileName   string           `json:"file_name" validate:"required,notblank,max=255"`
	MimeType   string           `json:"mime_type" validate:"required,max=127"`
	Size       int64            `json:"size" validate:"gt=0"`
}

type VoiceCommandInput struct {
	Transcript string `json:"transcript" validate:"required,notblank,max=2000"`
}

type PresenceInput struct {
	Cursor string `json:"cursor" validate:"max=256"`
	View   string `json:"view" validate:"max=64"`
}

func registerStructRules(v *validator.Validate) {
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		in := sl.Current().Interface().(ProjectCreateInput)
		checkDateOrder(sl, in.StartDate, in.DueDate)
	}, ProjectCreateInput{})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		in := sl.Current().Interface().(ProjectUpdateInput)
		checkDateOrder(sl, in.StartDate, in.DueDate)
	}, ProjectUpdateInput{})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		in := sl.Current().Interface().(TimeEntryInput)
		if in.EndTime == nil && in.DurationMinutes == nil {
			sl.ReportError(in.EndTime, "end_time", "EndTime", "duration_or_end", "")
		}
		if in.EndTime != nil && !in.EndTime.After(in.StartTime) {
			sl.ReportError(in.EndTime, "end_time", "EndTime", "after_start", "")
		}
	}, TimeEntryInput{})
}

func checkDateOrder(sl validator.StructLevel, start, due *time.Time) {
	if start != nil && due != nil && due.Before(*start) {
		sl.ReportError(due, "due_date", "DueDate", "not_before_start", "")
	}
}
