package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validationErrors(t *testing.T, err error) Errors {
	t.Helper()
	require.Error(t, err)
	var verrs Errors
	require.True(t, errors.As(err, &verrs), "expected validation.Errors, got %T", err)
	return verrs
}

func TestProjectMissingNameFails(t *testing.T) {
	verrs := validationErrors(t, Validate(ProjectCreateInput{}))
	assert.True(t, verrs.Has("name", "required"))
}

func TestProjectBlankName(t *testing.T) {
	verrs := validationErrors(t, Validate(ProjectCreateInput{Name: "   "}))
	assert.True(t, verrs.Has("name", "notblank"))
}

func TestProjectEnumsAndColor(t *testing.T) {
	verrs := validationErrors(t, Validate(ProjectCreateInput{
		Name:     "Apollo",
		Status:   "archived",
		Priority: "critical",
		Color:    "blue",
	}))
	assert.True(t, verrs.Has("status", "oneof"))
	assert.True(t, verrs.Has("priority", "oneof"))
	assert.True(t, verrs.Has("color", "hexcolor"))
}

func TestProjectDueBeforeStart(t *testing.T) {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	due := start.Add(-24 * time.Hour)
	verrs := validationErrors(t, Validate(ProjectCreateInput{Name: "Apollo", StartDate: &start, DueDate: &due}))
	assert.True(t, verrs.Has("due_date", "not_before_start"))

	due = start.Add(24 * time.Hour)
	assert.NoError(t, Validate(ProjectCreateInput{Name: "Apollo", StartDate: &start, DueDate: &due, Color: "#1f6feb"}))
}

func TestProjectUpdateProgressRange(t *testing.T) {
	p := 120
	verrs := validationErrors(t, Validate(ProjectUpdateInput{Progress: &p}))
	assert.True(t, verrs.Has("progress", "max"))

	p = 40
	assert.NoError(t, Validate(ProjectUpdateInput{Progress: &p}))
}

func TestTaskInput(t *testing.T) {
	neg := -1.0
	verrs := validationErrors(t, Validate(TaskInput{
		Title:          "Write docs",
		EstimatedHours: &neg,
		Tags:           []string{"ok", " "},
	}))
	assert.True(t, verrs.Has("estimated_hours", "gte"))
	assert.True(t, verrs.Has("tags[1]", "notblank"))

	assert.NoError(t, Validate(TaskInput{Title: "Write docs", Status: "review", Tags: []string{"docs"}}))
}

func TestTimeEntryInput(t *testing.T) {
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	verrs := validationErrors(t, Validate(TimeEntryInput{ProjectID: uuid.New(), StartTime: start}))
	assert.True(t, verrs.Has("end_time", "duration_or_end"))

	end := start.Add(-time.Minute)
	verrs = validationErrors(t, Validate(TimeEntryInput{ProjectID: uuid.New(), StartTime: start, EndTime: &end}))
	assert.True(t, verrs.Has("end_time", "after_start"))

	verrs = validationErrors(t, Validate(TimeEntryInput{StartTime: start, EndTime: &end}))
	assert.True(t, verrs.Has("project_id", "required"))

	minutes := 30
	assert.NoError(t, Validate(TimeEntryInput{ProjectID: uuid.New(), StartTime: start, DurationMinutes: &minutes}))
}

func TestRegisterInput(t *testing.T) {
	verrs := validationErrors(t, Validate(RegisterInput{Email: "nope", Username: "a b", Password: "short"}))
	assert.True(t, verrs.Has("email", "email"))
	assert.True(t, verrs.Has("username", "username"))
	assert.True(t, verrs.Has("password", "min"))

	assert.NoError(t, Validate(RegisterInput{Email: "ana@example.com", Username: "ana.m", Password: "correct horse"}))
}

func TestAIPolicyInputNested(t *testing.T) {
	verrs := validationErrors(t, Validate(AIPolicyInput{
		EnabledTools: []string{"create_task", "rm_rf"},
		AuditLevel:   "loud",
	}))
	assert.True(t, verrs.Has("enabled_tools[1]", "oneof"))
	assert.True(t, verrs.Has("audit_level", "oneof"))
	assert.True(t, verrs.Has("constraints.max_tasks_per_request", "min"))
}

func TestErrorsMessage(t *testing.T) {
	err := Validate(CommentInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity_type: is required")
}
