package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45m", FormatDuration(45))
	assert.Equal(t, "2h 05m", FormatDuration(125))
	assert.Equal(t, "1h 00m", FormatDuration(60))
	assert.Equal(t, "0m", FormatDuration(-3))
}

func TestElapsedMinutes(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, ElapsedMinutes(start, start))
	assert.Equal(t, 1, ElapsedMinutes(start, start.Add(10*time.Second)))
	assert.Equal(t, 2, ElapsedMinutes(start, start.Add(61*time.Second)))
	assert.Equal(t, 90, ElapsedMinutes(start, start.Add(90*time.Minute)))
}

func TestTask_IsOverdue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, (&Task{Status: TaskTodo, DueDate: &past}).IsOverdue(now))
	assert.False(t, (&Task{Status: TaskDone, DueDate: &past}).IsOverdue(now))
	assert.False(t, (&Task{Status: TaskTodo, DueDate: &future}).IsOverdue(now))
	assert.False(t, (&Task{Status: TaskTodo}).IsOverdue(now))
}

func TestTimeEntry_BillableAmount(t *testing.T) {
	rate := 80.0
	e := &TimeEntry{DurationMinutes: 90, Billable: true, HourlyRate: &rate}
	assert.InDelta(t, 120.0, e.BillableAmount(), 0.001)

	e.Billable = false
	assert.Zero(t, e.BillableAmount())
}

func TestTimeEntry_DurationRunning(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	e := &TimeEntry{StartTime: start}
	assert.True(t, e.IsRunning())
	assert.Equal(t, 30, e.Duration(start.Add(30*time.Minute)))

	end := start.Add(time.Hour)
	e.EndTime = &end
	e.DurationMinutes = 60
	assert.Equal(t, 60, e.Duration(start.Add(5*time.Hour)))
}

func TestGoal_Progress(t *testing.T) {
	assert.Equal(t, 50.0, (&Goal{TargetValue: 10, CurrentValue: 5}).Progress())
	assert.Equal(t, 100.0, (&Goal{TargetValue: 10, CurrentValue: 25}).Progress())
	assert.Equal(t, 0.0, (&Goal{TargetValue: 0, CurrentValue: 0}).Progress())

	raw, err := json.Marshal(Goal{Title: "Ship", TargetValue: 4, CurrentValue: 1})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"progress":25`)
	assert.Contains(t, string(raw), `"title":"Ship"`)
}

func TestProject_IsClosed(t *testing.T) {
	assert.True(t, (&Project{Status: ProjectCancelled}).IsClosed())
	assert.False(t, (&Project{Status: ProjectOnHold}).IsClosed())
}

func TestFieldValue_MissingOptional(t *testing.T) {
	task := &Task{Title: "x"}
	v, ok := task.FieldValue("due_date")
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = task.FieldValue("nope")
	assert.False(t, ok)
}

func TestDefaultAIPolicy(t *testing.T) {
	p := DefaultAIPolicy([16]byte{1})
	assert.True(t, p.ToolEnabled(ToolCreateTask))
	assert.False(t, p.ToolEnabled(ToolDeleteTask))
	assert.Equal(t, 10, p.Constraints.MaxTasksPerRequest)
	assert.Equal(t, AuditBasic, p.AuditLevel)
	assert.True(t, p.ProjectAllowed([16]byte{9}))
}
