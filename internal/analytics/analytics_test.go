package analytics

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foco/internal/model"
)

func ptr[T any](v T) *T { return &v }

var now = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC) // 周三

func TestProject(t *testing.T) {
	yesterday := now.Add(-24 * time.Hour)
	tasks := []*model.Task{
		{Status: model.TaskDone, Priority: model.PriorityHigh, EstimatedHours: ptr(4.0), ActualHours: 5},
		{Status: model.TaskTodo, Priority: model.PriorityHigh, DueDate: &yesterday, EstimatedHours: ptr(2.0)},
		{Status: model.TaskDone, Priority: model.PriorityLow, DueDate: &yesterday, ActualHours: 1.5},
		{Status: model.TaskInProgress, Priority: model.PriorityMedium},
	}

	m := Project(tasks, now)
	assert.Equal(t, 4, m.Total)
	assert.Equal(t, 2, m.Completed)
	assert.Equal(t, 1, m.Overdue, "done tasks are never overdue")
	assert.Equal(t, 50.0, m.CompletionRate)
	assert.Equal(t, 6.0, m.EstimatedHours)
	assert.Equal(t, 6.5, m.ActualHours)
	assert.Equal(t, 2, m.ByStatus["done"])
	assert.Equal(t, 0, m.ByStatus["blocked"])
	assert.Equal(t, 2, m.ByPriority["high"])
	assert.Equal(t, 0, m.ByPriority["urgent"])
}

func TestProject_Empty(t *testing.T) {
	m := Project(nil, now)
	assert.Zero(t, m.Total)
	assert.Zero(t, m.CompletionRate)
	assert.Len(t, m.ByStatus, len(model.TaskStatuses))
}

func TestTeam(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()
	due := now
	late := now.Add(time.Hour)
	early := now.Add(-time.Hour)

	tasks := []*model.Task{
		{AssigneeID: &alice, Status: model.TaskDone, DueDate: &due, CompletedAt: &early},
		{AssigneeID: &alice, Status: model.TaskDone, DueDate: &due, CompletedAt: &late},
		{AssigneeID: &alice, Status: model.TaskTodo},
		{AssigneeID: &bob, Status: model.TaskReview},
		{Status: model.TaskDone},
	}
	entries := []*model.TimeEntry{
		{UserID: alice, DurationMinutes: 90},
		{UserID: bob, DurationMinutes: 30},
		{UserID: bob, DurationMinutes: 30},
	}

	team := Team(tasks, entries)
	require.Len(t, team, 2)

	assert.Equal(t, alice, team[0].UserID)
	assert.Equal(t, 3, team[0].Assigned)
	assert.Equal(t, 2, team[0].Completed)
	assert.Equal(t, 1.5, team[0].HoursLogged)
	assert.Equal(t, 50.0, team[0].OnTimeRate)

	assert.Equal(t, bob, team[1].UserID)
	assert.Equal(t, 1.0, team[1].HoursLogged)
	assert.Zero(t, team[1].OnTimeRate)
}

func TestTimeSeries_ZeroFilled(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	entries := []*model.TimeEntry{
		{StartTime: from.Add(2 * time.Hour), DurationMinutes: 30},
		{StartTime: from.Add(5 * time.Hour), DurationMinutes: 15},
		{StartTime: to.Add(23 * time.Hour), DurationMinutes: 60},
		{StartTime: to.AddDate(0, 0, 1), DurationMinutes: 999},
	}

	series := TimeSeries(entries, from, to)
	assert.Equal(t, []Point{
		{Date: "2026-03-01", Minutes: 45},
		{Date: "2026-03-02", Minutes: 0},
		{Date: "2026-03-03", Minutes: 0},
		{Date: "2026-03-04", Minutes: 60},
	}, series)

	assert.Empty(t, TimeSeries(entries, to, from))
}

func TestGoalsAndProjects(t *testing.T) {
	gs := Goals([]*model.Goal{
		{Status: model.GoalOnTrack, TargetValue: 10, CurrentValue: 5},
		{Status: model.GoalCompleted, TargetValue: 10, CurrentValue: 20},
	})
	assert.Equal(t, 2, gs.Total)
	assert.Equal(t, 75.0, gs.AverageProgress)
	assert.Equal(t, 1, gs.ByStatus["completed"])
	assert.Equal(t, 0, gs.ByStatus["at_risk"])

	ps := ProjectsByStatus([]*model.Project{{Status: model.ProjectActive}, {Status: model.ProjectActive}})
	assert.Equal(t, 2, ps["active"])
	assert.Equal(t, 0, ps["planning"])
}

func TestWeekStartAndMinutesBetween(t *testing.T) {
	ws := WeekStart(now)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), ws)
	assert.Equal(t, ws, WeekStart(ws))

	entries := []*model.TimeEntry{
		{StartTime: ws.Add(-time.Minute), DurationMinutes: 10},
		{StartTime: ws, DurationMinutes: 20},
		{StartTime: ws.AddDate(0, 0, 6), DurationMinutes: 30},
		{StartTime: ws.AddDate(0, 0, 7), DurationMinutes: 40},
	}
	assert.Equal(t, 50, MinutesBetween(entries, ws, ws.AddDate(0, 0, 7)))
}
