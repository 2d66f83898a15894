package model

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

type TimeEntry struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	ProjectID       uuid.UUID  `json:"project_id"`
	TaskID          *uuid.UUID `json:"task_id,omitempty"`
	Description     string     `json:"description"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Billable        bool       `json:"billable"`
	HourlyRate      *float64   `json:"hourly_rate,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (e *TimeEntry) IsRunning() bool {
	return e.EndTime == nil
}

// Duration 返回分钟数；运行中的计时器按 now 计算
func (e *TimeEntry) Duration(now time.Time) int {
	if e.IsRunning() {
		return ElapsedMinutes(e.StartTime, now)
	}
	return e.DurationMinutes
}

// BillableAmount 非计费或没有费率时为 0
func (e *TimeEntry) BillableAmount() float64 {
	if !e.Billable || e.HourlyRate == nil {
		return 0
	}
	return math.Round(float64(e.DurationMinutes)/60*(*e.HourlyRate)*100) / 100
}

func (e *TimeEntry) FieldValue(name string) (any, bool) {
	switch name {
	case "id":
		return e.ID.String(), true
	case "user_id":
		return e.UserID.String(), true
	case "project_id":
		return e.ProjectID.String(), true
	case "task_id":
		return uuidOrNil(e.TaskID), true
	case "description":
		return e.Description, true
	case "start_time":
		return e.StartTime, true
	case "end_time":
		return timeOrNil(e.EndTime), true
	case "duration_minutes":
		return e.DurationMinutes, true
	case "billable":
		return e.Billable, true
	}
	return nil, false
}

// ElapsedMinutes 向上取整的分钟数，最少 1 分钟
func ElapsedMinutes(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 1
	}
	m := int(math.Ceil(d.Minutes()))
	if m < 1 {
		m = 1
	}
	return m
}

// FormatDuration 把分钟格式化为 "2h 05m" 或 "45m"
func FormatDuration(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	h, m := minutes/60, minutes%60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %02dm", h, m)
}
