// Package analytics 仪表盘用到的纯计算，不访问存储
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"foco/internal/model"
)

type ProjectMetrics struct {
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"by_status"`
	ByPriority     map[string]int `json:"by_priority"`
	Completed      int            `json:"completed"`
	Overdue        int            `json:"overdue"`
	CompletionRate float64        `json:"completion_rate"` // 0–100
	EstimatedHours float64        `json:"estimated_hours"`
	ActualHours    float64        `json:"actual_hours"`
}

// Project 计算任务集合的指标；状态和优先级的所有取值都会出现在 map 中
func Project(tasks []*model.Task, now time.Time) ProjectMetrics {
	m := ProjectMetrics{
		ByStatus:   make(map[string]int, len(model.TaskStatuses)),
		ByPriority: make(map[string]int, len(model.Priorities)),
	}
	for _, s := range model.TaskStatuses {
		m.ByStatus[string(s)] = 0
	}
	for _, p := range model.Priorities {
		m.ByPriority[string(p)] = 0
	}

	for _, t := range tasks {
		m.Total++
		m.ByStatus[string(t.Status)]++
		m.ByPriority[string(t.Priority)]++
		if t.IsDone() {
			m.Completed++
		}
		if t.IsOverdue(now) {
			m.Overdue++
		}
		if t.EstimatedHours != nil {
			m.EstimatedHours += *t.EstimatedHours
		}
		m.ActualHours += t.ActualHours
	}
	m.CompletionRate = percent(m.Completed, m.Total)
	m.EstimatedHours = round2(m.EstimatedHours)
	m.ActualHours = round2(m.ActualHours)
	return m
}

type MemberProductivity struct {
	UserID      uuid.UUID `json:"user_id"`
	Assigned    int       `json:"assigned"`
	Completed   int       `json:"completed"`
	HoursLogged float64   `json:"hours_logged"`
	OnTimeRate  float64   `json:"on_time_rate"` // 已完成任务中准时的比例，0–100
}

// Team 按指派人和工时记录的用户聚合，按完成数降序
func Team(tasks []*model.Task, entries []*model.TimeEntry) []MemberProductivity {
	by := map[uuid.UUID]*MemberProductivity{}
	onTime := map[uuid.UUID]int{}
	get := func(id uuid.UUID) *MemberProductivity {
		mp, ok := by[id]
		if !ok {
			mp = &MemberProductivity{UserID: id}
			by[id] = mp
		}
		return mp
	}

	for _, t := range tasks {
		if t.AssigneeID == nil {
			continue
		}
		mp := get(*t.AssigneeID)
		mp.Assigned++
		if t.IsDone() {
			mp.Completed++
			if t.CompletedOnTime() {
				onTime[mp.UserID]++
			}
		}
	}
	for _, e := range entries {
		get(e.UserID).HoursLogged += float64(e.DurationMinutes) / 60
	}

	out := make([]MemberProductivity, 0, len(by))
	for id, mp := range by {
		mp.HoursLogged = round2(mp.HoursLogged)
		mp.OnTimeRate = percent(onTime[id], mp.Completed)
		out = append(out, *mp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Completed != out[j].Completed {
			return out[i].Completed > out[j].Completed
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out
}

type Point struct {
	Date    string `json:"date"`
	Minutes int    `json:"minutes"`
}

// TimeSeries 每天的分钟数，[from, to] 内没有记录的日期补 0（UTC 日期）
func TimeSeries(entries []*model.TimeEntry, from, to time.Time) []Point {
	start := truncateDay(from)
	end := truncateDay(to)
	if end.Before(start) {
		return []Point{}
	}
	days := map[string]int{}
	for _, e := range entries {
		d := truncateDay(e.StartTime)
		if d.Before(start) || d.After(end) {
			continue
		}
		days[d.Format(time.DateOnly)] += e.DurationMinutes
	}

	var out []Point
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		out = append(out, Point{Date: key, Minutes: days[key]})
	}
	return out
}

type GoalsSummary struct {
	Total           int            `json:"total"`
	ByStatus        map[string]int `json:"by_status"`
	AverageProgress float64        `json:"average_progress"`
}

func Goals(goals []*model.Goal) GoalsSummary {
	s := GoalsSummary{ByStatus: make(map[string]int, len(model.GoalStatuses))}
	for _, st := range model.GoalStatuses {
		s.ByStatus[string(st)] = 0
	}
	var progress float64
	for _, g := range goals {
		s.Total++
		s.ByStatus[string(g.Status)]++
		progress += g.Progress()
	}
	if s.Total > 0 {
		s.AverageProgress = round2(progress / float64(s.Total))
	}
	return s
}

// ProjectsByStatus 所有状态都会出现在结果中
func ProjectsByStatus(projects []*model.Project) map[string]int {
	out := make(map[string]int, len(model.ProjectStatuses))
	for _, s := range model.ProjectStatuses {
		out[string(s)] = 0
	}
	for _, p := range projects {
		out[string(p.Status)]++
	}
	return out
}

// MinutesBetween [from, to) 内开始的记录的分钟数
func MinutesBetween(entries []*model.TimeEntry, from, to time.Time) int {
	total := 0
	for _, e := range entries {
		if !e.StartTime.Before(from) && e.StartTime.Before(to) {
			total += e.DurationMinutes
		}
	}
	return total
}

// WeekStart 所在周的周一 00:00 UTC
func WeekStart(t time.Time) time.Time {
	d := truncateDay(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(n) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
