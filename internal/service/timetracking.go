package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"foco/internal/model"
	"foco/internal/repository"
	"foco/internal/validation"
	"foco/pkg/db"
	"foco/pkg/rbac"
)

type TimeTrackingService struct {
	db       db.Querier
	projects *ProjectService
	entries  *repository.TimeEntryRepository
	tasks    *repository.TaskRepository
	logger   *zap.Logger
	now      func() time.Time
}

func NewTimeTrackingService(q db.Querier, projects *ProjectService, entries *repository.TimeEntryRepository, tasks *repository.TaskRepository, logger *zap.Logger) *TimeTrackingService {
	return &TimeTrackingService{db: q, projects: projects, entries: entries, tasks: tasks, logger: logger, now: time.Now}
}

// checkTask 任务必须属于同一项目
func (s *TimeTrackingService) checkTask(ctx context.Context, projectID uuid.UUID, taskID *uuid.UUID) error {
	if taskID == nil {
		return nil
	}
	t, err := s.tasks.Get(ctx, *taskID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && t.ProjectID != projectID) {
		return validation.Errors{{Field: "task_id", Rule: "exists", Message: "task_id does not belong to this project"}}
	}
	return err
}

// StartTimer 每个用户同时只能有一个运行中的计时器
func (s *TimeTrackingService) StartTimer(ctx context.Context, userID uuid.UUID, in validation.TimerStartInput) (*model.TimeEntry, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	if _, _, err := s.projects.access(ctx, userID, in.ProjectID, rbac.PermissionLogTime); err != nil {
		return nil, err
	}
	if err := s.checkTask(ctx, in.ProjectID, in.TaskID); err != nil {
		return nil, err
	}

	e := &model.TimeEntry{
		ID:          uuid.New(),
		UserID:      userID,
		ProjectID:   in.ProjectID,
		TaskID:      in.TaskID,
		Description: strings.TrimSpace(in.Description),
		StartTime:   s.now().UTC(),
		Billable:    in.Billable,
		HourlyRate:  in.HourlyRate,
	}
	if err := s.entries.Insert(ctx, e); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, err
	}
	s.logger.Info("Timer started", zap.String("entry_id", e.ID.String()), zap.String("user_id", userID.String()))
	return e, nil
}

// StopTimer 时长向上取整到分钟（至少 1 分钟），并累加到任务的实际工时
func (s *TimeTrackingService) StopTimer(ctx context.Context, userID uuid.UUID) (*model.TimeEntry, error) {
	e, err := s.entries.Running(ctx, userID)
	if err != nil {
		return nil, err
	}
	end := s.now().UTC()
	minutes := model.ElapsedMinutes(e.StartTime, end)

	err = db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.entries.WithQuerier(tx).Stop(ctx, e.ID, end, minutes); err != nil {
			return err
		}
		if e.TaskID != nil {
			return s.tasks.WithQuerier(tx).AddActualHours(ctx, *e.TaskID, hours(minutes))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.EndTime = &end
	e.DurationMinutes = minutes
	s.logger.Info("Timer stopped",
		zap.String("entry_id", e.ID.String()),
		zap.Int("minutes", minutes),
	)
	return e, nil
}

func (s *TimeTrackingService) Running(ctx context.Context, userID uuid.UUID) (*model.TimeEntry, error) {
	return s.entries.Running(ctx, userID)
}

// LogEntry 手动补录：给定 end_time 或 duration_minutes 之一
func (s *TimeTrackingService) LogEntry(ctx context.Context, userID uuid.UUID, in validation.TimeEntryInput) (*model.TimeEntry, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	if in.EndTime == nil && in.DurationMinutes == nil {
		return nil, validation.Errors{{Field: "duration_minutes", Rule: "required_without", Message: "duration_minutes or end_time is required"}}
	}
	if _, _, err := s.projects.access(ctx, userID, in.ProjectID, rbac.PermissionLogTime); err != nil {
		return nil, err
	}
	if err := s.checkTask(ctx, in.ProjectID, in.TaskID); err != nil {
		return nil, err
	}

	start := in.StartTime.UTC()
	var (
		end     time.Time
		minutes int
	)
	if in.DurationMinutes != nil {
		minutes = *in.DurationMinutes
		end = start.Add(time.Duration(minutes) * time.Minute)
	} else {
		end = in.EndTime.UTC()
		minutes = model.ElapsedMinutes(start, end)
	}

	e := &model.TimeEntry{
		ID:              uuid.New(),
		UserID:          userID,
		ProjectID:       in.ProjectID,
		TaskID:          in.TaskID,
		Description:     strings.TrimSpace(in.Description),
		StartTime:       start,
		EndTime:         &end,
		DurationMinutes: minutes,
		Billable:        in.Billable,
		HourlyRate:      in.HourlyRate,
	}
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.entries.WithQuerier(tx).Insert(ctx, e); err != nil {
			return err
		}
		if e.TaskID != nil {
			return s.tasks.WithQuerier(tx).AddActualHours(ctx, *e.TaskID, hours(minutes))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Time entry logged", zap.String("entry_id", e.ID.String()), zap.Int("minutes", minutes))
	return e, nil
}

// TimeQuery 列表条件；ProjectID 为空时只返回调用者自己的记录
type TimeQuery struct {
	ProjectID uuid.UUID
	TaskID    uuid.UUID
	From      time.Time
	To        time.Time
}

func (s *TimeTrackingService) List(ctx context.Context, userID uuid.UUID, q TimeQuery) ([]*model.TimeEntry, error) {
	f := repository.TimeEntryFilter{ProjectID: q.ProjectID, TaskID: q.TaskID, From: q.From, To: q.To}
	if q.ProjectID != uuid.Nil {
		if _, _, err := s.projects.access(ctx, userID, q.ProjectID, rbac.PermissionReadProject); err != nil {
			return nil, err
		}
	} else {
		f.UserID = userID
	}
	return s.entries.List(ctx, f)
}

// Delete 本人或有 moderate 权限的成员可以删除；已累加的工时会扣回
func (s *TimeTrackingService) Delete(ctx context.Context, userID, entryID uuid.UUID) error {
	e, err := s.entries.Get(ctx, entryID)
	if err != nil {
		return err
	}
	perm := rbac.PermissionLogTime
	if e.UserID != userID {
		perm = rbac.PermissionModerate
	}
	if _, _, err := s.projects.access(ctx, userID, e.ProjectID, perm); err != nil {
		return err
	}

	err = db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.entries.WithQuerier(tx).Delete(ctx, entryID); err != nil {
			return err
		}
		if e.TaskID != nil && !e.IsRunning() {
			err := s.tasks.WithQuerier(tx).AddActualHours(ctx, *e.TaskID, -hours(e.DurationMinutes))
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("Time entry deleted", zap.String("entry_id", entryID.String()))
	return nil
}

func (s *TimeTrackingService) Summary(ctx context.Context, userID uuid.UUID, q TimeQuery) (TimeSummary, error) {
	entries, err := s.List(ctx, userID, q)
	if err != nil {
		return TimeSummary{}, err
	}
	return Summarize(entries, s.now()), nil
}

type DayBucket struct {
	Date    string `json:"date"`
	Minutes int    `json:"minutes"`
}

type ProjectBucket struct {
	ProjectID uuid.UUID `json:"project_id"`
	Minutes   int       `json:"minutes"`
	Amount    float64   `json:"amount"`
}

type TimeSummary struct {
	TotalMinutes    int             `json:"total_minutes"`
	BillableMinutes int             `json:"billable_minutes"`
	BillableAmount  float64         `json:"billable_amount"`
	Formatted       string          `json:"formatted"`
	ByProject       []ProjectBucket `json:"by_project"`
	ByDay           []DayBucket     `json:"by_day"`
}

// Summarize 汇总工时；运行中的计时器按 now 计入，按天分桶使用 UTC 日期
func Summarize(entries []*model.TimeEntry, now time.Time) TimeSummary {
	sum := TimeSummary{ByProject: []ProjectBucket{}, ByDay: []DayBucket{}}
	projects := map[uuid.UUID]*ProjectBucket{}
	days := map[string]int{}

	for _, e := range entries {
		minutes := e.Duration(now)
		sum.TotalMinutes += minutes
		amount := 0.0
		if e.Billable {
			sum.BillableMinutes += minutes
			if e.HourlyRate != nil {
				amount = hours(minutes) * *e.HourlyRate
			}
		}
		sum.BillableAmount += amount

		pb, ok := projects[e.ProjectID]
		if !ok {
			pb = &ProjectBucket{ProjectID: e.ProjectID}
			projects[e.ProjectID] = pb
		}
		pb.Minutes += minutes
		pb.Amount += amount

		days[e.StartTime.UTC().Format("2006-01-02")] += minutes
	}

	sum.BillableAmount = roundCents(sum.BillableAmount)
	sum.Formatted = model.FormatDuration(sum.TotalMinutes)
	for _, pb := range projects {
		pb.Amount = roundCents(pb.Amount)
		sum.ByProject = append(sum.ByProject, *pb)
	}
	sort.Slice(sum.ByProject, func(i, j int) bool {
		if sum.ByProject[i].Minutes != sum.ByProject[j].Minutes {
			return sum.ByProject[i].Minutes > sum.ByProject[j].Minutes
		}
		return sum.ByProject[i].ProjectID.String() < sum.ByProject[j].ProjectID.String()
	})
	for d, m := range days {
		sum.ByDay = append(sum.ByDay, DayBucket{Date: d, Minutes: m})
	}
	sort.Slice(sum.ByDay, func(i, j int) bool { return sum.ByDay[i].Date < sum.ByDay[j].Date })
	return sum
}

func hours(minutes int) float64 {
	return float64(minutes) / 60
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
