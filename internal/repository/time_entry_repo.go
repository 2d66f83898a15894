package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/model"
	"foco/pkg/db"
)

type TimeEntryRepository struct {
	db     db.Querier
	logger *zap.Logger
}

func NewTimeEntryRepository(q db.Querier, logger *zap.Logger) *TimeEntryRepository {
	return &TimeEntryRepository{db: q, logger: logger}
}

func (r *TimeEntryRepository) WithQuerier(q db.Querier) *TimeEntryRepository {
	return &TimeEntryRepository{db: q, logger: r.logger}
}

const timeEntryColumns = `e.id, e.user_id, e.project_id, e.task_id, e.description, e.start_time, e.end_time,
       e.duration_minutes, e.billable, e.hourly_rate, e.created_at`

func scanTimeEntry(s scanner) (*model.TimeEntry, error) {
	var e model.TimeEntry
	err := s.Scan(&e.ID, &e.UserID, &e.ProjectID, &e.TaskID, &e.Description, &e.StartTime, &e.EndTime,
		&e.DurationMinutes, &e.Billable, &e.HourlyRate, &e.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

// Insert 同一用户已有运行中的计时器时返回 ErrDuplicate（部分唯一索引）
func (r *TimeEntryRepository) Insert(ctx context.Context, e *model.TimeEntry) error {
	r.logger.Debug("Inserting time entry",
		zap.String("user_id", e.UserID.String()),
		zap.String("project_id", e.ProjectID.String()),
		zap.Bool("running", e.IsRunning()),
	)
	query := `
        INSERT INTO time_entries (id, user_id, project_id, task_id, description, start_time, end_time,
                                  duration_minutes, billable, hourly_rate)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING created_at
    `
	err := r.db.QueryRow(ctx, query,
		e.ID, e.UserID, e.ProjectID, e.TaskID, e.Description, e.StartTime, e.EndTime,
		e.DurationMinutes, e.Billable, e.HourlyRate,
	).Scan(&e.CreatedAt)
	return translate(err)
}

func (r *TimeEntryRepository) Get(ctx context.Context, id uuid.UUID) (*model.TimeEntry, error) {
	return scanTimeEntry(r.db.QueryRow(ctx, `SELECT `+timeEntryColumns+` FROM time_entries e WHERE e.id = $1`, id))
}

// Running 用户当前运行中的计时器
func (r *TimeEntryRepository) Running(ctx context.Context, userID uuid.UUID) (*model.TimeEntry, error) {
	return scanTimeEntry(r.db.QueryRow(ctx,
		`SELECT `+timeEntryColumns+` FROM time_entries e WHERE e.user_id = $1 AND e.end_time IS NULL`, userID))
}

// Stop 只会停止仍在运行的条目
func (r *TimeEntryRepository) Stop(ctx context.Context, id uuid.UUID, end time.Time, minutes int) error {
	return affected(r.db.Exec(ctx,
		`UPDATE time_entries SET end_time = $2, duration_minutes = $3 WHERE id = $1 AND end_time IS NULL`,
		id, end, minutes))
}

func (r *TimeEntryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return affected(r.db.Exec(ctx, `DELETE FROM time_entries WHERE id = $1`, id))
}

// TimeEntryFilter 查询条件，零值字段不参与过滤
type TimeEntryFilter struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	ProjectID      uuid.UUID
	TaskID         uuid.UUID
	From           time.Time
	To             time.Time
}

func (r *TimeEntryRepository) List(ctx context.Context, f TimeEntryFilter) ([]*model.TimeEntry, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.OrganizationID != uuid.Nil {
		add("p.organization_id = $%d", f.OrganizationID)
	}
	if f.UserID != uuid.Nil {
		add("e.user_id = $%d", f.UserID)
	}
	if f.ProjectID != uuid.Nil {
		add("e.project_id = $%d", f.ProjectID)
	}
	if f.TaskID != uuid.Nil {
		add("e.task_id = $%d", f.TaskID)
	}
	if !f.From.IsZero() {
		add("e.start_time >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("e.start_time < $%d", f.To)
	}

	query := `SELECT ` + timeEntryColumns + ` FROM time_entries e JOIN projects p ON p.id = e.project_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY e.start_time DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query time entries", zap.Error(err))
		return nil, translate(err)
	}
	defer rows.Close()

	entries := []*model.TimeEntry{}
	for rows.Next() {
		e, err := scanTimeEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
