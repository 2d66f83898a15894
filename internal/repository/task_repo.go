package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/model"
	"foco/pkg/db"
)

type TaskRepository struct {
	db     db.Querier
	logger *zap.Logger
}

func NewTaskRepository(q db.Querier, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{db: q, logger: logger}
}

func (r *TaskRepository) WithQuerier(q db.Querier) *TaskRepository {
	return &TaskRepository{db: q, logger: r.logger}
}

const taskColumns = `t.id, t.project_id, t.milestone_id, t.title, t.description, t.status, t.priority,
       t.assignee_id, t.reporter_id, t.due_date, t.estimated_hours, t.actual_hours, t.position,
       t.tags, t.completed_at, t.created_at, t.updated_at`

func scanTask(s scanner) (*model.Task, error) {
	var t model.Task
	err := s.Scan(
		&t.ID,
		&t.ProjectID,
		&t.MilestoneID,
		&t.Title,
		&t.Description,
		&t.Status,
		&t.Priority,
		&t.AssigneeID,
		&t.ReporterID,
		&t.DueDate,
		&t.EstimatedHours,
		&t.ActualHours,
		&t.Position,
		&t.Tags,
		&t.CompletedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return &t, nil
}

// Insert 新任务排在所属状态列的末尾
func (r *TaskRepository) Insert(ctx context.Context, t *model.Task) error {
	r.logger.Debug("Inserting task",
		zap.String("project_id", t.ProjectID.String()),
		zap.String("title", t.Title),
		zap.String("status", string(t.Status)),
	)
	if t.Tags == nil {
		t.Tags = []string{}
	}
	query := `
        INSERT INTO tasks (id, project_id, milestone_id, title, description, status, priority,
                           assignee_id, reporter_id, due_date, estimated_hours, tags, completed_at, position)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
                (SELECT COALESCE(MAX(position) + 1, 0) FROM tasks WHERE project_id = $2 AND status = $6))
        RETURNING position, created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query,
		t.ID, t.ProjectID, t.MilestoneID, t.Title, t.Description, t.Status, t.Priority,
		t.AssigneeID, t.ReporterID, t.DueDate, t.EstimatedHours, t.Tags, t.CompletedAt,
	).Scan(&t.Position, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert task",
			zap.Error(err),
			zap.String("project_id", t.ProjectID.String()),
		)
		return translate(err)
	}
	r.logger.Info("Task inserted",
		zap.String("task_id", t.ID.String()),
		zap.Int("position", t.Position),
	)
	return nil
}

func (r *TaskRepository) Get(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	return scanTask(r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = $1`, id))
}

func (r *TaskRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*model.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.project_id = $1 ORDER BY t.status, t.position`, projectID)
}

// ListByOrg 组织内所有项目的任务
func (r *TaskRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*model.Task, error) {
	query := `SELECT ` + taskColumns + `
        FROM tasks t
        JOIN projects p ON p.id = t.project_id
        WHERE p.organization_id = $1
        ORDER BY t.created_at`
	return r.list(ctx, query, orgID)
}

// ListColumn 看板的一列，按 position 排序，加锁以便在事务中重排
func (r *TaskRepository) ListColumn(ctx context.Context, projectID uuid.UUID, status model.TaskStatus) ([]*model.Task, error) {
	query := `SELECT ` + taskColumns + `
        FROM tasks t
        WHERE t.project_id = $1 AND t.status = $2
        ORDER BY t.position, t.created_at
        FOR UPDATE`
	return r.list(ctx, query, projectID, status)
}

func (r *TaskRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = ANY($1)`, ids)
}

// ListDueBetween 截止日期落在 [from, to) 且未完成、已指派的任务，供到期提醒扫描
func (r *TaskRepository) ListDueBetween(ctx context.Context, from, to time.Time) ([]*model.Task, error) {
	query := `SELECT ` + taskColumns + `
        FROM tasks t
        WHERE t.due_date >= $1 AND t.due_date < $2
          AND t.status <> 'done' AND t.assignee_id IS NOT NULL
        ORDER BY t.due_date`
	return r.list(ctx, query, from, to)
}

func (r *TaskRepository) list(ctx context.Context, query string, args ...any) ([]*model.Task, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query tasks", zap.Error(err))
		return nil, translate(err)
	}
	defer rows.Close()

	tasks := []*model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			r.logger.Error("Failed to scan task row", zap.Error(err))
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepository) Update(ctx context.Context, t *model.Task) error {
	query := `
        UPDATE tasks
        SET milestone_id = $2, title = $3, description = $4, status = $5, priority = $6,
            assignee_id = $7, due_date = $8, estimated_hours = $9, tags = $10, completed_at = $11,
            position = $12, updated_at = NOW()
        WHERE id = $1
        RETURNING updated_at
    `
	err := r.db.QueryRow(ctx, query,
		t.ID, t.MilestoneID, t.Title, t.Description, t.Status, t.Priority,
		t.AssigneeID, t.DueDate, t.EstimatedHours, t.Tags, t.CompletedAt, t.Position,
	).Scan(&t.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to update task", zap.Error(err), zap.String("task_id", t.ID.String()))
	}
	return translate(err)
}

// PositionUpdate 一次拖拽产生的单个任务变更
type PositionUpdate struct {
	ID       uuid.UUID
	Status   model.TaskStatus
	Position int
	// SetCompleted 为 true 时同时写入 CompletedAt（可以为 nil 表示清空）
	SetCompleted bool
	CompletedAt  *time.Time
}

// UpdatePositions 逐条写入位置；调用方负责把仓储绑定到事务
func (r *TaskRepository) UpdatePositions(ctx context.Context, updates []PositionUpdate) error {
	r.logger.Debug("Updating task positions", zap.Int("count", len(updates)))
	for _, u := range updates {
		var err error
		if u.SetCompleted {
			err = affected(r.db.Exec(ctx,
				`UPDATE tasks SET status = $2, position = $3, completed_at = $4, updated_at = NOW() WHERE id = $1`,
				u.ID, u.Status, u.Position, u.CompletedAt))
		} else {
			err = affected(r.db.Exec(ctx,
				`UPDATE tasks SET status = $2, position = $3, updated_at = NOW() WHERE id = $1`,
				u.ID, u.Status, u.Position))
		}
		if err != nil {
			r.logger.Error("Failed to update task position", zap.Error(err), zap.String("task_id", u.ID.String()))
			return err
		}
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.logger.Debug("Deleting task", zap.String("task_id", id.String()))
	return affected(r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id))
}

// AddActualHours 计时结束后累加实际工时
func (r *TaskRepository) AddActualHours(ctx context.Context, id uuid.UUID, hours float64) error {
	return affected(r.db.Exec(ctx,
		`UPDATE tasks SET actual_hours = actual_hours + $2, updated_at = NOW() WHERE id = $1`, id, hours))
}
