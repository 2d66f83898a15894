package repository

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/model"
	"foco/pkg/db"
)

type MilestoneRepository struct {
	db     db.Querier
	logger *zap.Logger
}

func NewMilestoneRepository(q db.Querier, logger *zap.Logger) *MilestoneRepository {
	return &MilestoneRepository{db: q, logger: logger}
}

func (r *MilestoneRepository) WithQuerier(q db.Querier) *MilestoneRepository {
	return &MilestoneRepository{db: q, logger: r.logger}
}

const milestoneColumns = `id, project_id, title, description, due_date, status, progress, position, created_at, updated_at`

func scanMilestone(s scanner) (*model.Milestone, error) {
	var m model.Milestone
	err := s.Scan(&m.ID, &m.ProjectID, &m.Title, &m.Description, &m.DueDate, &m.Status,
		&m.Progress, &m.Position, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// Insert 位置放在项目末尾
func (r *MilestoneRepository) Insert(ctx context.Context, m *model.Milestone) error {
	r.logger.Debug("Inserting milestone",
		zap.String("project_id", m.ProjectID.String()),
		zap.String("title", m.Title),
	)
	query := `
        INSERT INTO milestones (id, project_id, title, description, due_date, status, position)
        VALUES ($1, $2, $3, $4, $5, $6,
                (SELECT COALESCE(MAX(position) + 1, 0) FROM milestones WHERE project_id = $2))
        RETURNING position, created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query, m.ID, m.ProjectID, m.Title, m.Description, m.DueDate, m.Status).
		Scan(&m.Position, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert milestone", zap.Error(err))
		return translate(err)
	}
	return nil
}

func (r *MilestoneRepository) Get(ctx context.Context, id uuid.UUID) (*model.Milestone, error) {
	return scanMilestone(r.db.QueryRow(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = $1`, id))
}

func (r *MilestoneRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*model.Milestone, error) {
	return r.list(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE project_id = $1 ORDER BY position, created_at`, projectID)
}

// ListByOrg 组织内全部里程碑（日历使用）
func (r *MilestoneRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*model.Milestone, error) {
	query := `
        SELECT m.id, m.project_id, m.title, m.description, m.due_date, m.status, m.progress, m.position,
               m.created_at, m.updated_at
        FROM milestones m
        JOIN projects p ON p.id = m.project_id
        WHERE p.organization_id = $1
        ORDER BY m.due_date NULLS LAST
    `
	return r.list(ctx, query, orgID)
}

func (r *MilestoneRepository) list(ctx context.Context, query string, args ...any) ([]*model.Milestone, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := []*model.Milestone{}
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MilestoneRepository) Update(ctx context.Context, m *model.Milestone) error {
	query := `
        UPDATE milestones
        SET title = $2, description = $3, due_date = $4, status = $5, progress = $6, position = $7,
            updated_at = NOW()
        WHERE id = $1
        RETURNING updated_at
    `
	return translate(r.db.QueryRow(ctx, query,
		m.ID, m.Title, m.Description, m.DueDate, m.Status, m.Progress, m.Position,
	).Scan(&m.UpdatedAt))
}

func (r *MilestoneRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return affected(r.db.Exec(ctx, `DELETE FROM milestones WHERE id = $1`, id))
}

// RecalculateProgress 进度 = 里程碑下 done 任务占比
func (r *MilestoneRepository) RecalculateProgress(ctx context.Context, id uuid.UUID) (int, error) {
	query := `
        UPDATE milestones m
        SET progress = COALESCE((
                SELECT ROUND(100.0 * COUNT(*) FILTER (WHERE t.status = 'done') / NULLIF(COUNT(*), 0))
                FROM tasks t WHERE t.milestone_id = m.id
            ), 0),
            updated_at = NOW()
        WHERE m.id = $1
        RETURNING m.progress
    `
	var progress int
	err := r.db.QueryRow(ctx, query, id).Scan(&progress)
	return progress, translate(err)
}
