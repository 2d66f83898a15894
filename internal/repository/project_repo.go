package repository

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/model"
	"foco/pkg/db"
)

type ProjectRepository struct {
	db     db.Querier
	logger *zap.Logger
}

func NewProjectRepository(q db.Querier, logger *zap.Logger) *ProjectRepository {
	return &ProjectRepository{db: q, logger: logger}
}

func (r *ProjectRepository) WithQuerier(q db.Querier) *ProjectRepository {
	return &ProjectRepository{db: q, logger: r.logger}
}

const projectColumns = `id, organization_id, name, description, status, priority, start_date, due_date,
       progress, color, created_by, created_at, updated_at`

func scanProject(s scanner) (*model.Project, error) {
	var p model.Project
	err := s.Scan(
		&p.ID,
		&p.OrganizationID,
		&p.Name,
		&p.Description,
		&p.Status,
		&p.Priority,
		&p.StartDate,
		&p.DueDate,
		&p.Progress,
		&p.Color,
		&p.CreatedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *ProjectRepository) Insert(ctx context.Context, p *model.Project) error {
	r.logger.Debug("Inserting project",
		zap.String("organization_id", p.OrganizationID.String()),
		zap.String("name", p.Name),
	)
	query := `
        INSERT INTO projects (id, organization_id, name, description, status, priority,
                              start_date, due_date, progress, color, created_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query,
		p.ID, p.OrganizationID, p.Name, p.Description, p.Status, p.Priority,
		p.StartDate, p.DueDate, p.Progress, p.Color, p.CreatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert project", zap.Error(err), zap.String("name", p.Name))
		return translate(err)
	}
	r.logger.Info("Project inserted", zap.String("project_id", p.ID.String()))
	return nil
}

func (r *ProjectRepository) Get(ctx context.Context, id uuid.UUID) (*model.Project, error) {
	return scanProject(r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
}

func (r *ProjectRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*model.Project, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE organization_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		r.logger.Error("Failed to query projects", zap.Error(err), zap.String("organization_id", orgID.String()))
		return nil, translate(err)
	}
	defer rows.Close()

	projects := []*model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *ProjectRepository) Update(ctx context.Context, p *model.Project) error {
	query := `
        UPDATE projects
        SET name = $2, description = $3, status = $4, priority = $5, start_date = $6,
            due_date = $7, progress = $8, color = $9, updated_at = NOW()
        WHERE id = $1
        RETURNING updated_at
    `
	err := r.db.QueryRow(ctx, query,
		p.ID, p.Name, p.Description, p.Status, p.Priority, p.StartDate, p.DueDate, p.Progress, p.Color,
	).Scan(&p.UpdatedAt)
	return translate(err)
}

func (r *ProjectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.logger.Debug("Deleting project", zap.String("project_id", id.String()))
	return affected(r.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id))
}

// RecalculateProgress 进度 = done 任务占比；没有任务时为 0
func (r *ProjectRepository) RecalculateProgress(ctx context.Context, id uuid.UUID) (int, error) {
	query := `
        UPDATE projects p
        SET progress = COALESCE((
                SELECT ROUND(100.0 * COUNT(*) FILTER (WHERE t.status = 'done') / NULLIF(COUNT(*), 0))
                FROM tasks t WHERE t.project_id = p.id
            ), 0),
            updated_at = NOW()
        WHERE p.id = $1
        RETURNING p.progress
    `
	var progress int
	err := r.db.QueryRow(ctx, query, id).Scan(&progress)
	return progress, translate(err)
}
