package repository

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/model"
	"foco/pkg/db"
)

type GoalRepository struct {
	db     db.Querier
	logger *zap.Logger
}

func NewGoalRepository(q db.Querier, logger *zap.Logger) *GoalRepository {
	return &GoalRepository{db: q, logger: logger}
}

const goalColumns = `id, organization_id, project_id, owner_id, title, description, target_value, current_value,
       unit, status, due_date, created_at, updated_at`

func scanGoal(s scanner) (*model.Goal, error) {
	var g model.Goal
	err := s.Scan(&g.ID, &g.OrganizationID, &g.ProjectID, &g.OwnerID, &g.Title, &g.Description,
		&g.TargetValue, &g.CurrentValue, &g.Unit, &g.Status, &g.DueDate, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

func (r *GoalRepository) Insert(ctx context.Context, g *model.Goal) error {
	r.logger.Debug("Inserting goal", zap.String("organization_id", g.OrganizationID.String()), zap.String("title", g.Title))
	query := `
        INSERT INTO goals (id, organization_id, project_id, owner_id, title, description, target_value,
                           current_value, unit, status, due_date)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING created_at, updated_at
    `
	return translate(r.db.QueryRow(ctx, query,
		g.ID, g.OrganizationID, g.ProjectID, g.OwnerID, g.Title, g.Description, g.TargetValue,
		g.CurrentValue, g.Unit, g.Status, g.DueDate,
	).Scan(&g.CreatedAt, &g.UpdatedAt))
}

func (r *GoalRepository) Get(ctx context.Context, id uuid.UUID) (*model.Goal, error) {
	return scanGoal(r.db.QueryRow(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = $1`, id))
}

func (r *GoalRepository) ListByOrg(ctx context.Context, orgID uuid.UUID) ([]*model.Goal, error) {
	rows, err := r.db.Query(ctx, `SELECT `+goalColumns+` FROM goals WHERE organization_id = $1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := []*model.Goal{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *GoalRepository) Update(ctx context.Context, g *model.Goal) error {
	query := `
        UPDATE goals
        SET title = $2, description = $3, target_value = $4, current_value = $5, unit = $6,
            status = $7, due_date = $8, updated_at = NOW()
        WHERE id = $1
        RETURNING updated_at
    `
	return translate(r.db.QueryRow(ctx, query,
		g.ID, g.Title, g.Description, g.TargetValue, g.CurrentValue, g.Unit, g.Status, g.DueDate,
	).Scan(&g.UpdatedAt))
}

func (r *GoalRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return affected(r.db.Exec(ctx, `DELETE FROM goals WHERE id = $1`, id))
}
