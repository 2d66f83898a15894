package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/filtering"
	"foco/internal/model"
	"foco/internal/repository"
	"foco/internal/validation"
	"foco/pkg/rbac"
)

type GoalService struct {
	orgs     *OrganizationService
	projects *repository.ProjectRepository
	goals    *repository.GoalRepository
	logger   *zap.Logger
}

func NewGoalService(orgs *OrganizationService, projects *repository.ProjectRepository, goals *repository.GoalRepository, logger *zap.Logger) *GoalService {
	return &GoalService{orgs: orgs, projects: projects, goals: goals, logger: logger}
}

func (s *GoalService) Create(ctx context.Context, userID, orgID uuid.UUID, in validation.GoalInput) (*model.Goal, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	if _, err := s.orgs.Authorize(ctx, orgID, userID, rbac.PermissionManageGoals); err != nil {
		return nil, err
	}
	if in.ProjectID != nil {
		p, err := s.projects.Get(ctx, *in.ProjectID)
		if err != nil || p.OrganizationID != orgID {
			return nil, validation.Errors{{Field: "project_id", Rule: "exists", Message: "project_id does not belong to this organization"}}
		}
	}

	g := &model.Goal{
		ID:             uuid.New(),
		OrganizationID: orgID,
		ProjectID:      in.ProjectID,
		OwnerID:        userID,
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		TargetValue:    in.TargetValue,
		CurrentValue:   in.CurrentValue,
		Unit:           in.Unit,
		Status:         in.Status,
		DueDate:        in.DueDate,
	}
	if g.Status == "" {
		g.Status = model.GoalNotStarted
	}
	deriveGoalStatus(g, in.Status != "")

	if err := s.goals.Insert(ctx, g); err != nil {
		return nil, err
	}
	s.logger.Info("Goal created", zap.String("goal_id", g.ID.String()), zap.String("organization_id", orgID.String()))
	return g, nil
}

func (s *GoalService) load(ctx context.Context, userID, id uuid.UUID, perm rbac.Permission) (*model.Goal, error) {
	g, err := s.goals.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.orgs.Authorize(ctx, g.OrganizationID, userID, perm); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *GoalService) Get(ctx context.Context, userID, id uuid.UUID) (*model.Goal, error) {
	return s.load(ctx, userID, id, rbac.PermissionReadOrg)
}

func (s *GoalService) List(ctx context.Context, userID, orgID uuid.UUID, opts filtering.Options) (filtering.Page[*model.Goal], error) {
	if _, err := s.orgs.Authorize(ctx, orgID, userID, rbac.PermissionReadOrg); err != nil {
		return filtering.Page[*model.Goal]{}, err
	}
	goals, err := s.goals.ListByOrg(ctx, orgID)
	if err != nil {
		return filtering.Page[*model.Goal]{}, err
	}
	return filtering.Apply(goals, opts)
}

func (s *GoalService) Update(ctx context.Context, userID, id uuid.UUID, in validation.GoalUpdateInput) (*model.Goal, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	g, err := s.load(ctx, userID, id, rbac.PermissionManageGoals)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		g.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		g.Description = *in.Description
	}
	if in.TargetValue != nil {
		g.TargetValue = *in.TargetValue
	}
	if in.Unit != nil {
		g.Unit = *in.Unit
	}
	if in.Status != nil {
		g.Status = *in.Status
	}
	if in.DueDate != nil {
		g.DueDate = in.DueDate
	}
	deriveGoalStatus(g, in.Status != nil)

	if err := s.goals.Update(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// UpdateProgress 达到目标值自动标记为 completed，除非显式指定了状态
func (s *GoalService) UpdateProgress(ctx context.Context, userID, id uuid.UUID, in validation.GoalProgressInput) (*model.Goal, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	g, err := s.load(ctx, userID, id, rbac.PermissionManageGoals)
	if err != nil {
		return nil, err
	}
	g.CurrentValue = in.CurrentValue
	if in.Status != nil {
		g.Status = *in.Status
	}
	deriveGoalStatus(g, in.Status != nil)

	if err := s.goals.Update(ctx, g); err != nil {
		return nil, err
	}
	s.logger.Info("Goal progress updated",
		zap.String("goal_id", g.ID.String()),
		zap.Float64("current", g.CurrentValue),
		zap.String("status", string(g.Status)),
	)
	return g, nil
}

func (s *GoalService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.load(ctx, userID, id, rbac.PermissionManageGoals); err != nil {
		return err
	}
	return s.goals.Delete(ctx, id)
}

// deriveGoalStatus 显式状态优先；否则达标即 completed，其余保持不变
func deriveGoalStatus(g *model.Goal, explicit bool) {
	if !explicit && g.TargetValue > 0 && g.CurrentValue >= g.TargetValue {
		g.Status = model.GoalCompleted
	}
}
