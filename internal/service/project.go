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

type ProjectService struct {
	orgs     *OrganizationService
	projects *repository.ProjectRepository
	logger   *zap.Logger
}

func NewProjectService(orgs *OrganizationService, projects *repository.ProjectRepository, logger *zap.Logger) *ProjectService {
	return &ProjectService{orgs: orgs, projects: projects, logger: logger}
}

// access 加载项目并校验用户在其组织中的权限
func (s *ProjectService) access(ctx context.Context, userID, projectID uuid.UUID, perm rbac.Permission) (*model.Project, rbac.Role, error) {
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return nil, "", err
	}
	role, err := s.orgs.Authorize(ctx, p.OrganizationID, userID, perm)
	if err != nil {
		return nil, role, err
	}
	return p, role, nil
}

func (s *ProjectService) Create(ctx context.Context, userID, orgID uuid.UUID, in validation.ProjectCreateInput) (*model.Project, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	if _, err := s.orgs.Authorize(ctx, orgID, userID, rbac.PermissionCreateProject); err != nil {
		return nil, err
	}

	p := &model.Project{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		Status:         in.Status,
		Priority:       in.Priority,
		StartDate:      in.StartDate,
		DueDate:        in.DueDate,
		Color:          in.Color,
		CreatedBy:      userID,
	}
	if p.Status == "" {
		p.Status = model.ProjectPlanning
	}
	if p.Priority == "" {
		p.Priority = model.PriorityMedium
	}
	if p.Color == "" {
		p.Color = "#6366f1"
	}

	if err := s.projects.Insert(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("Project created",
		zap.String("project_id", p.ID.String()),
		zap.String("organization_id", orgID.String()),
	)
	return p, nil
}

func (s *ProjectService) Get(ctx context.Context, userID, projectID uuid.UUID) (*model.Project, error) {
	p, _, err := s.access(ctx, userID, projectID, rbac.PermissionReadProject)
	return p, err
}

// List 在内存中应用过滤、搜索、排序与分页
func (s *ProjectService) List(ctx context.Context, userID, orgID uuid.UUID, opts filtering.Options) (filtering.Page[*model.Project], error) {
	if _, err := s.orgs.Authorize(ctx, orgID, userID, rbac.PermissionReadProject); err != nil {
		return filtering.Page[*model.Project]{}, err
	}
	projects, err := s.projects.ListByOrg(ctx, orgID)
	if err != nil {
		return filtering.Page[*model.Project]{}, err
	}
	return filtering.Apply(projects, opts)
}

func (s *ProjectService) Update(ctx context.Context, userID, projectID uuid.UUID, in validation.ProjectUpdateInput) (*model.Project, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	p, _, err := s.access(ctx, userID, projectID, rbac.PermissionUpdateProject)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Status != nil {
		p.Status = *in.Status
	}
	if in.Priority != nil {
		p.Priority = *in.Priority
	}
	if in.StartDate != nil {
		p.StartDate = in.StartDate
	}
	if in.DueDate != nil {
		p.DueDate = in.DueDate
	}
	if in.Progress != nil {
		p.Progress = *in.Progress
	}
	if in.Color != nil {
		p.Color = *in.Color
	}
	// 合并后再检查一次日期顺序
	if p.StartDate != nil && p.DueDate != nil && p.DueDate.Before(*p.StartDate) {
		return nil, validation.Errors{{Field: "due_date", Rule: "not_before_start", Message: "due_date must not be before start_date"}}
	}

	if err := s.projects.Update(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("Project updated", zap.String("project_id", p.ID.String()))
	return p, nil
}

func (s *ProjectService) Delete(ctx context.Context, userID, projectID uuid.UUID) error {
	if _, _, err := s.access(ctx, userID, projectID, rbac.PermissionDeleteProject); err != nil {
		return err
	}
	if err := s.projects.Delete(ctx, projectID); err != nil {
		return err
	}
	s.logger.Info("Project deleted", zap.String("project_id", projectID.String()))
	return nil
}

// RecalculateProgress 进度 = done 任务百分比
func (s *ProjectService) RecalculateProgress(ctx context.Context, projectID uuid.UUID) (int, error) {
	return s.projects.RecalculateProgress(ctx, projectID)
}
