package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/model"
	"foco/internal/reorder"
	"foco/internal/repository"
	"foco/internal/validation"
	"foco/pkg/rbac"
)

type MilestoneService struct {
	projects   *ProjectService
	milestones *repository.MilestoneRepository
	logger     *zap.Logger
}

func NewMilestoneService(projects *ProjectService, milestones *repository.MilestoneRepository, logger *zap.Logger) *MilestoneService {
	return &MilestoneService{projects: projects, milestones: milestones, logger: logger}
}

func (s *MilestoneService) Create(ctx context.Context, userID, projectID uuid.UUID, in validation.MilestoneCreateInput) (*model.Milestone, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	if _, _, err := s.projects.access(ctx, userID, projectID, rbac.PermissionUpdateProject); err != nil {
		return nil, err
	}

	m := &model.Milestone{
		ID:          uuid.New(),
		ProjectID:   projectID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		DueDate:     in.DueDate,
		Status:      in.Status,
	}
	if m.Status == "" {
		m.Status = model.MilestonePending
	}
	if err := s.milestones.Insert(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Info("Milestone created", zap.String("milestone_id", m.ID.String()), zap.String("project_id", projectID.String()))
	return m, nil
}

func (s *MilestoneService) List(ctx context.Context, userID, projectID uuid.UUID) ([]*model.Milestone, error) {
	if _, _, err := s.projects.access(ctx, userID, projectID, rbac.PermissionReadProject); err != nil {
		return nil, err
	}
	return s.milestones.ListByProject(ctx, projectID)
}

func (s *MilestoneService) load(ctx context.Context, userID, id uuid.UUID, perm rbac.Permission) (*model.Milestone, error) {
	m, err := s.milestones.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.projects.access(ctx, userID, m.ProjectID, perm); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *MilestoneService) Get(ctx context.Context, userID, id uuid.UUID) (*model.Milestone, error) {
	return s.load(ctx, userID, id, rbac.PermissionReadProject)
}

func (s *MilestoneService) Update(ctx context.Context, userID, id uuid.UUID, in validation.MilestoneUpdateInput) (*model.Milestone, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	m, err := s.load(ctx, userID, id, rbac.PermissionUpdateProject)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		m.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		m.Description = *in.Description
	}
	if in.DueDate != nil {
		m.DueDate = in.DueDate
	}
	if in.Status != nil {
		m.Status = *in.Status
	}
	if err := s.milestones.Update(ctx, m); err != nil {
		return nil, err
	}
	if in.Position != nil && *in.Position != m.Position {
		if err := s.reposition(ctx, m, *in.Position); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// reposition 把里程碑放到目标位置，其余里程碑依次顺延
func (s *MilestoneService) reposition(ctx context.Context, m *model.Milestone, position int) error {
	all, err := s.milestones.ListByProject(ctx, m.ProjectID)
	if err != nil {
		return err
	}
	from := -1
	for i, other := range all {
		if other.ID == m.ID {
			from = i
		}
	}
	if from < 0 {
		return ErrNotFound
	}
	to := min(position, len(all)-1)
	ordered, err := reorder.Reorder(all, from, to)
	if err != nil {
		return err
	}
	changed := reorder.Renumber(ordered,
		func(x *model.Milestone) int { return x.Position },
		func(x *model.Milestone, p int) { x.Position = p },
	)
	for _, i := range changed {
		if err := s.milestones.Update(ctx, ordered[i]); err != nil {
			return err
		}
		if ordered[i].ID == m.ID {
			m.Position = ordered[i].Position
		}
	}
	return nil
}

func (s *MilestoneService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.load(ctx, userID, id, rbac.PermissionUpdateProject); err != nil {
		return err
	}
	return s.milestones.Delete(ctx, id)
}
