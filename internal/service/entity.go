package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"foco/internal/model"
	"foco/internal/repository"
	"foco/pkg/rbac"
)

// EntityResolver 把评论/附件挂载的实体解析到所属项目，并校验权限
type EntityResolver struct {
	projects   *ProjectService
	tasks      *repository.TaskRepository
	milestones *repository.MilestoneRepository
}

func NewEntityResolver(projects *ProjectService, tasks *repository.TaskRepository, milestones *repository.MilestoneRepository) *EntityResolver {
	return &EntityResolver{projects: projects, tasks: tasks, milestones: milestones}
}

func (r *EntityResolver) Resolve(ctx context.Context, userID uuid.UUID, entityType model.EntityType, entityID uuid.UUID, perm rbac.Permission) (*model.Project, rbac.Role, error) {
	var projectID uuid.UUID
	switch entityType {
	case model.EntityProject:
		projectID = entityID
	case model.EntityTask:
		t, err := r.tasks.Get(ctx, entityID)
		if err != nil {
			return nil, "", err
		}
		projectID = t.ProjectID
	case model.EntityMilestone:
		m, err := r.milestones.Get(ctx, entityID)
		if err != nil {
			return nil, "", err
		}
		projectID = m.ProjectID
	default:
		return nil, "", fmt.Errorf("%w: entity type %q", ErrInvalidInput, entityType)
	}
	return r.projects.access(ctx, userID, projectID, perm)
}
