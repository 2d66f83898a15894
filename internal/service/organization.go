package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"foco/internal/model"
	"foco/internal/repository"
	"foco/internal/validation"
	"foco/pkg/db"
	"foco/pkg/rbac"
)

type OrganizationService struct {
	db     db.Querier
	orgs   *repository.OrganizationRepository
	logger *zap.Logger
}

func NewOrganizationService(q db.Querier, orgs *repository.OrganizationRepository, logger *zap.Logger) *OrganizationService {
	return &OrganizationService{db: q, orgs: orgs, logger: logger}
}

// Authorize 校验用户在组织中具备指定权限，返回其角色
func (s *OrganizationService) Authorize(ctx context.Context, orgID, userID uuid.UUID, perm rbac.Permission) (rbac.Role, error) {
	role, err := s.orgs.MemberRole(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("%w: not a member of organization %s", ErrForbidden, orgID)
		}
		return "", err
	}
	if err := rbac.CheckPermission(userID, role, perm); err != nil {
		s.logger.Warn("Permission denied",
			zap.String("organization_id", orgID.String()),
			zap.String("user_id", userID.String()),
			zap.String("role", string(role)),
			zap.String("permission", string(perm)),
		)
		return role, fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	return role, nil
}

// IsMember 用于校验被指派人等引用
func (s *OrganizationService) IsMember(ctx context.Context, orgID, userID uuid.UUID) (bool, error) {
	_, err := s.orgs.MemberRole(ctx, orgID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Create 创建者成为 owner
func (s *OrganizationService) Create(ctx context.Context, userID uuid.UUID, in validation.OrganizationInput) (*model.Organization, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}

	slug, err := s.uniqueSlug(ctx, in.Name)
	if err != nil {
		return nil, err
	}
	org := &model.Organization{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(in.Name),
		Slug:        slug,
		Description: in.Description,
		OwnerID:     userID,
	}

	err = db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		orgs := s.orgs.WithQuerier(tx)
		if err := orgs.Insert(ctx, org); err != nil {
			return err
		}
		return orgs.AddMember(ctx, &model.OrganizationMember{
			OrganizationID: org.ID,
			UserID:         userID,
			Role:           rbac.RoleOwner,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: slug %q taken", ErrConflict, slug)
		}
		return nil, err
	}

	s.logger.Info("Organization created", zap.String("organization_id", org.ID.String()), zap.String("slug", slug))
	return org, nil
}

func (s *OrganizationService) Get(ctx context.Context, userID, orgID uuid.UUID) (*model.Organization, error) {
	if _, err := s.Authorize(ctx, orgID, userID, rbac.PermissionReadOrg); err != nil {
		return nil, err
	}
	return s.orgs.Get(ctx, orgID)
}

func (s *OrganizationService) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.Organization, error) {
	return s.orgs.ListForUser(ctx, userID)
}

func (s *OrganizationService) Members(ctx context.Context, userID, orgID uuid.UUID) ([]model.OrganizationMember, error) {
	if _, err := s.Authorize(ctx, orgID, userID, rbac.PermissionReadOrg); err != nil {
		return nil, err
	}
	return s.orgs.Members(ctx, orgID)
}

// AddMember 只有 owner 可以授予 owner 角色
func (s *OrganizationService) AddMember(ctx context.Context, userID, orgID uuid.UUID, in validation.MemberInput) (*model.OrganizationMember, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	role, err := s.Authorize(ctx, orgID, userID, rbac.PermissionManageMembers)
	if err != nil {
		return nil, err
	}
	if in.Role == rbac.RoleOwner && role != rbac.RoleOwner {
		return nil, fmt.Errorf("%w: only owners can add owners", ErrForbidden)
	}

	m := &model.OrganizationMember{OrganizationID: orgID, UserID: in.UserID, Role: in.Role}
	if err := s.orgs.AddMember(ctx, m); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: user is already a member", ErrConflict)
		}
		return nil, err
	}
	s.logger.Info("Member added",
		zap.String("organization_id", orgID.String()),
		zap.String("member_id", in.UserID.String()),
		zap.String("role", string(in.Role)),
	)
	return m, nil
}

// UpdateMemberRole 不能把最后一个 owner 降级
func (s *OrganizationService) UpdateMemberRole(ctx context.Context, userID, orgID, memberID uuid.UUID, in validation.MemberRoleInput) error {
	if err := validation.Validate(in); err != nil {
		return err
	}
	role, err := s.Authorize(ctx, orgID, userID, rbac.PermissionManageMembers)
	if err != nil {
		return err
	}

	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		orgs := s.orgs.WithQuerier(tx)
		current, err := orgs.MemberRole(ctx, orgID, memberID)
		if err != nil {
			return err
		}
		if (current == rbac.RoleOwner || in.Role == rbac.RoleOwner) && role != rbac.RoleOwner {
			return fmt.Errorf("%w: only owners can change owner roles", ErrForbidden)
		}
		if current == rbac.RoleOwner && in.Role != rbac.RoleOwner {
			if err := s.ensureAnotherOwner(ctx, orgs, orgID); err != nil {
				return err
			}
		}
		return orgs.UpdateMemberRole(ctx, orgID, memberID, in.Role)
	})
}

// RemoveMember 成员可以自己退出；移除他人需要 member:manage
func (s *OrganizationService) RemoveMember(ctx context.Context, userID, orgID, memberID uuid.UUID) error {
	perm := rbac.PermissionManageMembers
	if userID == memberID {
		perm = rbac.PermissionReadOrg
	}
	role, err := s.Authorize(ctx, orgID, userID, perm)
	if err != nil {
		return err
	}

	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		orgs := s.orgs.WithQuerier(tx)
		current, err := orgs.MemberRole(ctx, orgID, memberID)
		if err != nil {
			return err
		}
		if current == rbac.RoleOwner {
			if userID != memberID && role != rbac.RoleOwner {
				return fmt.Errorf("%w: only owners can remove owners", ErrForbidden)
			}
			if err := s.ensureAnotherOwner(ctx, orgs, orgID); err != nil {
				return err
			}
		}
		return orgs.RemoveMember(ctx, orgID, memberID)
	})
}

func (s *OrganizationService) ensureAnotherOwner(ctx context.Context, orgs *repository.OrganizationRepository, orgID uuid.UUID) error {
	owners, err := orgs.CountOwners(ctx, orgID)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return fmt.Errorf("%w: organization must keep at least one owner", ErrConflict)
	}
	return nil
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify "Acme Corp!" -> "acme-corp"
func Slugify(name string) string {
	s := slugInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	s = strings.Trim(s, "-")
	if len(s) > 48 {
		s = strings.TrimRight(s[:48], "-")
	}
	if s == "" {
		s = "org"
	}
	return s
}

func (s *OrganizationService) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := Slugify(name)
	slug := base
	for i := 2; i < 100; i++ {
		exists, err := s.orgs.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Sprintf("%s-%s", base, uuid.NewString()[:8]), nil
}
