package repository

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/model"
	"foco/pkg/db"
	"foco/pkg/rbac"
)

type OrganizationRepository struct {
	db     db.Querier
	logger *zap.Logger
}

func NewOrganizationRepository(q db.Querier, logger *zap.Logger) *OrganizationRepository {
	return &OrganizationRepository{db: q, logger: logger}
}

// WithQuerier 返回绑定到事务的副本
func (r *OrganizationRepository) WithQuerier(q db.Querier) *OrganizationRepository {
	return &OrganizationRepository{db: q, logger: r.logger}
}

const orgColumns = `id, name, slug, description, owner_id, created_at, updated_at`

func scanOrg(s scanner) (*model.Organization, error) {
	var o model.Organization
	if err := s.Scan(&o.ID, &o.Name, &o.Slug, &o.Description, &o.OwnerID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (r *OrganizationRepository) Insert(ctx context.Context, o *model.Organization) error {
	r.logger.Debug("Inserting organization", zap.String("slug", o.Slug))
	query := `
        INSERT INTO organizations (id, name, slug, description, owner_id)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query, o.ID, o.Name, o.Slug, o.Description, o.OwnerID).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert organization", zap.Error(err), zap.String("slug", o.Slug))
		return translate(err)
	}
	return nil
}

func (r *OrganizationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	return scanOrg(r.db.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
}

func (r *OrganizationRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM organizations WHERE slug = $1)`, slug).Scan(&exists)
	return exists, translate(err)
}

func (r *OrganizationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.Organization, error) {
	query := `
        SELECT o.id, o.name, o.slug, o.description, o.owner_id, o.created_at, o.updated_at
        FROM organizations o
        JOIN organization_members m ON m.organization_id = o.id
        WHERE m.user_id = $1
        ORDER BY o.name
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	orgs := []model.Organization{}
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, *o)
	}
	return orgs, rows.Err()
}

func (r *OrganizationRepository) AddMember(ctx context.Context, m *model.OrganizationMember) error {
	r.logger.Debug("Adding organization member",
		zap.String("organization_id", m.OrganizationID.String()),
		zap.String("user_id", m.UserID.String()),
		zap.String("role", string(m.Role)),
	)
	query := `
        INSERT INTO organization_members (organization_id, user_id, role)
        VALUES ($1, $2, $3)
        RETURNING joined_at
    `
	return translate(r.db.QueryRow(ctx, query, m.OrganizationID, m.UserID, m.Role).Scan(&m.JoinedAt))
}

// MemberRole 返回用户在组织中的角色；非成员返回 ErrNotFound
func (r *OrganizationRepository) MemberRole(ctx context.Context, orgID, userID uuid.UUID) (rbac.Role, error) {
	var role rbac.Role
	err := r.db.QueryRow(ctx,
		`SELECT role FROM organization_members WHERE organization_id = $1 AND user_id = $2`,
		orgID, userID,
	).Scan(&role)
	return role, translate(err)
}

func (r *OrganizationRepository) Members(ctx context.Context, orgID uuid.UUID) ([]model.OrganizationMember, error) {
	query := `
        SELECT m.organization_id, m.user_id, m.role, u.username, u.email, m.joined_at
        FROM organization_members m
        JOIN users u ON u.id = m.user_id
        WHERE m.organization_id = $1
        ORDER BY m.joined_at
    `
	rows, err := r.db.Query(ctx, query, orgID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	members := []model.OrganizationMember{}
	for rows.Next() {
		var m model.OrganizationMember
		if err := rows.Scan(&m.OrganizationID, &m.UserID, &m.Role, &m.Username, &m.Email, &m.JoinedAt); err != nil {
			return nil, translate(err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *OrganizationRepository) UpdateMemberRole(ctx context.Context, orgID, userID uuid.UUID, role rbac.Role) error {
	return affected(r.db.Exec(ctx,
		`UPDATE organization_members SET role = $3 WHERE organization_id = $1 AND user_id = $2`,
		orgID, userID, role,
	))
}

func (r *OrganizationRepository) RemoveMember(ctx context.Context, orgID, userID uuid.UUID) error {
	return affected(r.db.Exec(ctx,
		`DELETE FROM organization_members WHERE organization_id = $1 AND user_id = $2`,
		orgID, userID,
	))
}

// CountOwners 加行锁统计 owner 数量，需要在事务中调用
func (r *OrganizationRepository) CountOwners(ctx context.Context, orgID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
        SELECT COUNT(*) FROM (
            SELECT 1 FROM organization_members
            WHERE organization_id = $1 AND role = 'owner'
            FOR UPDATE
        ) owners`, orgID).Scan(&n)
	return n, translate(err)
}
