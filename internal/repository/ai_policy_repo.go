package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/model"
	"foco/pkg/db"
)

type AIPolicyRepository struct {
	db     db.Querier
	logger *zap.Logger
}

func NewAIPolicyRepository(q db.Querier, logger *zap.Logger) *AIPolicyRepository {
	return &AIPolicyRepository{db: q, logger: logger}
}

func (r *AIPolicyRepository) WithQuerier(q db.Querier) *AIPolicyRepository {
	return &AIPolicyRepository{db: q, logger: r.logger}
}

// Get 组织未配置策略时返回 ErrNotFound
func (r *AIPolicyRepository) Get(ctx context.Context, orgID uuid.UUID) (*model.AIPolicy, error) {
	query := `
        SELECT organization_id, enabled_tools, constraints, audit_level, updated_by, updated_at
        FROM ai_policies WHERE organization_id = $1
    `
	var (
		p           model.AIPolicy
		constraints []byte
	)
	err := r.db.QueryRow(ctx, query, orgID).Scan(
		&p.OrganizationID, &p.EnabledTools, &constraints, &p.AuditLevel, &p.UpdatedBy, &p.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	if len(constraints) > 0 {
		if err := json.Unmarshal(constraints, &p.Constraints); err != nil {
			return nil, fmt.Errorf("decode ai policy constraints: %w", err)
		}
	}
	return &p, nil
}

func (r *AIPolicyRepository) Upsert(ctx context.Context, p *model.AIPolicy) error {
	constraints, err := json.Marshal(p.Constraints)
	if err != nil {
		return err
	}
	if p.EnabledTools == nil {
		p.EnabledTools = []string{}
	}
	r.logger.Info("Upserting AI policy",
		zap.String("organization_id", p.OrganizationID.String()),
		zap.Strings("enabled_tools", p.EnabledTools),
		zap.String("audit_level", string(p.AuditLevel)),
	)
	query := `
        INSERT INTO ai_policies (organization_id, enabled_tools, constraints, audit_level, updated_by, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        ON CONFLICT (organization_id) DO UPDATE
        SET enabled_tools = EXCLUDED.enabled_tools,
            constraints = EXCLUDED.constraints,
            audit_level = EXCLUDED.audit_level,
            updated_by = EXCLUDED.updated_by,
            updated_at = NOW()
        RETURNING updated_at
    `
	return translate(r.db.QueryRow(ctx, query,
		p.OrganizationID, p.EnabledTools, constraints, p.AuditLevel, p.UpdatedBy,
	).Scan(&p.UpdatedAt))
}

func (r *AIPolicyRepository) InsertAudit(ctx context.Context, e *model.AIAuditEntry) error {
	query := `
        INSERT INTO ai_audit_log (id, organization_id, user_id, tool, allowed, reason, input, output)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at
    `
	return translate(r.db.QueryRow(ctx, query,
		e.ID, e.OrganizationID, e.UserID, e.Tool, e.Allowed, e.Reason, nullJSON(e.Input), nullJSON(e.Output),
	).Scan(&e.CreatedAt))
}

func (r *AIPolicyRepository) ListAudit(ctx context.Context, orgID uuid.UUID, limit int) ([]*model.AIAuditEntry, error) {
	query := `
        SELECT id, organization_id, user_id, tool, allowed, reason, input, output, created_at
        FROM ai_audit_log WHERE organization_id = $1
        ORDER BY created_at DESC LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := []*model.AIAuditEntry{}
	for rows.Next() {
		var (
			e             model.AIAuditEntry
			input, output []byte
		)
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.UserID, &e.Tool, &e.Allowed, &e.Reason,
			&input, &output, &e.CreatedAt); err != nil {
			return nil, translate(err)
		}
		e.Input, e.Output = input, output
		out = append(out, &e)
	}
	return out, rows.Err()
}

// nullJSON 空 payload 写入 NULL
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
