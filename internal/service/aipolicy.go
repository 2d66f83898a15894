package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	contracts "foco/contracts/mq"
	"foco/internal/model"
	"foco/internal/repository"
	"foco/internal/validation"
	"foco/pkg/db"
	"foco/pkg/outbox"
	"foco/pkg/rbac"
	"foco/pkg/trace"
)

// ToolRequest 一次工具调用的授权请求
type ToolRequest struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	Tool           string
	ProjectID      *uuid.UUID
	TaskCount      int
	Input          any
}

// Decision Authorize 允许后返回，执行完成后交给 Record 写审计
type Decision struct {
	Request ToolRequest
	Level   model.AuditLevel
}

type AIPolicyService struct {
	db       db.Querier
	orgs     *OrganizationService
	policies *repository.AIPolicyRepository
	events   outbox.Writer
	logger   *zap.Logger
}

func NewAIPolicyService(q db.Querier, orgs *OrganizationService, policies *repository.AIPolicyRepository, events outbox.Writer, logger *zap.Logger) *AIPolicyService {
	return &AIPolicyService{db: q, orgs: orgs, policies: policies, events: events, logger: logger}
}

// Policy 未配置时返回默认策略
func (s *AIPolicyService) Policy(ctx context.Context, orgID uuid.UUID) (*model.AIPolicy, error) {
	p, err := s.policies.Get(ctx, orgID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.DefaultAIPolicy(orgID), nil
	}
	return p, err
}

func (s *AIPolicyService) Get(ctx context.Context, userID, orgID uuid.UUID) (*model.AIPolicy, error) {
	if _, err := s.orgs.Authorize(ctx, orgID, userID, rbac.PermissionReadOrg); err != nil {
		return nil, err
	}
	return s.Policy(ctx, orgID)
}

// Update 只有 admin 及以上可以修改
func (s *AIPolicyService) Update(ctx context.Context, userID, orgID uuid.UUID, in validation.AIPolicyInput) (*model.AIPolicy, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	if _, err := s.orgs.Authorize(ctx, orgID, userID, rbac.PermissionManageAIPolicy); err != nil {
		return nil, err
	}
	p := &model.AIPolicy{
		OrganizationID: orgID,
		EnabledTools:   NormalizeTags(in.EnabledTools),
		Constraints: model.AIConstraints{
			MaxTasksPerRequest: in.Constraints.MaxTasksPerRequest,
			AllowDelete:        in.Constraints.AllowDelete,
			AllowedProjectIDs:  uniqueIDs(in.Constraints.AllowedProjectIDs),
		},
		AuditLevel: in.AuditLevel,
		UpdatedBy:  &userID,
	}
	if err := s.policies.Upsert(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("AI policy updated",
		zap.String("organization_id", orgID.String()),
		zap.String("updated_by", userID.String()),
	)
	return p, nil
}

func (s *AIPolicyService) AuditLog(ctx context.Context, userID, orgID uuid.UUID, limit int) ([]*model.AIAuditEntry, error) {
	if _, err := s.orgs.Authorize(ctx, orgID, userID, rbac.PermissionManageAIPolicy); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.policies.ListAudit(ctx, orgID, limit)
}

// Authorize 拒绝时写审计并返回 ErrPolicyDenied；允许时返回 Decision
func (s *AIPolicyService) Authorize(ctx context.Context, req ToolRequest) (*Decision, error) {
	if _, err := s.orgs.Authorize(ctx, req.OrganizationID, req.UserID, rbac.PermissionUseAI); err != nil {
		return nil, err
	}
	p, err := s.Policy(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}
	d := &Decision{Request: req, Level: p.AuditLevel}
	if reason := Evaluate(p, req); reason != "" {
		s.audit(ctx, d, false, reason, nil)
		s.logger.Warn("AI tool denied by policy",
			zap.String("organization_id", req.OrganizationID.String()),
			zap.String("tool", req.Tool),
			zap.String("reason", reason),
		)
		return nil, fmt.Errorf("%w: %s", ErrPolicyDenied, reason)
	}
	return d, nil
}

// Record 工具执行完成后写审计；full 级别会带上输出
func (s *AIPolicyService) Record(ctx context.Context, d *Decision, output any) {
	if d == nil {
		return
	}
	s.audit(ctx, d, true, "", output)
}

// Evaluate 返回拒绝原因，允许时返回空串
func Evaluate(p *model.AIPolicy, req ToolRequest) string {
	if !p.ToolEnabled(req.Tool) {
		return "tool " + req.Tool + " is disabled"
	}
	if req.Tool == model.ToolDeleteTask && !p.Constraints.AllowDelete {
		return "deletion is not allowed"
	}
	if req.ProjectID != nil && !p.ProjectAllowed(*req.ProjectID) {
		return "project is outside the allowed set"
	}
	if limit := p.Constraints.MaxTasksPerRequest; limit > 0 && req.TaskCount > limit {
		return fmt.Sprintf("request touches %d tasks, limit is %d", req.TaskCount, limit)
	}
	return ""
}

// audit 审计失败不影响主流程
func (s *AIPolicyService) audit(ctx context.Context, d *Decision, allowed bool, reason string, output any) {
	if d.Level == model.AuditNone || d.Level == "" {
		return
	}
	e := &model.AIAuditEntry{
		ID:             uuid.New(),
		OrganizationID: d.Request.OrganizationID,
		UserID:         d.Request.UserID,
		Tool:           d.Request.Tool,
		Allowed:        allowed,
		Reason:         reason,
	}
	if d.Level == model.AuditFull {
		e.Input = marshalAudit(d.Request.Input)
		e.Output = marshalAudit(output)
	}

	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.policies.WithQuerier(tx).InsertAudit(ctx, e); err != nil {
			return err
		}
		return s.events.Write(ctx, tx, contracts.AggregateAIPolicy, e.OrganizationID.String(), contracts.AIAudit, contracts.AIAuditPayload{
			OrganizationID: e.OrganizationID,
			UserID:         e.UserID,
			Tool:           e.Tool,
			Allowed:        allowed,
			Reason:         reason,
			TraceID:        trace.FromContext(ctx),
		})
	})
	if err != nil {
		s.logger.Error("Failed to write AI audit entry", zap.String("tool", e.Tool), zap.Error(err))
	}
}

func marshalAudit(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
