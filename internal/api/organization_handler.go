package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"foco/internal/service"
	"foco/internal/validation"
	"foco/pkg/rbac"
)

type OrganizationHandler struct {
	base
	orgs   *service.OrganizationService
	policy *service.AIPolicyService
}

func NewOrganizationHandler(b base, orgs *service.OrganizationService, policy *service.AIPolicyService) *OrganizationHandler {
	return &OrganizationHandler{base: b, orgs: orgs, policy: policy}
}

func (h *OrganizationHandler) Create(c *gin.Context) {
	var req validation.OrganizationInput
	if !h.bind(c, &req) {
		return
	}
	org, err := h.orgs.Create(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, org)
}

func (h *OrganizationHandler) List(c *gin.Context) {
	orgs, err := h.orgs.ListForUser(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": orgs})
}

func (h *OrganizationHandler) Get(c *gin.Context) {
	orgID, ok := h.uuidParam(c, "orgID")
	if !ok {
		return
	}
	org, err := h.orgs.Get(c.Request.Context(), currentUser(c), orgID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

func (h *OrganizationHandler) Members(c *gin.Context) {
	orgID, ok := h.uuidParam(c, "orgID")
	if !ok {
		return
	}
	members, err := h.orgs.Members(c.Request.Context(), currentUser(c), orgID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (h *OrganizationHandler) AddMember(c *gin.Context) {
	orgID, ok := h.uuidParam(c, "orgID")
	if !ok {
		return
	}
	var req validation.MemberInput
	if !h.bind(c, &req) {
		return
	}
	m, err := h.orgs.AddMember(c.Request.Context(), currentUser(c), orgID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *OrganizationHandler) UpdateMemberRole(c *gin.Context) {
	orgID, ok := h.uuidParam(c, "orgID")
	if !ok {
		return
	}
	memberID, ok := h.uuidParam(c, "userID")
	if !ok {
		return
	}
	var req validation.MemberRoleInput
	if !h.bind(c, &req) {
		return
	}
	if err := h.orgs.UpdateMemberRole(c.Request.Context(), currentUser(c), orgID, memberID, req); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": memberID, "role": req.Role, "permissions": rbac.PermissionsFor(req.Role)})
}

func (h *OrganizationHandler) RemoveMember(c *gin.Context) {
	orgID, ok := h.uuidParam(c, "orgID")
	if !ok {
		return
	}
	memberID, ok := h.uuidParam(c, "userID")
	if !ok {
		return
	}
	if err := h.orgs.RemoveMember(c.Request.Context(), currentUser(c), orgID, memberID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetAIPolicy GET /organizations/:orgID/ai-policy
func (h *OrganizationHandler) GetAIPolicy(c *gin.Context) {
	orgID, ok := h.uuidParam(c, "orgID")
	if !ok {
		return
	}
	p, err := h.policy.Get(c.Request.Context(), currentUser(c), orgID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *OrganizationHandler) UpdateAIPolicy(c *gin.Context) {
	orgID, ok := h.uuidParam(c, "orgID")
	if !ok {
		return
	}
	var req validation.AIPolicyInput
	if !h.bind(c, &req) {
		return
	}
	p, err := h.policy.Update(c.Request.Context(), currentUser(c), orgID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *OrganizationHandler) AIAuditLog(c *gin.Context) {
	orgID, ok := h.uuidParam(c, "orgID")
	if !ok {
		return
	}
	entries, err := h.policy.AuditLog(c.Request.Context(), currentUser(c), orgID, intQuery(c, "limit", 100))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
