package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"foco/internal/service"
	"foco/internal/validation"
	"foco/pkg/rbac"
)

// OrgAuthorizer 由 service.OrganizationService 实现
type OrgAuthorizer interface {
	Authorize(ctx context.Context, orgID, userID uuid.UUID, perm rbac.Permission) (rbac.Role, error)
}

type VoiceHandler struct {
	base
	voice *service.VoiceService
	orgs  OrgAuthorizer
}

func NewVoiceHandler(b base, voice *service.VoiceService, orgs OrgAuthorizer) *VoiceHandler {
	return &VoiceHandler{base: b, voice: voice, orgs: orgs}
}

type startConversationRequest struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	Locale         string    `json:"locale"`
}

// Start POST /voice/conversations；locale 缺省时使用协商出的请求语言
func (h *VoiceHandler) Start(c *gin.Context) {
	var req startConversationRequest
	if !h.bind(c, &req) {
		return
	}
	if req.OrganizationID == uuid.Nil {
		h.fail(c, validation.Errors{{Field: "organization_id", Rule: "required", Message: "is required"}})
		return
	}
	userID := currentUser(c)
	if _, err := h.orgs.Authorize(c.Request.Context(), req.OrganizationID, userID, rbac.PermissionUseAI); err != nil {
		h.fail(c, err)
		return
	}
	locale := req.Locale
	if locale == "" {
		locale = c.Writer.Header().Get("Content-Language")
	}
	conv, greeting := h.voice.Start(c.Request.Context(), userID, req.OrganizationID, locale)
	c.JSON(http.StatusCreated, gin.H{
		"conversation_id": conv.ID,
		"locale":          conv.Locale,
		"reply":           greeting,
	})
}

// Command POST /voice/conversations/:conversationID/commands {"transcript": "..."}
func (h *VoiceHandler) Command(c *gin.Context) {
	id, ok := h.uuidParam(c, "conversationID")
	if !ok {
		return
	}
	var req validation.VoiceCommandInput
	if !h.bind(c, &req) {
		return
	}
	if err := validation.Validate(req); err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.voice.Process(c.Request.Context(), currentUser(c), id, req.Transcript)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *VoiceHandler) History(c *gin.Context) {
	id, ok := h.uuidParam(c, "conversationID")
	if !ok {
		return
	}
	msgs, err := h.voice.History(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id, "messages": msgs})
}

func (h *VoiceHandler) End(c *gin.Context) {
	id, ok := h.uuidParam(c, "conversationID")
	if !ok {
		return
	}
	if err := h.voice.End(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
