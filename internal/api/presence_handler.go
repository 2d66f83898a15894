package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"foco/internal/service"
	"foco/internal/validation"
)

type PresenceHandler struct {
	base
	presence *service.PresenceService
}

func NewPresenceHandler(b base, presence *service.PresenceService) *PresenceHandler {
	return &PresenceHandler{base: b, presence: presence}
}

// Heartbeat PUT /projects/:projectID/presence，返回当前在线列表
func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectID")
	if !ok {
		return
	}
	var req validation.PresenceInput
	if !h.bind(c, &req) {
		return
	}
	list, err := h.presence.Heartbeat(c.Request.Context(), currentUser(c), projectID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"presence": list})
}

func (h *PresenceHandler) List(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectID")
	if !ok {
		return
	}
	list, err := h.presence.List(c.Request.Context(), currentUser(c), projectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"presence": list})
}

func (h *PresenceHandler) Leave(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectID")
	if !ok {
		return
	}
	if err := h.presence.Leave(c.Request.Context(), currentUser(c), projectID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
