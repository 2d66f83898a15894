package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"foco/internal/service"
	"foco/internal/validation"
	"foco/pkg/outbox"
)

type AdminHandler struct {
	base
	replay *outbox.ReplayService
}

func NewAdminHandler(b base, replay *outbox.ReplayService) *AdminHandler {
	return &AdminHandler{base: b, replay: replay}
}

// ListFailed GET /admin/outbox/failed?limit=100
func (h *AdminHandler) ListFailed(c *gin.Context) {
	events, err := h.replay.ListFailed(c.Request.Context(), intQuery(c, "limit", 100))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// ReplayOutboxEvent POST /admin/outbox/replay?id=xxx
func (h *AdminHandler) ReplayOutboxEvent(c *gin.Context) {
	eventID, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil || eventID <= 0 {
		h.fail(c, validation.Errors{{Field: "id", Rule: "required", Message: "must be a positive event id"}})
		return
	}

	if err := h.replay.ReplayEvent(c.Request.Context(), eventID); err != nil {
		if errors.Is(err, outbox.ErrEventNotFound) {
			h.fail(c, service.ErrNotFound)
			return
		}
		h.logger.Error("Failed to replay event", zap.Int64("event_id", eventID), zap.Error(err))
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "replayed", "event_id": eventID})
}

// ReplayFailedEvents POST /admin/outbox/replay-failed?limit=100
func (h *AdminHandler) ReplayFailedEvents(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	if limit <= 0 {
		limit = 100
	}
	n, err := h.replay.ReplayFailedEvents(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to replay failed events", zap.Error(err))
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed", "success_count": n, "limit": limit})
}
