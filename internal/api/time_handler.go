package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"foco/internal/service"
	"foco/internal/validation"
)

type TimeHandler struct {
	base
	time *service.TimeTrackingService
}

func NewTimeHandler(b base, tt *service.TimeTrackingService) *TimeHandler {
	return &TimeHandler{base: b, time: tt}
}

func (h *TimeHandler) StartTimer(c *gin.Context) {
	var req validation.TimerStartInput
	if !h.bind(c, &req) {
		return
	}
	e, err := h.time.StartTimer(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *TimeHandler) StopTimer(c *gin.Context) {
	e, err := h.time.StopTimer(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// Running GET /time-entries/running；没有运行中的计时器时返回 null
func (h *TimeHandler) Running(c *gin.Context) {
	e, err := h.time.Running(c.Request.Context(), currentUser(c))
	if err != nil && !isNotFound(err) {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": e})
}

func (h *TimeHandler) Log(c *gin.Context) {
	var req validation.TimeEntryInput
	if !h.bind(c, &req) {
		return
	}
	e, err := h.time.LogEntry(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *TimeHandler) query(c *gin.Context) (service.TimeQuery, bool) {
	projectID, ok := h.uuidQuery(c, "project_id", false)
	if !ok {
		return service.TimeQuery{}, false
	}
	taskID, ok := h.uuidQuery(c, "task_id", false)
	if !ok {
		return service.TimeQuery{}, false
	}
	from, to, ok := h.timeRange(c, 30)
	if !ok {
		return service.TimeQuery{}, false
	}
	return service.TimeQuery{ProjectID: projectID, TaskID: taskID, From: from, To: to}, true
}

// List GET /time-entries?project_id=&task_id=&from=&to=
func (h *TimeHandler) List(c *gin.Context) {
	q, ok := h.query(c)
	if !ok {
		return
	}
	entries, err := h.time.List(c.Request.Context(), currentUser(c), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *TimeHandler) Summary(c *gin.Context) {
	q, ok := h.query(c)
	if !ok {
		return
	}
	sum, err := h.time.Summary(c.Request.Context(), currentUser(c), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *TimeHandler) Delete(c *gin.Context) {
	id, ok := h.uuidParam(c, "entryID")
	if !ok {
		return
	}
	if err := h.time.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
