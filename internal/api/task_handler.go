package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"foco/internal/filtering"
	"foco/internal/service"
	"foco/internal/validation"
)

type TaskHandler struct {
	base
	tasks *service.TaskService
}

func NewTaskHandler(b base, tasks *service.TaskService) *TaskHandler {
	return &TaskHandler{base: b, tasks: tasks}
}

// Create POST /projects/:projectID/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectID")
	if !ok {
		return
	}
	var req validation.TaskInput
	if !h.bind(c, &req) {
		return
	}
	t, err := h.tasks.Create(c.Request.Context(), currentUser(c), projectID, req, service.SourceAPI)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// List GET /projects/:projectID/tasks；group_by=status 时返回分组
func (h *TaskHandler) List(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectID")
	if !ok {
		return
	}
	opts, err := filtering.ParseQuery(c.Request.URL.Query())
	if err != nil {
		h.fail(c, err)
		return
	}
	page, err := h.tasks.List(c.Request.Context(), currentUser(c), projectID, opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	if field := c.Query("group_by"); field != "" {
		c.JSON(http.StatusOK, filtering.GroupBy(page.Items, field))
		return
	}
	c.JSON(http.StatusOK, page)
}

// ListForOrg GET /organizations/:orgID/tasks
func (h *TaskHandler) ListForOrg(c *gin.Context) {
	orgID, ok := h.uuidParam(c, "orgID")
	if !ok {
		return
	}
	opts, err := filtering.ParseQuery(c.Request.URL.Query())
	if err != nil {
		h.fail(c, err)
		return
	}
	page, err := h.tasks.ListForOrg(c.Request.Context(), currentUser(c), orgID, opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Board GET /projects/:projectID/board
func (h *TaskHandler) Board(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectID")
	if !ok {
		return
	}
	board, err := h.tasks.Board(c.Request.Context(), currentUser(c), projectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": board})
}

func (h *TaskHandler) Get(c *gin.Context) {
	id, ok := h.uuidParam(c, "taskID")
	if !ok {
		return
	}
	t, err := h.tasks.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TaskHandler) Update(c *gin.Context) {
	id, ok := h.uuidParam(c, "taskID")
	if !ok {
		return
	}
	var req validation.TaskUpdateInput
	if !h.bind(c, &req) {
		return
	}
	t, err := h.tasks.Update(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TaskHandler) Delete(c *gin.Context) {
	id, ok := h.uuidParam(c, "taskID")
	if !ok {
		return
	}
	if err := h.tasks.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Move POST /tasks/:taskID/move {"status":"review","index":0}
func (h *TaskHandler) Move(c *gin.Context) {
	id, ok := h.uuidParam(c, "taskID")
	if !ok {
		return
	}
	var req validation.TaskMoveInput
	if !h.bind(c, &req) {
		return
	}
	t, err := h.tasks.Move(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// BulkStatus POST /tasks/bulk-status
func (h *TaskHandler) BulkStatus(c *gin.Context) {
	var req validation.BulkStatusInput
	if !h.bind(c, &req) {
		return
	}
	n, err := h.tasks.BulkUpdateStatus(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("Bulk status update", zap.Int("updated", n), zap.String("status", string(req.Status)))
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
