package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"foco/internal/filtering"
	"foco/internal/service"
	"foco/internal/validation"
)

type GoalHandler struct {
	base
	goals *service.GoalService
}

func NewGoalHandler(b base, goals *service.GoalService) *GoalHandler {
	return &GoalHandler{base: b, goals: goals}
}

func (h *GoalHandler) Create(c *gin.Context) {
	orgID, ok := h.uuidParam(c, "orgID")
	if !ok {
		return
	}
	var req validation.GoalInput
	if !h.bind(c, &req) {
		return
	}
	g, err := h.goals.Create(c.Request.Context(), currentUser(c), orgID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (h *GoalHandler) List(c *gin.Context) {
	orgID, ok := h.uuidParam(c, "orgID")
	if !ok {
		return
	}
	opts, err := filtering.ParseQuery(c.Request.URL.Query())
	if err != nil {
		h.fail(c, err)
		return
	}
	page, err := h.goals.List(c.Request.Context(), currentUser(c), orgID, opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *GoalHandler) Get(c *gin.Context) {
	id, ok := h.uuidParam(c, "goalID")
	if !ok {
		return
	}
	g, err := h.goals.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *GoalHandler) Update(c *gin.Context) {
	id, ok := h.uuidParam(c, "goalID")
	if !ok {
		return
	}
	var req validation.GoalUpdateInput
	if !h.bind(c, &req) {
		return
	}
	g, err := h.goals.Update(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// UpdateProgress POST /goals/:goalID/progress
func (h *GoalHandler) UpdateProgress(c *gin.Context) {
	id, ok := h.uuidParam(c, "goalID")
	if !ok {
		return
	}
	var req validation.GoalProgressInput
	if !h.bind(c, &req) {
		return
	}
	g, err := h.goals.UpdateProgress(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *GoalHandler) Delete(c *gin.Context) {
	id, ok := h.uuidParam(c, "goalID")
	if !ok {
		return
	}
	if err := h.goals.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
