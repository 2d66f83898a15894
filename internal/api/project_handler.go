package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"foco/internal/filtering"
	"foco/internal/service"
	"foco/internal/validation"
)

type ProjectHandler struct {
	base
	projects   *service.ProjectService
	milestones *service.MilestoneService
}

func NewProjectHandler(b base, projects *service.ProjectService, milestones *service.MilestoneService) *ProjectHandler {
	return &ProjectHandler{base: b, projects: projects, milestones: milestones}
}

// Create POST /organizations/:orgID/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	orgID, ok := h.uuidParam(c, "orgID")
	if !ok {
		return
	}
	var req validation.ProjectCreateInput
	if !h.bind(c, &req) {
		return
	}
	p, err := h.projects.Create(c.Request.Context(), currentUser(c), orgID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// List GET /organizations/:orgID/projects?filter=status:eq:active&sort=-due_date
func (h *ProjectHandler) List(c *gin.Context) {
	orgID, ok := h.uuidParam(c, "orgID")
	if !ok {
		return
	}
	opts, err := filtering.ParseQuery(c.Request.URL.Query())
	if err != nil {
		h.fail(c, err)
		return
	}
	page, err := h.projects.List(c.Request.Context(), currentUser(c), orgID, opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *ProjectHandler) Get(c *gin.Context) {
	id, ok := h.uuidParam(c, "projectID")
	if !ok {
		return
	}
	p, err := h.projects.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProjectHandler) Update(c *gin.Context) {
	id, ok := h.uuidParam(c, "projectID")
	if !ok {
		return
	}
	var req validation.ProjectUpdateInput
	if !h.bind(c, &req) {
		return
	}
	p, err := h.projects.Update(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProjectHandler) Delete(c *gin.Context) {
	id, ok := h.uuidParam(c, "projectID")
	if !ok {
		return
	}
	if err := h.projects.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProjectHandler) CreateMilestone(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectID")
	if !ok {
		return
	}
	var req validation.MilestoneCreateInput
	if !h.bind(c, &req) {
		return
	}
	m, err := h.milestones.Create(c.Request.Context(), currentUser(c), projectID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *ProjectHandler) ListMilestones(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectID")
	if !ok {
		return
	}
	ms, err := h.milestones.List(c.Request.Context(), currentUser(c), projectID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestones": ms})
}

func (h *ProjectHandler) GetMilestone(c *gin.Context) {
	id, ok := h.uuidParam(c, "milestoneID")
	if !ok {
		return
	}
	m, err := h.milestones.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *ProjectHandler) UpdateMilestone(c *gin.Context) {
	id, ok := h.uuidParam(c, "milestoneID")
	if !ok {
		return
	}
	var req validation.MilestoneUpdateInput
	if !h.bind(c, &req) {
		return
	}
	m, err := h.milestones.Update(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *ProjectHandler) DeleteMilestone(c *gin.Context) {
	id, ok := h.uuidParam(c, "milestoneID")
	if !ok {
		return
	}
	if err := h.milestones.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
