package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"foco/internal/service"
	"foco/internal/validation"
)

type CommentHandler struct {
	base
	comments *service.CommentService
}

func NewCommentHandler(b base, comments *service.CommentService) *CommentHandler {
	return &CommentHandler{base: b, comments: comments}
}

func (h *CommentHandler) Create(c *gin.Context) {
	var req validation.CommentInput
	if !h.bind(c, &req) {
		return
	}
	cm, err := h.comments.Create(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cm)
}

// List GET /comments?entity_type=task&entity_id=...
func (h *CommentHandler) List(c *gin.Context) {
	et, id, ok := h.entityParams(c)
	if !ok {
		return
	}
	list, err := h.comments.List(c.Request.Context(), currentUser(c), et, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": list})
}

func (h *CommentHandler) Update(c *gin.Context) {
	id, ok := h.uuidParam(c, "commentID")
	if !ok {
		return
	}
	var req validation.CommentUpdateInput
	if !h.bind(c, &req) {
		return
	}
	cm, err := h.comments.Update(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cm)
}

func (h *CommentHandler) Delete(c *gin.Context) {
	id, ok := h.uuidParam(c, "commentID")
	if !ok {
		return
	}
	if err := h.comments.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
