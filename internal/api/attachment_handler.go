package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/model"
	"foco/internal/service"
	"foco/internal/validation"
)

type AttachmentHandler struct {
	base
	uploads  *service.FileUploadService
	queue    *service.UploadQueue
	maxBytes int64
}

func NewAttachmentHandler(b base, uploads *service.FileUploadService, queue *service.UploadQueue, maxBytes int64) *AttachmentHandler {
	return &AttachmentHandler{base: b, uploads: uploads, queue: queue, maxBytes: maxBytes}
}

// Upload POST /attachments (multipart: file, entity_type, entity_id)
// ?async=true 时立即返回 202 和任务 id
func (h *AttachmentHandler) Upload(c *gin.Context) {
	c.Set(maxUploadMBKey, int(h.maxBytes/(1024*1024)))

	fh, err := c.FormFile("file")
	if err != nil {
		h.fail(c, validation.Errors{{Field: "file", Rule: "required", Message: "multipart field file is required"}})
		return
	}
	entityID, err := uuid.Parse(c.PostForm("entity_id"))
	if err != nil {
		h.fail(c, validation.Errors{{Field: "entity_id", Rule: "uuid", Message: "must be a valid UUID"}})
		return
	}
	meta := validation.FileMetaInput{
		EntityType: model.EntityType(c.PostForm("entity_type")),
		EntityID:   entityID,
		FileName:   fh.Filename,
		MimeType:   contentType(fh.Header.Get("Content-Type"), fh.Filename),
		Size:       fh.Size,
	}
	c.Set(mimeKey, meta.MimeType)

	if _, err := h.uploads.Validate(meta.FileName, meta.MimeType, meta.Size); err != nil {
		h.fail(c, err)
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.fail(c, fmt.Errorf("open multipart file: %w", err))
		return
	}
	defer f.Close()

	userID := currentUser(c)
	if c.Query("async") != "true" {
		a, err := h.uploads.Upload(c.Request.Context(), userID, meta, f)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, a)
		return
	}

	// multipart 临时文件在请求结束后会被清理，先读入内存
	buf, err := io.ReadAll(io.LimitReader(f, meta.Size+1))
	if err != nil {
		h.fail(c, fmt.Errorf("read multipart file: %w", err))
		return
	}
	jobID := h.queue.Submit(c.Request.Context(), userID, func(ctx context.Context) (any, error) {
		return h.uploads.Upload(ctx, userID, meta, bytes.NewReader(buf))
	})
	h.logger.Info("Upload queued", zap.String("job_id", jobID.String()), zap.String("file_name", meta.FileName))
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": service.JobPending})
}

// ownJob 异步任务只允许提交者查询和取消；过期被清理的任务同样返回 404
func (h *AttachmentHandler) ownJob(c *gin.Context) (service.UploadJob, bool) {
	id, ok := h.uuidParam(c, "jobID")
	if !ok {
		return service.UploadJob{}, false
	}
	job, found := h.queue.Status(id)
	if !found || job.Owner != currentUser(c) {
		h.fail(c, service.ErrNotFound)
		return service.UploadJob{}, false
	}
	return job, true
}

// JobStatus GET /uploads/:jobID
func (h *AttachmentHandler) JobStatus(c *gin.Context) {
	job, ok := h.ownJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job)
}

// CancelJob DELETE /uploads/:jobID
func (h *AttachmentHandler) CancelJob(c *gin.Context) {
	job, ok := h.ownJob(c)
	if !ok {
		return
	}
	if !h.queue.Cancel(job.ID) {
		h.fail(c, fmt.Errorf("%w: upload already finished", service.ErrConflict))
		return
	}
	c.Status(http.StatusNoContent)
}

// List GET /attachments?entity_type=task&entity_id=...
func (h *AttachmentHandler) List(c *gin.Context) {
	et, id, ok := h.entityParams(c)
	if !ok {
		return
	}
	list, err := h.uploads.List(c.Request.Context(), currentUser(c), et, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attachments": list})
}

// Download GET /attachments/:attachmentID/download
func (h *AttachmentHandler) Download(c *gin.Context) {
	id, ok := h.uuidParam(c, "attachmentID")
	if !ok {
		return
	}
	a, rc, err := h.uploads.Open(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer rc.Close()
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": a.FileName})
	c.DataFromReader(http.StatusOK, a.SizeBytes, a.MimeType, rc, map[string]string{
		"Content-Disposition": disposition,
	})
}

func (h *AttachmentHandler) Delete(c *gin.Context) {
	id, ok := h.uuidParam(c, "attachmentID")
	if !ok {
		return
	}
	if err := h.uploads.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// contentType 优先使用 multipart 声明的类型，否则按扩展名推断
func contentType(declared, name string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
