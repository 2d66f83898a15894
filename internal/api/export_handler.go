package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"foco/internal/service"
	"foco/internal/validation"
)

// 导入文件上限
const maxImportBytes = 5 << 20

type ExportHandler struct {
	base
	exports *service.ExportService
}

func NewExportHandler(b base, exports *service.ExportService) *ExportHandler {
	return &ExportHandler{base: b, exports: exports}
}

// ExportTasks GET /projects/:projectID/export/tasks.csv
// 先写入缓冲区，出错时还能返回正常的错误响应
func (h *ExportHandler) ExportTasks(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectID")
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.exports.ExportTasks(c.Request.Context(), currentUser(c), projectID, &buf); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="tasks-%s.csv"`, projectID))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// ExportProject GET /projects/:projectID/export
func (h *ExportHandler) ExportProject(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectID")
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.exports.ExportProject(c.Request.Context(), currentUser(c), projectID, &buf); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="project-%s.json"`, projectID))
	c.Data(http.StatusOK, "application/json; charset=utf-8", buf.Bytes())
}

// ImportTasks POST /projects/:projectID/import/tasks
// 接受 multipart 字段 file，或直接以 text/csv 作为请求体
func (h *ExportHandler) ImportTasks(c *gin.Context) {
	projectID, ok := h.uuidParam(c, "projectID")
	if !ok {
		return
	}

	var r io.Reader = c.Request.Body
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			h.fail(c, fmt.Errorf("open import file: %w", err))
			return
		}
		defer f.Close()
		r = f
	} else if c.ContentType() != "text/csv" {
		h.fail(c, validation.Errors{{Field: "file", Rule: "required", Message: "upload a CSV file or send text/csv"}})
		return
	}

	res, err := h.exports.ImportTasks(c.Request.Context(), currentUser(c), projectID, io.LimitReader(r, maxImportBytes))
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusOK
	if res.Created == 0 && res.Failed > 0 {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, res)
}
