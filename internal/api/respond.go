package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/filtering"
	"foco/internal/i18n"
	"foco/internal/model"
	"foco/internal/service"
	"foco/internal/validation"
	"foco/pkg/logger"
	"foco/pkg/util"
)

const userIDKey = "user_id"

// errorBody 统一的错误响应
type errorBody struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details []validation.FieldError `json:"details,omitempty"`
}

// respondError 是错误到状态码的唯一映射点
func respondError(c *gin.Context, tr *i18n.Translator, log *zap.Logger, err error) {
	ctx := c.Request.Context()
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		log.Warn("Validation failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadRequest, errorBody{Error: tr.T(ctx, i18n.ErrInvalidInput), Code: "invalid_input", Details: verrs})
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, filtering.ErrInvalidQuery),
		errors.Is(err, filtering.ErrUnknownOperator),
		errors.Is(err, service.ErrMissingTitleColumn):
		log.Warn("Invalid request", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadRequest, errorBody{Error: tr.T(ctx, i18n.ErrInvalidInput), Code: "invalid_input"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, errorBody{Error: tr.T(ctx, i18n.ErrInvalidCredentials), Code: "invalid_credentials"})
	case errors.Is(err, service.ErrUnauthorized), errors.Is(err, util.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, errorBody{Error: tr.T(ctx, i18n.ErrUnauthorized), Code: "unauthorized"})
	case errors.Is(err, service.ErrPolicyDenied):
		c.JSON(http.StatusForbidden, errorBody{Error: tr.T(ctx, i18n.ErrPolicyDenied), Code: "policy_denied"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, errorBody{Error: tr.T(ctx, i18n.ErrForbidden), Code: "forbidden"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody{Error: tr.T(ctx, i18n.ErrNotFound), Code: "not_found"})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, errorBody{Error: tr.T(ctx, i18n.ErrConflict), Code: "conflict"})
	case errors.Is(err, service.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, errorBody{Error: tr.T(ctx, i18n.ErrTooLarge, maxUploadMB(c)), Code: "too_large"})
	case errors.Is(err, service.ErrUnsupportedType):
		c.JSON(http.StatusUnsupportedMediaType, errorBody{Error: tr.T(ctx, i18n.ErrUnsupportedType, c.GetString(mimeKey)), Code: "unsupported_type"})
	default:
		logger.WithTrace(ctx, log).Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, errorBody{Error: tr.T(ctx, i18n.ErrInternal), Code: "internal"})
	}
}

// 上传 handler 写入，供 413/415 的本地化消息使用
const (
	mimeKey        = "upload_mime"
	maxUploadMBKey = "upload_max_mb"
)

func maxUploadMB(c *gin.Context) int {
	return c.GetInt(maxUploadMBKey)
}

// currentUser 由 AuthMiddleware 写入
func currentUser(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// uuidParam 解析失败时已写入 400
func (b base) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		b.fail(c, validation.Errors{{Field: name, Rule: "uuid", Message: "must be a valid UUID"}})
		return uuid.Nil, false
	}
	return id, true
}

func (b base) uuidQuery(c *gin.Context, name string, required bool) (uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" && !required {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		b.fail(c, validation.Errors{{Field: name, Rule: "uuid", Message: "must be a valid UUID"}})
		return uuid.Nil, false
	}
	return id, true
}

// timeRange 读取 from/to（RFC3339 或 YYYY-MM-DD），缺省为最近 days 天
func (b base) timeRange(c *gin.Context, days int) (time.Time, time.Time, bool) {
	now := time.Now().UTC()
	to := now
	from := now.AddDate(0, 0, -days)
	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = parseTime(raw); err != nil {
			b.fail(c, validation.Errors{{Field: "from", Rule: "datetime", Message: "must be RFC3339 or YYYY-MM-DD"}})
			return time.Time{}, time.Time{}, false
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = parseTime(raw); err != nil {
			b.fail(c, validation.Errors{{Field: "to", Rule: "datetime", Message: "must be RFC3339 or YYYY-MM-DD"}})
			return time.Time{}, time.Time{}, false
		}
	}
	if to.Before(from) {
		b.fail(c, validation.Errors{{Field: "to", Rule: "gtefield", Message: "must not be before from"}})
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func intQuery(c *gin.Context, name string, def int) int {
	if v, err := strconv.Atoi(c.Query(name)); err == nil {
		return v
	}
	return def
}

// bind 绑定 JSON；业务校验交给 service 层
func (b base) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		b.logger.Warn("Invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
		b.fail(c, validation.Errors{{Field: "body", Rule: "json", Message: "request body is not valid JSON for this endpoint"}})
		return false
	}
	return true
}

// base 所有 handler 共享的依赖
type base struct {
	tr     *i18n.Translator
	logger *zap.Logger
}

func (b base) fail(c *gin.Context, err error) {
	respondError(c, b.tr, b.logger, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, service.ErrNotFound)
}

// entityParams 读取 entity_type/entity_id 查询参数
func (b base) entityParams(c *gin.Context) (model.EntityType, uuid.UUID, bool) {
	et := model.EntityType(c.Query("entity_type"))
	valid := false
	for _, t := range model.EntityTypes {
		if t == et {
			valid = true
		}
	}
	if !valid {
		b.fail(c, validation.Errors{{Field: "entity_type", Rule: "oneof", Message: "must be one of task project milestone"}})
		return "", uuid.Nil, false
	}
	id, ok := b.uuidQuery(c, "entity_id", true)
	return et, id, ok
}
