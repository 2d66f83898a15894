package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/i18n"
	"foco/pkg/metrics"
	"foco/pkg/trace"
	"foco/pkg/util"
)

// Authenticator 由 service.AuthService 实现
type Authenticator interface {
	Authenticate(token string) (uuid.UUID, error)
}

// AuthMiddleware 从 Bearer token 或 session cookie 解析用户
// 客户端传来的 x-user-id 一律忽略，用户 id 只来自会话
func AuthMiddleware(auth Authenticator, cookieName string, tr *i18n.Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Header.Del("X-User-Id")

		token := util.ExtractToken(c.Request)
		if token == "" && cookieName != "" {
			if v, err := c.Cookie(cookieName); err == nil {
				token = v
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: tr.T(c.Request.Context(), i18n.ErrUnauthorized), Code: "unauthorized"})
			return
		}

		userID, err := auth.Authenticate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: tr.T(c.Request.Context(), i18n.ErrUnauthorized), Code: "unauthorized"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// AdminOnly 运维接口只对配置中的用户开放
func AdminOnly(admins []uuid.UUID, tr *i18n.Translator) gin.HandlerFunc {
	allowed := make(map[uuid.UUID]bool, len(admins))
	for _, id := range admins {
		allowed[id] = true
	}
	return func(c *gin.Context) {
		if !allowed[currentUser(c)] {
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody{Error: tr.T(c.Request.Context(), i18n.ErrForbidden), Code: "forbidden"})
			return
		}
		c.Next()
	}
}

// TraceID 沿用上游的 X-Trace-ID，没有则生成
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(trace.HeaderName())
		if traceID == "" {
			traceID = trace.GenerateTraceID()
		}
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName(), traceID)
		c.Next()
	}
}

// RequestLogger 访问日志 + HTTP 延迟指标
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.RecordHTTPRequestDuration(c.Request.Method, route, strconv.Itoa(status), elapsed)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", route),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("trace_id", trace.FromContext(c.Request.Context())),
		}
		if id := currentUser(c); id != uuid.Nil {
			fields = append(fields, zap.String("user_id", id.String()))
		}
		switch {
		case status >= 500:
			logger.Error("HTTP request", fields...)
		case status >= 400:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Info("HTTP request", fields...)
		}
	}
}
