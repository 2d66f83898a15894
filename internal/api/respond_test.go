package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foco/internal/filtering"
	"foco/internal/service"
	"foco/internal/validation"
	"foco/pkg/util"
)

func failEngine(t *testing.T, err error) *gin.Engine {
	b := testBase(t)
	r := gin.New()
	r.Use(b.tr.Middleware())
	r.GET("/fail", func(c *gin.Context) {
		c.Set(maxUploadMBKey, 25)
		c.Set(mimeKey, "application/x-msdownload")
		b.fail(c, err)
	})
	return r
}

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", validation.Errors{{Field: "name", Rule: "required", Message: "is required"}}, http.StatusBadRequest, "invalid_input"},
		{"invalid input", fmt.Errorf("%w: bad", service.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{"filter query", fmt.Errorf("%w: status=", filtering.ErrInvalidQuery), http.StatusBadRequest, "invalid_input"},
		{"filter operator", filtering.ErrUnknownOperator, http.StatusBadRequest, "invalid_input"},
		{"csv without title", service.ErrMissingTitleColumn, http.StatusBadRequest, "invalid_input"},
		{"credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{"token", util.ErrInvalidToken, http.StatusUnauthorized, "unauthorized"},
		{"policy", fmt.Errorf("%w: delete_task", service.ErrPolicyDenied), http.StatusForbidden, "policy_denied"},
		{"forbidden", service.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"not found", fmt.Errorf("task: %w", service.ErrNotFound), http.StatusNotFound, "not_found"},
		{"conflict", service.ErrConflict, http.StatusConflict, "conflict"},
		{"too large", service.ErrTooLarge, http.StatusRequestEntityTooLarge, "too_large"},
		{"mime", service.ErrUnsupportedType, http.StatusUnsupportedMediaType, "unsupported_type"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "internal"},
		{"cancelled", context.Canceled, http.StatusInternalServerError, "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			failEngine(t, tc.err).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decode(t, w)["code"])
		})
	}
}

func TestRespondErrorDetailsAndLocalization(t *testing.T) {
	w := httptest.NewRecorder()
	failEngine(t, validation.Errors{{Field: "title", Rule: "required", Message: "is required"}}).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	body := decode(t, w)
	details, ok := body["details"].([]any)
	require.True(t, ok)
	require.Len(t, details, 1)
	assert.Equal(t, "title", details[0].(map[string]any)["field"])

	w = httptest.NewRecorder()
	failEngine(t, service.ErrTooLarge).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, "File exceeds the maximum size of 25 MB", decode(t, w)["error"])

	req := httptest.NewRequest(http.MethodGet, "/fail?lang=de", nil)
	w = httptest.NewRecorder()
	failEngine(t, service.ErrForbidden).ServeHTTP(w, req)
	assert.Equal(t, "Sie haben keine Berechtigung für diese Aktion", decode(t, w)["error"])
	assert.Equal(t, "de", w.Header().Get("Content-Language"))
}

func TestReadyz(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: refused") }

	r := gin.New()
	r.GET("/ready", readyz(map[string]ReadinessCheck{"postgres": ok, "redis": ok}))
	r.GET("/degraded", readyz(map[string]ReadinessCheck{"postgres": ok, "redis": down}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", decode(t, w)["status"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/degraded", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["postgres"])
	assert.Equal(t, "dial tcp: refused", checks["redis"])
}
