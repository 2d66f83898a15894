package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"foco/internal/service"
)

func TestUploadJobEndpoints(t *testing.T) {
	me, other := uuid.New(), uuid.New()
	queue := service.NewUploadQueue(1, time.Minute, zap.NewNop())
	t.Cleanup(queue.Wait)

	release := make(chan struct{})
	running := queue.Submit(context.Background(), me, func(ctx context.Context) (any, error) {
		select {
		case <-release:
			return "stored", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	theirs := queue.Submit(context.Background(), other, func(ctx context.Context) (any, error) {
		return nil, nil
	})

	h := NewAttachmentHandler(testBase(t), nil, queue, 1<<20)
	r := gin.New()
	r.Use(withUser(me))
	r.GET("/uploads/:jobID", h.JobStatus)
	r.DELETE("/uploads/:jobID", h.CancelJob)

	w := doJSON(r, http.MethodGet, "/uploads/"+running.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, running.String(), decode(t, w)["id"])
	assert.NotContains(t, decode(t, w), "owner")

	// 其他用户的任务不可见
	w = doJSON(r, http.MethodGet, "/uploads/"+theirs.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(r, http.MethodDelete, "/uploads/"+theirs.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodGet, "/uploads/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodDelete, "/uploads/"+running.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	close(release)
	queue.Wait()

	w = doJSON(r, http.MethodDelete, "/uploads/"+running.String(), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}
