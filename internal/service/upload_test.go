package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMimeAllowed(t *testing.T) {
	allowed := []string{"image/*", "application/pdf", "text/plain"}

	assert.True(t, MimeAllowed("image/png", allowed))
	assert.True(t, MimeAllowed("Application/PDF", allowed))
	assert.True(t, MimeAllowed("text/plain; charset=utf-8", allowed))
	assert.False(t, MimeAllowed("application/x-msdownload", allowed))
	assert.False(t, MimeAllowed("imagex/png", allowed))
	assert.True(t, MimeAllowed("anything/at-all", nil))
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "passwd", SanitizeFileName("../../etc/passwd"))
	assert.Equal(t, "report.pdf", SanitizeFileName(`C:\Users\ana\report.pdf`))
	assert.Equal(t, "Q3_plan_final.docx", SanitizeFileName("Q3 plan final.docx"))
	assert.Equal(t, "résumé.txt", SanitizeFileName("résumé<>.txt"))
	assert.Equal(t, "file", SanitizeFileName("..."))

	long := SanitizeFileName(strings.Repeat("a", 300) + ".png")
	assert.Len(t, []rune(long), maxFileNameLen)
	assert.True(t, strings.HasSuffix(long, ".png"))
}

func TestFileUploadServiceValidate(t *testing.T) {
	s := NewFileUploadService(nil, nil, nil, nil, nil, UploadLimits{MaxBytes: 1 << 20, AllowedTypes: []string{"image/*"}}, zap.NewNop())

	name, err := s.Validate("my photo.png", "image/png", 1024)
	require.NoError(t, err)
	assert.Equal(t, "my_photo.png", name)

	_, err = s.Validate("big.png", "image/png", 2<<20)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = s.Validate("run.exe", "application/x-msdownload", 10)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = s.Validate("empty.png", "image/png", 0)
	assert.Error(t, err)
}

func waitStatus(t *testing.T, q *UploadQueue, id uuid.UUID, want JobStatus) UploadJob {
	t.Helper()
	var job UploadJob
	require.Eventually(t, func() bool {
		job, _ = q.Status(id)
		return job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestUploadQueueLifecycle(t *testing.T) {
	q := NewUploadQueue(1, time.Minute, zap.NewNop())
	owner := uuid.New()

	release := make(chan struct{})
	first := q.Submit(context.Background(), owner, func(ctx context.Context) (any, error) {
		<-release
		return "stored", nil
	})
	waitStatus(t, q, first, JobUploading)

	// 并发为 1，第二个任务排队
	second := q.Submit(context.Background(), owner, func(ctx context.Context) (any, error) {
		return nil, errors.New("disk full")
	})
	job, ok := q.Status(second)
	require.True(t, ok)
	assert.Equal(t, JobPending, job.Status)

	// 排队中的任务可以取消
	third := q.Submit(context.Background(), owner, func(ctx context.Context) (any, error) {
		t.Error("cancelled job must not run")
		return nil, nil
	})
	assert.True(t, q.Cancel(third))

	close(release)
	done := waitStatus(t, q, first, JobDone)
	assert.Equal(t, "stored", done.Result)
	assert.Equal(t, owner, done.Owner)

	failed := waitStatus(t, q, second, JobFailed)
	assert.Equal(t, "disk full", failed.Error)

	q.Wait()
	cancelled, _ := q.Status(third)
	assert.Equal(t, JobCancelled, cancelled.Status)
	assert.False(t, q.Cancel(first), "finished jobs cannot be cancelled")
}

func TestUploadQueueSweepExpiresFinishedJobs(t *testing.T) {
	q := NewUploadQueue(1, 10*time.Minute, zap.NewNop())
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	done := q.Submit(context.Background(), uuid.New(), func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	waitStatus(t, q, done, JobDone)

	release := make(chan struct{})
	running := q.Submit(context.Background(), uuid.New(), func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	waitStatus(t, q, running, JobUploading)

	// 保留期内仍可查询
	now = now.Add(5 * time.Minute)
	assert.Equal(t, 0, q.Sweep())
	_, ok := q.Status(done)
	assert.True(t, ok)

	// 超过保留期后清理结束的任务，进行中的保留
	now = now.Add(6 * time.Minute)
	assert.Equal(t, 1, q.Sweep())
	_, ok = q.Status(done)
	assert.False(t, ok)
	_, ok = q.Status(running)
	assert.True(t, ok)

	close(release)
	q.Wait()
	now = now.Add(11 * time.Minute)
	assert.Equal(t, 1, q.Sweep())
	assert.Empty(t, q.jobs)
}

func TestUploadQueueCancelRunning(t *testing.T) {
	q := NewUploadQueue(2, time.Minute, zap.NewNop())
	id := q.Submit(context.Background(), uuid.New(), func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	waitStatus(t, q, id, JobUploading)

	assert.True(t, q.Cancel(id))
	q.Wait()
	job, _ := q.Status(id)
	assert.Equal(t, JobCancelled, job.Status)
}
