package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	contracts "foco/contracts/mq"
	"foco/internal/model"
	"foco/internal/repository"
	"foco/internal/storage"
	"foco/internal/validation"
	"foco/pkg/db"
	"foco/pkg/metrics"
	"foco/pkg/outbox"
	"foco/pkg/rbac"
	"foco/pkg/trace"
)

const maxFileNameLen = 255

type UploadLimits struct {
	MaxBytes     int64
	AllowedTypes []string // 支持 "image/*" 通配
}

type FileUploadService struct {
	db          db.Querier
	entities    *EntityResolver
	attachments *repository.AttachmentRepository
	store       storage.Storage
	events      outbox.Writer
	limits      UploadLimits
	logger      *zap.Logger
}

func NewFileUploadService(q db.Querier, entities *EntityResolver, attachments *repository.AttachmentRepository, store storage.Storage, events outbox.Writer, limits UploadLimits, logger *zap.Logger) *FileUploadService {
	return &FileUploadService{db: q, entities: entities, attachments: attachments, store: store, events: events, limits: limits, logger: logger}
}

// Validate 返回清洗后的文件名
func (s *FileUploadService) Validate(name, mime string, size int64) (string, error) {
	if size <= 0 {
		return "", validation.Errors{{Field: "size", Rule: "gt", Message: "file is empty"}}
	}
	if s.limits.MaxBytes > 0 && size > s.limits.MaxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, size, s.limits.MaxBytes)
	}
	if !MimeAllowed(mime, s.limits.AllowedTypes) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mime)
	}
	return SanitizeFileName(name), nil
}

// MimeAllowed 空列表表示不限制
func MimeAllowed(mime string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	for _, a := range allowed {
		a = strings.ToLower(a)
		if a == mime {
			return true
		}
		if prefix, ok := strings.CutSuffix(a, "/*"); ok && strings.HasPrefix(mime, prefix+"/") {
			return true
		}
	}
	return false
}

// SanitizeFileName 去掉路径部分，只保留安全字符
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		out = "file"
	}
	if r := []rune(out); len(r) > maxFileNameLen {
		out = string(r[len(r)-maxFileNameLen:])
	}
	return out
}

func storageKey(orgID uuid.UUID, entityType model.EntityType, entityID, id uuid.UUID, name string) string {
	return fmt.Sprintf("org/%s/%s/%s/%s-%s", orgID, entityType, entityID, id, name)
}

// Upload 先写 blob 再插入记录；记录写入失败时删除 blob
func (s *FileUploadService) Upload(ctx context.Context, userID uuid.UUID, meta validation.FileMetaInput, r io.Reader) (*model.FileAttachment, error) {
	a, err := s.upload(ctx, userID, meta, r)
	switch {
	case err == nil:
		metrics.RecordUpload("success", a.SizeBytes)
	case errors.Is(err, context.Canceled):
		metrics.RecordUpload("cancelled", 0)
	default:
		metrics.RecordUpload("failed", 0)
	}
	return a, err
}

func (s *FileUploadService) upload(ctx context.Context, userID uuid.UUID, meta validation.FileMetaInput, r io.Reader) (*model.FileAttachment, error) {
	if err := validation.Validate(meta); err != nil {
		return nil, err
	}
	name, err := s.Validate(meta.FileName, meta.MimeType, meta.Size)
	if err != nil {
		return nil, err
	}
	p, _, err := s.entities.Resolve(ctx, userID, meta.EntityType, meta.EntityID, rbac.PermissionUploadFile)
	if err != nil {
		return nil, err
	}

	a := &model.FileAttachment{
		ID:             uuid.New(),
		OrganizationID: p.OrganizationID,
		EntityType:     meta.EntityType,
		EntityID:       meta.EntityID,
		FileName:       name,
		MimeType:       meta.MimeType,
		UploadedBy:     userID,
	}
	a.StorageKey = storageKey(a.OrganizationID, a.EntityType, a.EntityID, a.ID, name)

	// 多读一个字节用来识别声明的 size 小于实际内容
	limit := meta.Size
	if s.limits.MaxBytes > 0 && s.limits.MaxBytes < limit {
		limit = s.limits.MaxBytes
	}
	n, err := s.store.Put(ctx, a.StorageKey, io.LimitReader(r, limit+1))
	if err != nil {
		_ = s.store.Delete(context.WithoutCancel(ctx), a.StorageKey)
		return nil, fmt.Errorf("failed to store blob: %w", err)
	}
	if n > limit {
		_ = s.store.Delete(ctx, a.StorageKey)
		return nil, fmt.Errorf("%w: content exceeds %d bytes", ErrTooLarge, limit)
	}
	a.SizeBytes = n

	err = db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.attachments.WithQuerier(tx).Insert(ctx, a); err != nil {
			return err
		}
		return s.events.Write(ctx, tx, contracts.AggregateAttachment, a.ID.String(), contracts.FileUploaded, contracts.FileUploadedPayload{
			AttachmentID:   a.ID,
			OrganizationID: a.OrganizationID,
			EntityType:     string(a.EntityType),
			EntityID:       a.EntityID,
			FileName:       a.FileName,
			SizeBytes:      a.SizeBytes,
			UploadedBy:     userID,
			TraceID:        trace.FromContext(ctx),
		})
	})
	if err != nil {
		if derr := s.store.Delete(context.WithoutCancel(ctx), a.StorageKey); derr != nil {
			s.logger.Error("Failed to remove orphaned blob", zap.String("key", a.StorageKey), zap.Error(derr))
		}
		return nil, err
	}

	s.logger.Info("File uploaded",
		zap.String("attachment_id", a.ID.String()),
		zap.String("entity_type", string(a.EntityType)),
		zap.Int64("size", a.SizeBytes),
	)
	return a, nil
}

func (s *FileUploadService) List(ctx context.Context, userID uuid.UUID, entityType model.EntityType, entityID uuid.UUID) ([]*model.FileAttachment, error) {
	if _, _, err := s.entities.Resolve(ctx, userID, entityType, entityID, rbac.PermissionReadProject); err != nil {
		return nil, err
	}
	return s.attachments.ListByEntity(ctx, entityType, entityID)
}

// Open 调用方负责关闭返回的 reader
func (s *FileUploadService) Open(ctx context.Context, userID, id uuid.UUID) (*model.FileAttachment, io.ReadCloser, error) {
	a, err := s.attachments.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if _, _, err := s.entities.Resolve(ctx, userID, a.EntityType, a.EntityID, rbac.PermissionReadProject); err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Open(ctx, a.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return a, rc, nil
}

// Delete 先删记录再删 blob；blob 删除失败只记日志
func (s *FileUploadService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	a, err := s.attachments.Get(ctx, id)
	if err != nil {
		return err
	}
	perm := rbac.PermissionUploadFile
	if a.UploadedBy != userID {
		perm = rbac.PermissionModerate
	}
	if _, _, err := s.entities.Resolve(ctx, userID, a.EntityType, a.EntityID, perm); err != nil {
		return err
	}
	if err := s.attachments.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, a.StorageKey); err != nil {
		s.logger.Warn("Failed to delete blob", zap.String("key", a.StorageKey), zap.Error(err))
	}
	s.logger.Info("Attachment deleted", zap.String("attachment_id", id.String()))
	return nil
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobUploading JobStatus = "uploading"
	JobDone      JobStatus = "done"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

type UploadJob struct {
	ID     uuid.UUID `json:"id"`
	Status JobStatus `json:"status"`
	Error  string    `json:"error,omitempty"`
	Result any       `json:"result,omitempty"`
	// 只有提交者可以查询或取消
	Owner uuid.UUID `json:"-"`

	cancel     context.CancelFunc
	finishedAt time.Time
}

func (j *UploadJob) terminal() bool {
	return j.Status == JobDone || j.Status == JobFailed || j.Status == JobCancelled
}

// UploadQueue 限制同时进行的上传数；每个任务可以单独取消。
// 结束的任务保留 retention 供客户端轮询，之后由 Sweep 清理
type UploadQueue struct {
	sem       *semaphore.Weighted
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu   sync.Mutex
	jobs map[uuid.UUID]*UploadJob
	wg   sync.WaitGroup
}

func NewUploadQueue(concurrency int, retention time.Duration, logger *zap.Logger) *UploadQueue {
	if concurrency <= 0 {
		concurrency = 1
	}
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	return &UploadQueue{
		sem:       semaphore.NewWeighted(int64(concurrency)),
		retention: retention,
		logger:    logger,
		now:       time.Now,
		jobs:      make(map[uuid.UUID]*UploadJob),
	}
}

// Submit 立即返回任务 id；fn 在拿到信号量后执行
func (q *UploadQueue) Submit(ctx context.Context, owner uuid.UUID, fn func(ctx context.Context) (any, error)) uuid.UUID {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job := &UploadJob{ID: uuid.New(), Status: JobPending, Owner: owner, cancel: cancel}

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer cancel()

		if err := q.sem.Acquire(ctx, 1); err != nil {
			q.finish(job, nil, err)
			return
		}
		defer q.sem.Release(1)

		if !q.transition(job, JobUploading) {
			return
		}
		res, err := fn(ctx)
		q.finish(job, res, err)
	}()
	return job.ID
}

// transition 已取消的任务不再进入 uploading
func (q *UploadQueue) transition(job *UploadJob, status JobStatus) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job.Status == JobCancelled {
		return false
	}
	job.Status = status
	return true
}

func (q *UploadQueue) finish(job *UploadJob, res any, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case job.Status == JobCancelled:
	case errors.Is(err, context.Canceled):
		job.Status = JobCancelled
	case err != nil:
		job.Status = JobFailed
		job.Error = err.Error()
		q.logger.Warn("Upload job failed", zap.String("job_id", job.ID.String()), zap.Error(err))
	default:
		job.Status = JobDone
		job.Result = res
	}
	job.finishedAt = q.now()
}

// Cancel 只能取消还未结束的任务
func (q *UploadQueue) Cancel(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok || job.terminal() {
		return false
	}
	job.Status = JobCancelled
	job.finishedAt = q.now()
	job.cancel()
	return true
}

func (q *UploadQueue) Status(id uuid.UUID) (UploadJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return UploadJob{}, false
	}
	return UploadJob{ID: job.ID, Status: job.Status, Error: job.Error, Result: job.Result, Owner: job.Owner}, true
}

// Sweep 删除结束超过 retention 的任务记录，返回删除数量
func (q *UploadQueue) Sweep() int {
	cutoff := q.now().Add(-q.retention)
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for id, job := range q.jobs {
		if job.terminal() && job.finishedAt.Before(cutoff) {
			delete(q.jobs, id)
			n++
		}
	}
	return n
}

// Run 定期清理，直到 ctx 结束
func (q *UploadQueue) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := q.Sweep(); n > 0 {
				q.logger.Debug("Expired upload jobs", zap.Int("count", n))
			}
		}
	}
}

// Wait 等待所有已提交的任务结束
func (q *UploadQueue) Wait() {
	q.wg.Wait()
}
