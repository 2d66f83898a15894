package repository

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/model"
	"foco/pkg/db"
)

type AttachmentRepository struct {
	db     db.Querier
	logger *zap.Logger
}

func NewAttachmentRepository(q db.Querier, logger *zap.Logger) *AttachmentRepository {
	return &AttachmentRepository{db: q, logger: logger}
}

func (r *AttachmentRepository) WithQuerier(q db.Querier) *AttachmentRepository {
	return &AttachmentRepository{db: q, logger: r.logger}
}

const attachmentColumns = `id, organization_id, entity_type, entity_id, file_name, mime_type, size_bytes,
       storage_key, uploaded_by, created_at`

func scanAttachment(s scanner) (*model.FileAttachment, error) {
	var a model.FileAttachment
	err := s.Scan(&a.ID, &a.OrganizationID, &a.EntityType, &a.EntityID, &a.FileName, &a.MimeType,
		&a.SizeBytes, &a.StorageKey, &a.UploadedBy, &a.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *AttachmentRepository) Insert(ctx context.Context, a *model.FileAttachment) error {
	r.logger.Debug("Inserting attachment",
		zap.String("entity_id", a.EntityID.String()),
		zap.String("file_name", a.FileName),
		zap.Int64("size_bytes", a.SizeBytes),
	)
	query := `
        INSERT INTO file_attachments (id, organization_id, entity_type, entity_id, file_name, mime_type,
                                      size_bytes, storage_key, uploaded_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING created_at
    `
	return translate(r.db.QueryRow(ctx, query,
		a.ID, a.OrganizationID, a.EntityType, a.EntityID, a.FileName, a.MimeType,
		a.SizeBytes, a.StorageKey, a.UploadedBy,
	).Scan(&a.CreatedAt))
}

func (r *AttachmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.FileAttachment, error) {
	return scanAttachment(r.db.QueryRow(ctx, `SELECT `+attachmentColumns+` FROM file_attachments WHERE id = $1`, id))
}

func (r *AttachmentRepository) ListByEntity(ctx context.Context, entityType model.EntityType, entityID uuid.UUID) ([]*model.FileAttachment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+attachmentColumns+` FROM file_attachments WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at DESC`,
		entityType, entityID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := []*model.FileAttachment{}
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AttachmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return affected(r.db.Exec(ctx, `DELETE FROM file_attachments WHERE id = $1`, id))
}
