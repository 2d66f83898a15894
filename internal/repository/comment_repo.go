package repository

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foco/internal/model"
	"foco/pkg/db"
)

type CommentRepository struct {
	db     db.Querier
	logger *zap.Logger
}

func NewCommentRepository(q db.Querier, logger *zap.Logger) *CommentRepository {
	return &CommentRepository{db: q, logger: logger}
}

func (r *CommentRepository) WithQuerier(q db.Querier) *CommentRepository {
	return &CommentRepository{db: q, logger: r.logger}
}

const commentColumns = `id, entity_type, entity_id, author_id, parent_id, content, mentions, edited, created_at, updated_at`

func scanComment(s scanner) (*model.Comment, error) {
	var c model.Comment
	err := s.Scan(&c.ID, &c.EntityType, &c.EntityID, &c.AuthorID, &c.ParentID, &c.Content,
		&c.Mentions, &c.Edited, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	if c.Mentions == nil {
		c.Mentions = []uuid.UUID{}
	}
	return &c, nil
}

func (r *CommentRepository) Insert(ctx context.Context, c *model.Comment) error {
	r.logger.Debug("Inserting comment",
		zap.String("entity_type", string(c.EntityType)),
		zap.String("entity_id", c.EntityID.String()),
		zap.Int("mentions", len(c.Mentions)),
	)
	if c.Mentions == nil {
		c.Mentions = []uuid.UUID{}
	}
	query := `
        INSERT INTO comments (id, entity_type, entity_id, author_id, parent_id, content, mentions)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING created_at, updated_at
    `
	return translate(r.db.QueryRow(ctx, query,
		c.ID, c.EntityType, c.EntityID, c.AuthorID, c.ParentID, c.Content, c.Mentions,
	).Scan(&c.CreatedAt, &c.UpdatedAt))
}

func (r *CommentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Comment, error) {
	return scanComment(r.db.QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id))
}

func (r *CommentRepository) ListByEntity(ctx context.Context, entityType model.EntityType, entityID uuid.UUID) ([]*model.Comment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at`,
		entityType, entityID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	comments := []*model.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// UpdateContent 编辑内容并重新写入提及列表
func (r *CommentRepository) UpdateContent(ctx context.Context, c *model.Comment) error {
	query := `
        UPDATE comments SET content = $2, mentions = $3, edited = TRUE, updated_at = NOW()
        WHERE id = $1
        RETURNING updated_at
    `
	c.Edited = true
	return translate(r.db.QueryRow(ctx, query, c.ID, c.Content, c.Mentions).Scan(&c.UpdatedAt))
}

func (r *CommentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return affected(r.db.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id))
}
