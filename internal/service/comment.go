package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	contracts "foco/contracts/mq"
	"foco/internal/model"
	"foco/internal/repository"
	"foco/internal/validation"
	"foco/pkg/db"
	"foco/pkg/outbox"
	"foco/pkg/rbac"
	"foco/pkg/trace"
)

// @ 前面不能是单词字符，这样邮箱地址不会被当成提及
var mentionPattern = regexp.MustCompile(`(?:^|[^\w@])@([A-Za-z0-9_][A-Za-z0-9_.\-]*)`)

const excerptLen = 140

// ExtractMentions 提取去重后的小写用户名，保持出现顺序
func ExtractMentions(text string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		name := strings.ToLower(strings.TrimRight(m[1], "."))
		if len(name) < 2 || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

type CommentService struct {
	db       db.Querier
	entities *EntityResolver
	comments *repository.CommentRepository
	users    *repository.UserRepository
	events   outbox.Writer
	logger   *zap.Logger
}

func NewCommentService(q db.Querier, entities *EntityResolver, comments *repository.CommentRepository, users *repository.UserRepository, events outbox.Writer, logger *zap.Logger) *CommentService {
	return &CommentService{db: q, entities: entities, comments: comments, users: users, events: events, logger: logger}
}

// resolveMentions 未知用户名直接丢弃
func (s *CommentService) resolveMentions(ctx context.Context, content string) ([]uuid.UUID, error) {
	names := ExtractMentions(content)
	if len(names) == 0 {
		return []uuid.UUID{}, nil
	}
	users, err := s.users.FindByUsernames(ctx, names)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

func (s *CommentService) Create(ctx context.Context, userID uuid.UUID, in validation.CommentInput) (*model.Comment, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	if _, _, err := s.entities.Resolve(ctx, userID, in.EntityType, in.EntityID, rbac.PermissionComment); err != nil {
		return nil, err
	}
	if in.ParentID != nil {
		parent, err := s.comments.Get(ctx, *in.ParentID)
		if err != nil || parent.EntityID != in.EntityID || parent.EntityType != in.EntityType {
			return nil, validation.Errors{{Field: "parent_id", Rule: "exists", Message: "parent_id must reference a comment on the same entity"}}
		}
	}
	mentions, err := s.resolveMentions(ctx, in.Content)
	if err != nil {
		return nil, err
	}
	author, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	c := &model.Comment{
		ID:         uuid.New(),
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
		AuthorID:   userID,
		ParentID:   in.ParentID,
		Content:    strings.TrimSpace(in.Content),
		Mentions:   mentions,
	}
	err = db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.comments.WithQuerier(tx).Insert(ctx, c); err != nil {
			return err
		}
		return s.writeCreated(ctx, tx, c, author, mentions)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Comment created",
		zap.String("comment_id", c.ID.String()),
		zap.String("entity_type", string(c.EntityType)),
		zap.Int("mentions", len(mentions)),
	)
	return c, nil
}

func (s *CommentService) List(ctx context.Context, userID uuid.UUID, entityType model.EntityType, entityID uuid.UUID) ([]*model.Comment, error) {
	if _, _, err := s.entities.Resolve(ctx, userID, entityType, entityID, rbac.PermissionReadProject); err != nil {
		return nil, err
	}
	return s.comments.ListByEntity(ctx, entityType, entityID)
}

// Update 只有作者可以编辑；新增的提及会再次通知
func (s *CommentService) Update(ctx context.Context, userID, commentID uuid.UUID, in validation.CommentUpdateInput) (*model.Comment, error) {
	if err := validation.Validate(in); err != nil {
		return nil, err
	}
	c, err := s.comments.Get(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if c.AuthorID != userID {
		return nil, ErrForbidden
	}
	if _, _, err := s.entities.Resolve(ctx, userID, c.EntityType, c.EntityID, rbac.PermissionComment); err != nil {
		return nil, err
	}
	mentions, err := s.resolveMentions(ctx, in.Content)
	if err != nil {
		return nil, err
	}
	before := map[uuid.UUID]bool{}
	for _, id := range c.Mentions {
		before[id] = true
	}
	var added []uuid.UUID
	for _, id := range mentions {
		if !before[id] {
			added = append(added, id)
		}
	}

	c.Content = strings.TrimSpace(in.Content)
	c.Mentions = mentions
	err = db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.comments.WithQuerier(tx).UpdateContent(ctx, c); err != nil {
			return err
		}
		if len(added) == 0 {
			return nil
		}
		author, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		return s.writeCreated(ctx, tx, c, author, added)
	})
	if err != nil {
		return nil, err
	}
	c.Edited = true
	return c, nil
}

// Delete 作者本人或有 moderate 权限（admin 及以上）
func (s *CommentService) Delete(ctx context.Context, userID, commentID uuid.UUID) error {
	c, err := s.comments.Get(ctx, commentID)
	if err != nil {
		return err
	}
	perm := rbac.PermissionComment
	if c.AuthorID != userID {
		perm = rbac.PermissionModerate
	}
	if _, _, err := s.entities.Resolve(ctx, userID, c.EntityType, c.EntityID, perm); err != nil {
		return err
	}
	if err := s.comments.Delete(ctx, commentID); err != nil {
		return err
	}
	s.logger.Info("Comment deleted", zap.String("comment_id", commentID.String()))
	return nil
}

// writeCreated 作者本人的提及不通知
func (s *CommentService) writeCreated(ctx context.Context, tx pgx.Tx, c *model.Comment, author *model.User, mentions []uuid.UUID) error {
	notify := make([]uuid.UUID, 0, len(mentions))
	for _, id := range mentions {
		if id != c.AuthorID {
			notify = append(notify, id)
		}
	}
	return s.events.Write(ctx, tx, contracts.AggregateComment, c.ID.String(), contracts.CommentCreated, contracts.CommentCreatedPayload{
		CommentID:  c.ID,
		EntityType: string(c.EntityType),
		EntityID:   c.EntityID,
		AuthorID:   c.AuthorID,
		AuthorName: author.DisplayName,
		Excerpt:    Excerpt(c.Content, excerptLen),
		Mentions:   notify,
		TraceID:    trace.FromContext(ctx),
	})
}

// Excerpt 按 rune 截断并追加省略号
func Excerpt(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
