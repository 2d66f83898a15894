package mq

import "github.com/google/uuid"

// CommentCreatedPayload Mentions 只包含已解析且不是作者本人的用户
type CommentCreatedPayload struct {
	CommentID  uuid.UUID   `json:"comment_id"`
	EntityType string      `json:"entity_type"`
	EntityID   uuid.UUID   `json:"entity_id"`
	AuthorID   uuid.UUID   `json:"author_id"`
	AuthorName string      `json:"author_name"`
	Excerpt    string      `json:"excerpt"`
	Mentions   []uuid.UUID `json:"mentions"`
	TraceID    string      `json:"trace_id,omitempty"`
}
