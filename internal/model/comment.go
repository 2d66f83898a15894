package model

import (
	"time"

	"github.com/google/uuid"
)

type EntityType string

const (
	EntityTask      EntityType = "task"
	EntityProject   EntityType = "project"
	EntityMilestone EntityType = "milestone"
)

var EntityTypes = []EntityType{EntityTask, EntityProject, EntityMilestone}

type Comment struct {
	ID         uuid.UUID   `json:"id"`
	EntityType EntityType  `json:"entity_type"`
	EntityID   uuid.UUID   `json:"entity_id"`
	AuthorID   uuid.UUID   `json:"author_id"`
	ParentID   *uuid.UUID  `json:"parent_id,omitempty"`
	Content    string      `json:"content"`
	Mentions   []uuid.UUID `json:"mentions"`
	Edited     bool        `json:"edited"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

type NotificationType string

const (
	NotificationMention      NotificationType = "mention"
	NotificationAssignment   NotificationType = "assignment"
	NotificationComment      NotificationType = "comment"
	NotificationDueSoon      NotificationType = "due_soon"
	NotificationStatusChange NotificationType = "status_change"
	NotificationSystem       NotificationType = "system"
)

type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

type Notification struct {
	ID         uuid.UUID        `json:"id"`
	UserID     uuid.UUID        `json:"user_id"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	EntityType string           `json:"entity_type,omitempty"`
	EntityID   *uuid.UUID       `json:"entity_id,omitempty"`
	Channel    Channel          `json:"channel"`
	IsRead     bool             `json:"is_read"`
	ReadAt     *time.Time       `json:"read_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

type FileAttachment struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	EntityType     EntityType `json:"entity_type"`
	EntityID       uuid.UUID  `json:"entity_id"`
	FileName       string     `json:"file_name"`
	MimeType       string     `json:"mime_type"`
	SizeBytes      int64      `json:"size_bytes"`
	StorageKey     string     `json:"-"`
	UploadedBy     uuid.UUID  `json:"uploaded_by"`
	CreatedAt      time.Time  `json:"created_at"`
}
