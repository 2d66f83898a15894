package mq

import (
	"time"

	"github.com/google/uuid"
)

type NotificationCreatedPayload struct {
	NotificationID uuid.UUID `json:"notification_id"`
	UserID         uuid.UUID `json:"user_id"`
	Type           string    `json:"type"`
	Channel        string    `json:"channel"` // in_app / email / push
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
	TraceID        string    `json:"trace_id,omitempty"`
}

type FileUploadedPayload struct {
	AttachmentID   uuid.UUID `json:"attachment_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	EntityType     string    `json:"entity_type"`
	EntityID       uuid.UUID `json:"entity_id"`
	FileName       string    `json:"file_name"`
	SizeBytes      int64     `json:"size_bytes"`
	UploadedBy     uuid.UUID `json:"uploaded_by"`
	TraceID        string    `json:"trace_id,omitempty"`
}

type AIAuditPayload struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	UserID         uuid.UUID `json:"user_id"`
	Tool           string    `json:"tool"`
	Allowed        bool      `json:"allowed"`
	Reason         string    `json:"reason,omitempty"`
	TraceID        string    `json:"trace_id,omitempty"`
}
