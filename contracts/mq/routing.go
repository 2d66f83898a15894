package mq

// 路由键；server 通过 outbox 写入，worker 按键绑定队列
const (
	TaskCreated         = "task.created"
	TaskAssigned        = "task.assigned"
	TaskStatusChanged   = "task.status_changed"
	CommentCreated      = "comment.created"
	NotificationCreated = "notification.created"
	FileUploaded        = "file.uploaded"
	AIAudit             = "ai.audit"
)

// 聚合类型，写入 outbox_events.aggregate_type
const (
	AggregateTask         = "task"
	AggregateComment      = "comment"
	AggregateNotification = "notification"
	AggregateAttachment   = "attachment"
	AggregateAIPolicy     = "ai_policy"
)
