package outbox

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
)

// Writer 在业务事务中写入事件；service 层只依赖这个接口
type Writer interface {
	Write(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID, routingKey string, payload interface{}) error
}

// Write 实现 Writer：payload 序列化后以 pending 状态写入 outbox_events
func (r *Repository) Write(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	event := &Event{
		AggregateType: aggregateType,
		RoutingKey:    routingKey,
		Payload:       body,
		Status:        StatusPending,
	}
	if aggregateID != "" {
		event.AggregateID = &aggregateID
	}
	return r.InsertEvent(ctx, tx, event)
}
