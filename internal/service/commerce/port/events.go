package port

import "context"

// EventPublisher 把领域事件发布到消息总线。
// 发布是尽力而为的：失败由实现方记录日志，不回传给业务主流程。
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// 事件类型常量，同时作为 Kafka 消息的分类头。
const (
	EventOrderCommitted = "order.committed"
	EventOrderCancelled = "order.cancelled"
	EventLowStock       = "inventory.low_stock"
)
