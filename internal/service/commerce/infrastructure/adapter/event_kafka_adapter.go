package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/mq"
)

// EventKafkaAdapter 实现 port.EventPublisher，把领域事件发到 Kafka。
// 消息体是统一信封，type 字段区分事件类型，key 取事件类型
// 保证同类事件的分区有序。
type EventKafkaAdapter struct {
	writer *kafka.Writer
}

func NewEventKafkaAdapter(writer *kafka.Writer) *EventKafkaAdapter {
	return &EventKafkaAdapter{writer: writer}
}

type eventEnvelope struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

func (a *EventKafkaAdapter) Publish(ctx context.Context, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	envelope, err := json.Marshal(eventEnvelope{
		Type:       eventType,
		OccurredAt: time.Now(),
		Payload:    body,
	})
	if err != nil {
		return err
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(eventType), envelope)
}
