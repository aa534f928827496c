package kafka

import (
	"context"
	"encoding/json"
	"strings"

	"reconciliation-service/models"

	"github.com/segmentio/kafka-go"
)

// AuditProducer publishes corrective-action events to the audit topic.
type AuditProducer struct {
	writer *kafka.Writer
	topic  string
}

func NewAuditProducer(brokers string, topic string) *AuditProducer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(brokers, ",")...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &AuditProducer{
		writer: writer,
		topic:  topic,
	}
}

func (p *AuditProducer) PublishAuditEvent(ctx context.Context, event models.EnrollmentAuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.UserEmail),
		Value: data,
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *AuditProducer) Close() {
	_ = p.writer.Close()
}
