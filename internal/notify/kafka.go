package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agisilaos/farewatch/internal/model"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaChannel publishes alerts as JSON events keyed by route.
type KafkaChannel struct {
	Topic  string
	writer messageWriter
}

func NewKafkaChannel(brokers []string, topic string) *KafkaChannel {
	return &KafkaChannel{
		Topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (*KafkaChannel) Name() string { return "kafka" }

func (c *KafkaChannel) Send(ctx context.Context, alert model.Alert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	msg := kafka.Message{
		Topic: c.Topic,
		Key:   []byte(alert.Route),
		Value: value,
		Time:  alert.TriggeredAt,
	}
	if err := c.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (c *KafkaChannel) Close() error {
	if c.writer == nil {
		return nil
	}
	return c.writer.Close()
}
