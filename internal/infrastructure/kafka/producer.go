package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/example/shop-bot/internal/domain/order"
	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventType     = "event-type"
	HeaderAggregateType = "aggregate-type"
)

// Producer publishes order lifecycle events. Messages are keyed by order ID
// so all events of one order share a partition.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           10 * time.Millisecond,
			WriteTimeout:           5 * time.Second,
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

var _ order.EventPublisher = (*Producer)(nil)

func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	msg, err := newMessage(key, event, time.Now())
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Printf("[Kafka] Failed to write to %s (key %s): %v", p.topic, key, err)
		return err
	}
	return nil
}

// newMessage encodes event as JSON. Order events also carry their type in
// headers so consumers can route without decoding the body.
func newMessage(key string, event any, now time.Time) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode event for %s: %w", key, err)
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  now,
	}
	if e, ok := event.(order.Event); ok {
		msg.Headers = []kafka.Header{
			{Key: HeaderEventType, Value: []byte(e.EventType)},
			{Key: HeaderAggregateType, Value: []byte(e.AggregateType)},
		}
	}
	return msg, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
