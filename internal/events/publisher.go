// Package events publishes domain events to kafka for downstream consumers
// (notifications, audit). Delivery is fire-and-forget from the caller's point
// of view.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	MessageSent         = "message.sent"
	MessageEdited       = "message.edited"
	MessageDeleted      = "message.deleted"
	ReactionAdded       = "reaction.added"
	ReactionRemoved     = "reaction.removed"
	ConversationCreated = "conversation.created"
	ConversationLocked  = "conversation.locked"
)

type Publisher interface {
	Publish(ctx context.Context, event, key string, payload any) error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event, key string, payload any) error {
	body, err := json.Marshal(map[string]any{"event": event, "payload": payload})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  time.Now(),
	})
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// Nop discards events; used in tests and when kafka is not configured.
type Nop struct{}

func (Nop) Publish(ctx context.Context, event, key string, payload any) error { return nil }
