package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sakif/circles/internal/model"
)

// messageWriter is the part of *kafka.Writer KafkaSender uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes every notification as a JSON event so other
// services (digest mailers, analytics) can consume them. Messages are keyed
// by recipient so one person's notifications stay ordered.
type KafkaSender struct {
	writer messageWriter
}

func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	return &KafkaSender{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
	}}
}

type notificationEvent struct {
	OutboxID   int64  `json:"outbox_id"`
	Channel    string `json:"channel"`
	Recipient  string `json:"recipient"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	EntityType string `json:"entity_type"`
	EntityID   int64  `json:"entity_id"`
	CreatedAt  string `json:"created_at"`
}

func (s *KafkaSender) Send(ctx context.Context, m *model.OutboxMessage) error {
	value, err := json.Marshal(notificationEvent{
		OutboxID:   m.ID,
		Channel:    string(m.Channel),
		Recipient:  m.Recipient,
		Subject:    m.Subject,
		Body:       m.Body,
		EntityType: string(m.EntityType),
		EntityID:   m.EntityID,
		CreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("notify: encoding kafka event: %w", err)
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(m.Recipient),
		Value:   value,
		Headers: []kafka.Header{{Key: "outbox_id", Value: []byte(strconv.FormatInt(m.ID, 10))}},
	})
	if err != nil {
		return fmt.Errorf("notify: publishing outbox %d: %w", m.ID, err)
	}
	return nil
}

func (s *KafkaSender) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
