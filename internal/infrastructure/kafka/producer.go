package kafka

import (
	"context"
	"fmt"
	"time"

	"repairhub/internal/connection"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	writer *kafka.Writer
}

// NewProducer writes to topic, partitioning by key hash so one key always
// lands on the same partition.
func NewProducer(es *connection.EventSource, topic string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(es.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            5,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
		Async:                  false,
		AllowAutoTopicCreation: true,
		Transport:              es.Transport(),
	}

	return &Producer{writer: w}
}

// SendMessage writes one message and tags it with messageID when given.
func (p *Producer) SendMessage(ctx context.Context, key, value []byte, messageID string) error {
	msg := kafka.Message{
		Key:   key,
		Value: value,
	}
	if messageID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: MessageIDHeader, Value: []byte(messageID)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (p *Producer) GetTopic() string {
	return p.writer.Topic
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
