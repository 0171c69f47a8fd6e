package kafka

import (
	"context"
	"fmt"
	"strconv"

	"repairhub/internal/domain/event"

	"github.com/segmentio/kafka-go"
)

// DeadLetterSink republishes failed events, unchanged, to a side topic with
// the failure reason and origin in headers.
type DeadLetterSink struct {
	producer *Producer
}

func NewDeadLetterSink(producer *Producer) *DeadLetterSink {
	return &DeadLetterSink{producer: producer}
}

func (d *DeadLetterSink) Publish(ctx context.Context, ev event.Event, cause error) error {
	msg := kafka.Message{
		Key:   ev.Key,
		Value: ev.Payload,
		Headers: []kafka.Header{
			{Key: MessageIDHeader, Value: []byte(ev.MessageID)},
			{Key: "dead-letter-reason", Value: []byte(cause.Error())},
			{Key: "origin-partition", Value: []byte(ev.Partition)},
			{Key: "origin-offset", Value: []byte(strconv.FormatInt(ev.Offset, 10))},
		},
	}

	if err := d.producer.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write dead letter to %s: %w", d.producer.GetTopic(), err)
	}
	return nil
}
