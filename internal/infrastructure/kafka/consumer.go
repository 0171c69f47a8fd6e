package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"repairhub/internal/connection"
	"repairhub/internal/domain/event"

	"github.com/segmentio/kafka-go"
)

// MessageIDHeader carries the producer assigned message id.
const MessageIDHeader = "message-id"

// GroupSource is a consumer group membership implementing event.Source.
// Offsets are not committed to the broker; progress lives in the
// checkpoint store.
type GroupSource struct {
	group       *kafka.ConsumerGroup
	brokers     []string
	topic       string
	dialer      *kafka.Dialer
	startOffset int64
}

// NewGroupSource joins the consumer group described by es. startOffset
// ("earliest" or "latest") applies to partitions without a checkpoint.
func NewGroupSource(es *connection.EventSource, startOffset string) (*GroupSource, error) {
	first := kafka.FirstOffset
	if strings.EqualFold(strings.TrimSpace(startOffset), "latest") {
		first = kafka.LastOffset
	}

	dialer := es.Dialer()
	group, err := kafka.NewConsumerGroup(kafka.ConsumerGroupConfig{
		ID:                es.ConsumerGroup,
		Brokers:           es.Brokers,
		Topics:            []string{es.Topic},
		Dialer:            dialer,
		StartOffset:       first,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		RebalanceTimeout:  30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	return &GroupSource{
		group:       group,
		brokers:     es.Brokers,
		topic:       es.Topic,
		dialer:      dialer,
		startOffset: first,
	}, nil
}

func (s *GroupSource) Join(ctx context.Context) (event.Assignment, error) {
	gen, err := s.group.Next(ctx)
	if err != nil {
		if errors.Is(err, kafka.ErrGroupClosed) {
			return nil, event.ErrSourceClosed
		}
		return nil, fmt.Errorf("join consumer group: %w", err)
	}

	a := &generation{
		source:  s,
		revoked: make(chan struct{}),
	}
	for _, pa := range gen.Assignments[s.topic] {
		a.partitions = append(a.partitions, strconv.Itoa(pa.ID))
	}

	// The generation context ends when the group rebalances or closes.
	gen.Start(func(genCtx context.Context) {
		<-genCtx.Done()
		a.once.Do(func() { close(a.revoked) })
	})

	return a, nil
}

func (s *GroupSource) Close() error {
	return s.group.Close()
}

type generation struct {
	source     *GroupSource
	partitions []string
	revoked    chan struct{}
	once       sync.Once
}

func (g *generation) Partitions() []string {
	return g.partitions
}

func (g *generation) Revoked() <-chan struct{} {
	return g.revoked
}

func (g *generation) Open(ctx context.Context, partition string, offset int64) (event.Stream, error) {
	id, err := strconv.Atoi(partition)
	if err != nil {
		return nil, fmt.Errorf("invalid partition id %q: %w", partition, err)
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   g.source.brokers,
		Topic:     g.source.topic,
		Partition: id,
		Dialer:    g.source.dialer,
		MinBytes:  1,    // Process immediately
		MaxBytes:  10e6, // 10MB
		MaxWait:   1 * time.Second,
	})

	if offset < 0 {
		offset = g.source.startOffset
	}
	if err := r.SetOffset(offset); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("set offset for partition %s: %w", partition, err)
	}

	return &partitionStream{reader: r, partition: partition}, nil
}

type partitionStream struct {
	reader    *kafka.Reader
	partition string
}

func (p *partitionStream) Next(ctx context.Context) (event.Event, error) {
	msg, err := p.reader.ReadMessage(ctx)
	if err != nil {
		return event.Event{}, err
	}
	return toEvent(msg), nil
}

func (p *partitionStream) Close() error {
	return p.reader.Close()
}

func toEvent(msg kafka.Message) event.Event {
	id := ""
	for _, h := range msg.Headers {
		if h.Key == MessageIDHeader {
			id = string(h.Value)
			break
		}
	}
	if id == "" {
		id = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}

	return event.Event{
		MessageID:  id,
		Partition:  strconv.Itoa(msg.Partition),
		Offset:     msg.Offset,
		Key:        msg.Key,
		Payload:    msg.Value,
		EnqueuedAt: msg.Time,
	}
}
