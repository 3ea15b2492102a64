package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/config"
)

// Event is published as one message: Key picks the partition, Type travels
// in the event-type header and Value is encoded as JSON.
type Event struct {
	Key   string
	Type  string
	Value any
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes events synchronously and waits for every in-sync replica,
// since a lost index-complete event leaves searchers on a stale index.
type Producer struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}, topic)
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{
		writer: w,
		topic:  topic,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func (p *Producer) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(event.Key),
		Value: value,
		Time:  time.Now(),
	}
	if event.Type != "" {
		msg.Headers = []kafka.Header{{Key: TypeHeader, Value: []byte(event.Type)}}
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing %s event to %s: %w", event.Type, p.topic, err)
	}
	p.logger.Debug("event published", "key", event.Key, "type", event.Type, "value_size", len(value))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
