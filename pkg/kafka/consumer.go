// Package kafka wraps segmentio/kafka-go for the index-complete event stream:
// the indexer publishes one JSON event per finished build and every searcher
// replica consumes the topic to reload its partitions.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/resilience"
)

// TypeHeader carries Event.Type.
const TypeHeader = "event-type"

// Message is a fetched event handed to a MessageHandler.
type Message struct {
	Key       string
	Type      string
	Value     []byte
	Partition int
	Offset    int64
	Time      time.Time
}

type MessageHandler func(ctx context.Context, msg Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds messages of one topic to a handler. A failing handler is
// retried; a message that still fails is committed and dropped so that one
// bad event cannot stall the stream.
type Consumer struct {
	reader  messageReader
	handler MessageHandler
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// NewConsumer joins a consumer group private to this process, so every
// searcher replica sees every event. Only events published after the first
// start are delivered.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	return newConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     InstanceGroupID(cfg.ConsumerGroup),
		MinBytes:    1,
		MaxBytes:    1 << 20,
		MaxWait:     time.Second,
		StartOffset: kafka.LastOffset,
	}), topic, handler)
}

func newConsumer(r messageReader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		retry:   resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond},
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// InstanceGroupID suffixes group with the host name.
func InstanceGroupID(group string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return group
	}
	return group + "-" + host
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		km, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping")
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Error("fetching message failed", "error", err)
			continue
		}
		msg := fromKafka(km)
		err = resilience.Retry(ctx, "handle-event", c.retry, func() error {
			return c.handler(ctx, msg)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("dropping event after failed handling",
				"key", msg.Key,
				"type", msg.Type,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
		if err := c.reader.CommitMessages(ctx, km); err != nil && ctx.Err() == nil {
			c.logger.Error("committing offset failed", "offset", msg.Offset, "error", err)
		}
	}
}

func fromKafka(km kafka.Message) Message {
	msg := Message{
		Key:       string(km.Key),
		Value:     km.Value,
		Partition: km.Partition,
		Offset:    km.Offset,
		Time:      km.Time,
	}
	for _, h := range km.Headers {
		if h.Key == TypeHeader {
			msg.Type = string(h.Value)
		}
	}
	return msg
}

// DecodeJSON decodes a message value into T. Decoding errors are permanent.
func DecodeJSON[T any](value []byte) (T, error) {
	var out T
	if err := json.Unmarshal(value, &out); err != nil {
		return out, resilience.Permanent(fmt.Errorf("decoding event: %w", err))
	}
	return out, nil
}
