// Package events carries "index complete" notifications from the indexer to
// running searchers over Kafka, so searchers can drop cached partitions and
// cached query results that belong to a replaced index.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/resilience"
)

// TypeIndexComplete is the event type of IndexComplete.
const TypeIndexComplete = "index.complete"

// IndexComplete is published once per successful build.
type IndexComplete struct {
	BuildID     string    `json:"build_id"`
	DataDir     string    `json:"data_dir"`
	SplitLevel  int       `json:"split_level"`
	CorpusCount int       `json:"corpus_count"`
	TokenCount  int       `json:"token_count"`
	Masters     int       `json:"masters"`
	CompletedAt time.Time `json:"completed_at"`
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Notifier struct {
	pub    Publisher
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func NewNotifier(pub Publisher) *Notifier {
	return &Notifier{
		pub:    pub,
		retry:  resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 250 * time.Millisecond},
		logger: slog.Default().With("component", "index-events"),
	}
}

// IndexComplete publishes ev keyed by its build ID.
func (n *Notifier) IndexComplete(ctx context.Context, ev IndexComplete) error {
	err := resilience.Retry(ctx, "publish-index-complete", n.retry, func() error {
		return n.pub.Publish(ctx, kafka.Event{Key: ev.BuildID, Type: TypeIndexComplete, Value: ev})
	})
	if err != nil {
		return fmt.Errorf("publishing index complete for build %s: %w", ev.BuildID, err)
	}
	n.logger.Info("index complete published",
		"build_id", ev.BuildID,
		"corpus_count", ev.CorpusCount,
		"token_count", ev.TokenCount,
	)
	return nil
}

// ReloadFunc reacts to a completed build.
type ReloadFunc func(ctx context.Context, ev IndexComplete) error

// Handler adapts fn into a kafka.MessageHandler.
func Handler(fn ReloadFunc) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-events")
	return func(ctx context.Context, msg kafka.Message) error {
		if msg.Type != "" && msg.Type != TypeIndexComplete {
			logger.Debug("ignoring event", "type", msg.Type, "key", msg.Key)
			return nil
		}
		ev, err := kafka.DecodeJSON[IndexComplete](msg.Value)
		if err != nil {
			return err
		}
		logger.Info("index complete received", "build_id", ev.BuildID, "data_dir", ev.DataDir)
		return fn(ctx, ev)
	}
}
