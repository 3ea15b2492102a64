package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/kafka"
)

type fakePublisher struct {
	events   []kafka.Event
	failures int
}

func (f *fakePublisher) Publish(_ context.Context, ev kafka.Event) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.events = append(f.events, ev)
	return nil
}

func TestNotifierRetriesAndPublishes(t *testing.T) {
	pub := &fakePublisher{failures: 1}
	n := NewNotifier(pub)
	n.retry.InitialDelay = time.Millisecond

	ev := IndexComplete{BuildID: "b-1", CorpusCount: 3, TokenCount: 9}
	require.NoError(t, n.IndexComplete(context.Background(), ev))
	require.Len(t, pub.events, 1)
	require.Equal(t, "b-1", pub.events[0].Key)
	require.Equal(t, TypeIndexComplete, pub.events[0].Type)
	require.Equal(t, ev, pub.events[0].Value)
}

func TestHandlerDecodesEvent(t *testing.T) {
	var got IndexComplete
	h := Handler(func(_ context.Context, ev IndexComplete) error {
		got = ev
		return nil
	})

	value, err := json.Marshal(IndexComplete{BuildID: "b-2", DataDir: "data/index", Masters: 4})
	require.NoError(t, err)
	require.NoError(t, h(context.Background(), kafka.Message{Key: "b-2", Type: TypeIndexComplete, Value: value}))
	require.Equal(t, "b-2", got.BuildID)
	require.Equal(t, 4, got.Masters)

	got = IndexComplete{}
	require.NoError(t, h(context.Background(), kafka.Message{Key: "x", Type: "other.event", Value: value}))
	require.Empty(t, got.BuildID)

	require.Error(t, h(context.Background(), kafka.Message{Value: []byte("{")}))
}
