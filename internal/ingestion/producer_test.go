package ingestion

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/memory/memorytest"
)

type sliceSource struct {
	lines  []string
	pos    int
	onNext func(read int)
}

func (s *sliceSource) Next(ctx context.Context) (string, error) {
	if s.pos >= len(s.lines) {
		return "", io.EOF
	}
	line := s.lines[s.pos]
	s.pos++
	if s.onNext != nil {
		s.onNext(s.pos)
	}
	return line, nil
}

type chanSource chan string

func (c chanSource) Next(ctx context.Context) (string, error) {
	select {
	case line, ok := <-c:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func lines(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("line-%d", i)
	}
	return out
}

func TestProducerCalibratesBatchSize(t *testing.T) {
	gauge := memorytest.New(0, 10)
	src := &sliceSource{
		lines:  lines(7),
		onNext: func(read int) { gauge.Set(uint64(read)) },
	}
	p := NewProducer(src, gauge, ProducerOptions{CalibrationFraction: 0.2, BatchSize: 100})

	ctx := context.Background()
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	var sizes []int
	for !p.Exhausted() {
		batch, err := p.Poll(ctx)
		require.NoError(t, err)
		require.LessOrEqual(t, len(batch), 2)
		sizes = append(sizes, len(batch))
	}
	require.Equal(t, []int{2, 2, 2, 1}, sizes)
	require.Equal(t, 2, p.BatchSize())
	require.NoError(t, <-runErr)

	_, err := p.Poll(ctx)
	require.ErrorIs(t, err, io.EOF)
}

func TestPollNeverReturnsPartialBatch(t *testing.T) {
	src := make(chanSource)
	p := NewProducer(src, memorytest.New(0, 10), ProducerOptions{BatchSize: 3})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	src <- "a"
	src <- "b"
	short, stop := context.WithTimeout(ctx, 50*time.Millisecond)
	_, err := p.Poll(short)
	stop()
	require.ErrorIs(t, err, context.DeadlineExceeded)

	src <- "c"
	batch, err := p.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, batch)
	require.False(t, p.Exhausted())

	close(src)
	batch, err = p.Poll(ctx)
	require.NoError(t, err)
	require.Empty(t, batch)
	require.True(t, p.Exhausted())
}

func TestProducerStopsOnCancel(t *testing.T) {
	src := make(chanSource)
	p := NewProducer(src, memorytest.New(0, 10), ProducerOptions{BatchSize: 3})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	src <- "a"
	cancel()

	select {
	case err := <-runErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not stop after cancel")
	}
}
