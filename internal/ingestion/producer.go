package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/memory"
)

const (
	DefaultCalibrationFraction = 0.20
	DefaultBatchSize           = 50000
)

type ProducerOptions struct {
	// CalibrationFraction is the memory usage at which the first cycle stops
	// buffering; the number of lines read by then becomes the batch size of
	// every later cycle. Zero disables calibration.
	CalibrationFraction float64
	// BatchSize is used when calibration is disabled or yields nothing.
	BatchSize int
}

// Producer reads lines from a RecordSource one cycle ahead of its consumer.
// After filling a cycle it waits until the consumer polls it, so at most one
// unconsumed batch is ever buffered.
type Producer struct {
	source      RecordSource
	gauge       memory.Gauge
	calibration float64
	logger      *slog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	target    int
	buf       []string
	ready     bool
	done      bool
	drained   bool
	err       error
	cycles    int
	calibrate bool
}

func NewProducer(source RecordSource, gauge memory.Gauge, opts ProducerOptions) *Producer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	p := &Producer{
		source:      source,
		gauge:       gauge,
		calibration: opts.CalibrationFraction,
		calibrate:   opts.CalibrationFraction > 0,
		target:      opts.BatchSize,
		logger:      slog.Default().With("component", "producer"),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Run fills cycles until the source is exhausted, the context is cancelled
// or the source fails. It is meant to run in its own goroutine.
func (p *Producer) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, p.wake)
	defer stop()

	for {
		p.mu.Lock()
		calibrating, target := p.calibrate, p.target
		p.mu.Unlock()

		lines, exhausted, err := p.fill(ctx, calibrating, target)

		p.mu.Lock()
		if calibrating {
			p.calibrate = false
			if len(lines) > 0 {
				p.target = len(lines)
			}
			p.logger.Info("batch size calibrated",
				"batch_size", p.target,
				"used_fraction", p.gauge.UsedFraction(),
			)
		}
		p.buf = lines
		p.ready = true
		p.done = exhausted || err != nil
		p.err = err
		p.cycles++
		p.cond.Broadcast()
		for p.ready && ctx.Err() == nil {
			p.cond.Wait()
		}
		p.mu.Unlock()

		switch {
		case err != nil:
			return err
		case exhausted:
			p.logger.Info("corpus exhausted", "cycles", p.Cycles())
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		}
	}
}

func (p *Producer) fill(ctx context.Context, calibrating bool, target int) ([]string, bool, error) {
	capacity := target
	if calibrating {
		capacity = 1024
	}
	lines := make([]string, 0, capacity)
	for {
		if calibrating {
			if len(lines) > 0 && p.gauge.UsedFraction() >= p.calibration {
				return lines, false, nil
			}
		} else if len(lines) >= target {
			return lines, false, nil
		}

		line, err := p.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			return lines, true, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return lines, false, ctx.Err()
			}
			return lines, true, fmt.Errorf("reading corpus: %w", err)
		}
		lines = append(lines, line)
	}
}

// Poll blocks until the current cycle is complete and returns its lines,
// releasing the producer to fill the next one. It never returns a partially
// filled cycle. Once the final cycle has been taken Poll returns io.EOF.
func (p *Producer) Poll(ctx context.Context) ([]string, error) {
	stop := context.AfterFunc(ctx, p.wake)
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.ready {
		if p.drained {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.cond.Wait()
	}

	lines := p.buf
	p.buf = nil
	p.ready = false
	if p.done {
		p.drained = true
	}
	p.cond.Broadcast()
	return lines, p.err
}

// Exhausted reports whether the final cycle has been polled.
func (p *Producer) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drained
}

// BatchSize is the current target number of lines per cycle.
func (p *Producer) BatchSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target
}

// Cycles is the number of cycles filled so far.
func (p *Producer) Cycles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cycles
}

func (p *Producer) wake() {
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}
