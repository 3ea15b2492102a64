// Package pipeline drives a complete index build: memory-gated batches flow
// from the producer through parsing, tokenization and indexing, partial
// partitions are flushed after every batch, and once the corpus is exhausted
// the partials are merged and the corpus statistics persisted.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/events"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/merge"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/stats"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/journal"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/memory"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/metrics"
)

// DefaultCorpusCountHint is the expected corpus size used for the remaining
// time estimate when none is configured.
const DefaultCorpusCountHint = 3165237

// Journal records build runs. Optional.
type Journal interface {
	Record(ctx context.Context, run journal.Run) error
}

// Notifier announces completed builds. Optional.
type Notifier interface {
	IndexComplete(ctx context.Context, ev events.IndexComplete) error
}

// Components are the collaborators a build is assembled from.
type Components struct {
	Producer   *ingestion.Producer
	Reader     *ingestion.CorpusReader
	Tokenizer  *tokenizer.Tokenizer
	Builder    *indexer.Builder
	Merger     *merge.Merger
	Stats      *stats.CorpusStatistics
	StatsStore stats.Store
	Gauge      memory.Gauge
	Journal    Journal
	Notifier   Notifier
}

type Options struct {
	DataDir         string
	Workers         int
	CorpusCountHint int
	Metrics         *metrics.Metrics
}

// Lap describes one processed batch.
type Lap struct {
	Batch     int
	Documents int
	Elapsed   time.Duration
	Processed int
	Remaining int
	ETA       time.Duration
}

// Summary describes a finished build.
type Summary struct {
	BuildID   uuid.UUID
	Batches   int
	Documents int
	Skipped   int
	Merge     merge.Result
	Stats     stats.Snapshot
	Duration  time.Duration
}

type Coordinator struct {
	c       Components
	opts    Options
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(c Components, opts Options) *Coordinator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.CorpusCountHint <= 0 {
		opts.CorpusCountHint = DefaultCorpusCountHint
	}
	return &Coordinator{
		c:       c,
		opts:    opts,
		metrics: opts.Metrics,
		logger:  slog.Default().With("component", "build-coordinator"),
	}
}

// Run executes the whole build. The producer is started and stopped here;
// the memory monitor is expected to be running already.
func (co *Coordinator) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{BuildID: uuid.New()}
	run := journal.Run{
		ID:         summary.BuildID,
		DataDir:    co.opts.DataDir,
		SplitLevel: co.c.Builder.Level(),
		Status:     journal.StatusRunning,
		StartedAt:  start,
	}
	co.record(ctx, run)
	co.logger.Info("build started",
		"build_id", summary.BuildID,
		"split_level", co.c.Builder.Level(),
		"max_memory_bytes", co.c.Gauge.MaxAmount(),
	)

	err := co.build(ctx, start, &summary)
	summary.Duration = time.Since(start)
	summary.Skipped = co.c.Reader.Skipped()

	run.Documents = summary.Documents
	run.Skipped = summary.Skipped
	run.Masters = summary.Merge.Masters
	run.Tokens = summary.Stats.TokenCount
	run.FinishedAt = time.Now()
	if err != nil {
		run.Status = journal.StatusFailed
		run.Error = err.Error()
		co.record(context.WithoutCancel(ctx), run)
		co.logger.Error("build failed", "build_id", summary.BuildID, "error", err)
		return summary, err
	}
	run.Status = journal.StatusSucceeded
	co.record(ctx, run)
	co.notify(ctx, summary)

	co.logger.Info("build complete",
		"build_id", summary.BuildID,
		"documents", summary.Documents,
		"tokens", summary.Stats.TokenCount,
		"masters", summary.Merge.Masters,
		"skipped_records", summary.Skipped,
		"duration", summary.Duration,
	)
	return summary, nil
}

func (co *Coordinator) build(ctx context.Context, start time.Time, summary *Summary) error {
	prodCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	prodErr := make(chan error, 1)
	go func() { prodErr <- co.c.Producer.Run(prodCtx) }()

	err := co.indexAll(ctx, start, summary)
	cancel()
	if perr := <-prodErr; err == nil && perr != nil && !errors.Is(perr, context.Canceled) {
		err = perr
	}
	if err != nil {
		return err
	}

	indexed := time.Since(start)
	summary.Documents = co.c.Reader.CorpusCount()
	co.c.Stats.SetCorpusCount(summary.Documents)
	co.logger.Info("corpus indexed, merging",
		"documents", summary.Documents,
		"batches", summary.Batches,
		"duration", indexed,
	)
	co.c.Gauge.Reclaim()

	res, err := co.c.Merger.Merge(ctx, co.c.Stats)
	summary.Merge = res
	if err != nil {
		return fmt.Errorf("merging partitions: %w", err)
	}
	if err := co.c.Stats.Save(co.c.StatsStore); err != nil {
		return err
	}
	summary.Stats = co.c.Stats.Snapshot()
	return nil
}

func (co *Coordinator) indexAll(ctx context.Context, start time.Time, summary *Summary) error {
	for {
		lines, err := co.c.Producer.Poll(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("polling corpus: %w", err)
		}
		if len(lines) > 0 {
			summary.Batches++
			lap, err := co.processBatch(ctx, summary.Batches, lines, start)
			if err != nil {
				return fmt.Errorf("batch %d: %w", summary.Batches, err)
			}
			co.reportLap(lap)
		}
		if co.c.Producer.Exhausted() {
			return nil
		}
	}
}

func (co *Coordinator) processBatch(ctx context.Context, n int, lines []string, start time.Time) (Lap, error) {
	lapStart := time.Now()

	docs := co.c.Reader.Parse(lines)
	if len(docs) > 0 {
		if err := co.c.Tokenizer.TokenizeBatch(ctx, docs, co.opts.Workers); err != nil {
			return Lap{}, fmt.Errorf("tokenizing: %w", err)
		}
		if err := co.c.Builder.Index(ctx, docs); err != nil {
			return Lap{}, err
		}
	}
	if _, err := co.c.Reader.Save(); err != nil {
		return Lap{}, err
	}
	if _, err := co.c.Builder.Flush(ctx); err != nil {
		return Lap{}, err
	}
	co.c.Gauge.Reclaim()

	processed := co.c.Reader.CorpusCount()
	lap := Lap{
		Batch:     n,
		Documents: len(docs),
		Elapsed:   time.Since(lapStart),
		Processed: processed,
	}
	lap.Remaining, lap.ETA = estimate(co.opts.CorpusCountHint, processed, time.Since(start))
	return lap, nil
}

// estimate extrapolates the time left from the average rate so far.
func estimate(hint, processed int, elapsed time.Duration) (int, time.Duration) {
	remaining := hint - processed
	if remaining <= 0 || processed <= 0 {
		return 0, 0
	}
	return remaining, time.Duration(float64(elapsed) * float64(remaining) / float64(processed))
}

func (co *Coordinator) reportLap(lap Lap) {
	co.logger.Info("batch processed",
		"batch", lap.Batch,
		"documents", lap.Documents,
		"elapsed", lap.Elapsed.Round(time.Millisecond),
		"processed", lap.Processed,
		"remaining", lap.Remaining,
		"eta", lap.ETA.Round(time.Second),
		"used_fraction", co.c.Gauge.UsedFraction(),
	)
	if co.metrics == nil {
		return
	}
	co.metrics.BatchesTotal.Inc()
	co.metrics.BatchDuration.Observe(lap.Elapsed.Seconds())
	co.metrics.BuildRemainingSeconds.Set(lap.ETA.Seconds())
}

func (co *Coordinator) record(ctx context.Context, run journal.Run) {
	if co.c.Journal == nil {
		return
	}
	if err := co.c.Journal.Record(ctx, run); err != nil {
		co.logger.Warn("failed to journal build", "build_id", run.ID, "status", run.Status, "error", err)
	}
}

func (co *Coordinator) notify(ctx context.Context, s Summary) {
	if co.c.Notifier == nil {
		return
	}
	ev := events.IndexComplete{
		BuildID:     s.BuildID.String(),
		DataDir:     co.opts.DataDir,
		SplitLevel:  co.c.Builder.Level(),
		CorpusCount: s.Stats.CorpusCount,
		TokenCount:  s.Stats.TokenCount,
		Masters:     s.Merge.Masters,
		CompletedAt: time.Now().UTC(),
	}
	if err := co.c.Notifier.IndexComplete(ctx, ev); err != nil {
		co.logger.Warn("failed to publish index complete", "build_id", s.BuildID, "error", err)
	}
}
