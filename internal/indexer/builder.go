package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/metrics"
)

// Store is the subset of partition.Store the builder writes through.
type Store interface {
	WriteTerms(n partition.Name, terms index.TermPostings) (int64, error)
	Sequences(kind partition.Kind) (*partition.Sequencer, error)
}

type Options struct {
	// Level is the split level: the prefix length partial partitions are
	// bucketed by.
	Level   int
	Workers int
	Metrics *metrics.Metrics
}

// FlushResult summarises one Flush call.
type FlushResult struct {
	Partitions int
	Terms      int
	Bytes      int64
}

// Builder accumulates weighted postings for document batches and writes
// them out as partial partitions.
type Builder struct {
	terms     *index.TermMap
	store     Store
	level     int
	workers   int
	processed atomic.Int64
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewBuilder(store Store, opts Options) *Builder {
	if opts.Level < 1 {
		opts.Level = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Builder{
		terms:   index.NewTermMap(),
		store:   store,
		level:   opts.Level,
		workers: opts.Workers,
		metrics: opts.Metrics,
		logger:  slog.Default().With("component", "index-builder", "split_level", opts.Level),
	}
}

// Index adds every document of a tokenized batch to the live term map and
// normalizes each document's weights. Documents are processed concurrently.
func (b *Builder) Index(ctx context.Context, docs []index.Document) error {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i := range docs {
		doc := &docs[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b.terms.AddAll(doc.Content, doc.ID)
			b.terms.ComputeLNC(doc.Content, doc.ID)
			return nil
		})
	}
	err := g.Wait()
	b.terms.ResetAccumulator()
	if err != nil {
		return fmt.Errorf("indexing batch: %w", err)
	}

	total := b.processed.Add(int64(len(docs)))
	if b.metrics != nil {
		b.metrics.DocsIndexedTotal.Add(float64(len(docs)))
	}
	b.logger.Debug("batch indexed",
		"docs", len(docs),
		"live_terms", b.terms.Len(),
		"processed_total", total,
		"duration", time.Since(start),
	)
	return nil
}

// Flush writes every live term into a new partial partition per bucket and
// empties the term map. Entries whose partition could not be written are put
// back so that a later flush can retry them.
func (b *Builder) Flush(ctx context.Context) (FlushResult, error) {
	terms := b.terms.Terms()
	if len(terms) == 0 {
		return FlushResult{}, nil
	}

	buckets := make(map[string][]string)
	for _, term := range terms {
		key := partition.BucketKey(term, b.level)
		buckets[key] = append(buckets[key], term)
	}
	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	seqs, err := b.store.Sequences(partition.KindPartial)
	if err != nil {
		return FlushResult{}, fmt.Errorf("allocating partition sequences: %w", err)
	}

	var (
		mu     sync.Mutex
		result FlushResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for _, key := range keys {
		bucketTerms := buckets[key]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entries := b.terms.Take(bucketTerms)
			name := seqs.Next(key)
			size, err := b.store.WriteTerms(name, entries)
			if err != nil {
				for term, postings := range entries {
					b.terms.PutMaster(term, postings)
				}
				if b.metrics != nil {
					b.metrics.PartitionFlushesTotal.WithLabelValues("error").Inc()
				}
				return fmt.Errorf("flushing bucket %q: %w", key, err)
			}
			if b.metrics != nil {
				b.metrics.PartitionFlushesTotal.WithLabelValues("ok").Inc()
				b.metrics.PartitionBytesWritten.WithLabelValues(partition.KindPartial.String()).Add(float64(size))
			}
			mu.Lock()
			result.Partitions++
			result.Terms += len(entries)
			result.Bytes += size
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	b.logger.Info("partials flushed",
		"partitions", result.Partitions,
		"terms", result.Terms,
		"bytes", result.Bytes,
		"buckets", len(keys),
	)
	return result, err
}

// Processed is the number of documents indexed so far.
func (b *Builder) Processed() int64 { return b.processed.Load() }

func (b *Builder) Level() int { return b.level }

// LiveTerms is the number of distinct terms not yet flushed.
func (b *Builder) LiveTerms() int { return b.terms.Len() }
