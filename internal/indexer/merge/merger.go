// Package merge reduces the partial partitions written by the builder into a
// single master partition per bucket. A bucket whose accumulated postings
// would not fit in free memory is spilled into finer "part" partitions,
// which are merged in turn one level deeper.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/memory"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/metrics"
)

const (
	DefaultInflation     = 10.0
	DefaultMaxSplitLevel = 4
)

// Store is the subset of partition.Store the merger needs.
type Store interface {
	List(kinds ...partition.Kind) ([]partition.Entry, error)
	ReadTerms(n partition.Name) (index.TermPostings, error)
	WriteTerms(n partition.Name, terms index.TermPostings) (int64, error)
	Remove(n partition.Name) error
	Sequences(kind partition.Kind) (*partition.Sequencer, error)
}

// TokenCounter receives the distinct-term count of every master written.
type TokenCounter interface {
	AddTokens(n int)
}

type Options struct {
	// Level is the split level the partials were bucketed at.
	Level int
	// Inflation scales on-disk partition size into an estimate of its
	// in-memory size.
	Inflation float64
	// MaxSplitLevel bounds how fine spilling may go; at this level a bucket
	// is merged in memory regardless of pressure.
	MaxSplitLevel int
	Metrics       *metrics.Metrics
}

// Result summarises a merge run.
type Result struct {
	Masters int
	Tokens  int
	// Spills counts accumulators written out under memory pressure.
	Spills int
	// Skipped counts source partitions that could not be read and were
	// left on disk.
	Skipped int
}

type Merger struct {
	store     Store
	gauge     memory.Gauge
	level     int
	inflation float64
	maxLevel  int
	metrics   *metrics.Metrics
	logger    *slog.Logger

	parts  *partition.Sequencer
	result Result
}

func New(store Store, gauge memory.Gauge, opts Options) *Merger {
	if opts.Level < 1 {
		opts.Level = 1
	}
	if opts.Inflation <= 0 {
		opts.Inflation = DefaultInflation
	}
	if opts.MaxSplitLevel <= 0 {
		opts.MaxSplitLevel = DefaultMaxSplitLevel
	}
	if opts.MaxSplitLevel < opts.Level {
		opts.MaxSplitLevel = opts.Level
	}
	return &Merger{
		store:     store,
		gauge:     gauge,
		level:     opts.Level,
		inflation: opts.Inflation,
		maxLevel:  opts.MaxSplitLevel,
		metrics:   opts.Metrics,
		logger:    slog.Default().With("component", "partition-merger"),
	}
}

// Merge folds every partial and part partition into master partitions and
// adds each master's term count to counter. It must not run concurrently
// with indexing.
func (m *Merger) Merge(ctx context.Context, counter TokenCounter) (Result, error) {
	start := time.Now()
	m.result = Result{}

	sources, err := m.store.List(partition.KindPartial, partition.KindPart)
	if err != nil {
		return Result{}, fmt.Errorf("listing partitions to merge: %w", err)
	}
	m.parts, err = m.store.Sequences(partition.KindPart)
	if err != nil {
		return Result{}, fmt.Errorf("allocating part sequences: %w", err)
	}

	buckets := groupByBucket(sources, m.level)
	keys := sortedKeys(buckets)
	m.logger.Info("merge started",
		"sources", len(sources),
		"buckets", len(keys),
		"split_level", m.level,
		"free_bytes", m.gauge.FreeAmount(),
	)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return m.result, err
		}
		if err := m.mergeBucket(ctx, key, m.level, buckets[key], counter); err != nil {
			return m.result, err
		}
	}

	m.logger.Info("merge complete",
		"masters", m.result.Masters,
		"spills", m.result.Spills,
		"tokens", m.result.Tokens,
		"skipped", m.result.Skipped,
		"duration", time.Since(start),
	)
	return m.result, nil
}

// mergeBucket accumulates files into one term map. If memory runs short the
// accumulator is spilled into parts one level finer and those parts are
// merged recursively; otherwise the accumulator becomes the bucket's master.
func (m *Merger) mergeBucket(ctx context.Context, key string, level int, files []partition.Entry, counter TokenCounter) error {
	acc := index.NewTermMap()
	var (
		accBytes int64
		consumed []partition.Name
		spilled  []partition.Entry
	)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if acc.Len() > 0 && level < m.maxLevel && m.exceedsFree(accBytes+f.Size) {
			parts, err := m.spill(acc, level+1)
			if err != nil {
				return fmt.Errorf("spilling bucket %q: %w", key, err)
			}
			spilled = append(spilled, parts...)
			m.result.Spills++
			if m.metrics != nil {
				m.metrics.MergeSpillsTotal.Inc()
			}
			m.gauge.Reclaim()
			accBytes = 0
		}

		terms, err := m.store.ReadTerms(f.Name)
		if err != nil {
			m.logger.Error("skipping unreadable partition",
				"partition", f.Name.String(),
				"error", err,
			)
			m.result.Skipped++
			continue
		}
		for term, postings := range terms {
			acc.PutMaster(term, postings)
		}
		accBytes += f.Size
		consumed = append(consumed, f.Name)
	}

	if len(spilled) == 0 {
		if acc.Len() > 0 {
			if err := m.writeMaster(key, acc, counter); err != nil {
				return err
			}
		}
		m.removeAll(consumed)
		return nil
	}

	if acc.Len() > 0 {
		parts, err := m.spill(acc, level+1)
		if err != nil {
			return fmt.Errorf("spilling bucket %q: %w", key, err)
		}
		spilled = append(spilled, parts...)
	}
	m.removeAll(consumed)
	m.gauge.Reclaim()

	sub := groupByBucket(spilled, level+1)
	m.logger.Info("bucket spilled, merging parts",
		"bucket", key,
		"level", level+1,
		"parts", len(spilled),
		"sub_buckets", len(sub),
	)
	for _, subKey := range sortedKeys(sub) {
		if err := m.mergeBucket(ctx, subKey, level+1, sub[subKey], counter); err != nil {
			return err
		}
	}
	return nil
}

func (m *Merger) exceedsFree(bytes int64) bool {
	return float64(bytes)*m.inflation >= float64(m.gauge.FreeAmount())
}

// spill writes the accumulator out as part partitions bucketed at level and
// leaves it empty.
func (m *Merger) spill(acc *index.TermMap, level int) ([]partition.Entry, error) {
	groups := make(map[string]index.TermPostings)
	for term, postings := range acc.Drain() {
		key := partition.BucketKey(term, level)
		if groups[key] == nil {
			groups[key] = make(index.TermPostings)
		}
		groups[key][term] = postings
	}

	out := make([]partition.Entry, 0, len(groups))
	for _, key := range sortedKeys(groups) {
		name := m.parts.Next(key)
		size, err := m.store.WriteTerms(name, groups[key])
		if err != nil {
			return out, err
		}
		out = append(out, partition.Entry{Name: name, Size: size})
		if m.metrics != nil {
			m.metrics.PartitionBytesWritten.WithLabelValues(partition.KindPart.String()).Add(float64(size))
		}
	}
	m.logger.Debug("accumulator spilled", "level", level, "parts", len(out))
	return out, nil
}

func (m *Merger) writeMaster(key string, acc *index.TermMap, counter TokenCounter) error {
	terms := acc.Drain()
	size, err := m.store.WriteTerms(partition.Master(key), terms)
	if err != nil {
		return fmt.Errorf("writing master %q: %w", key, err)
	}
	counter.AddTokens(len(terms))
	m.result.Masters++
	m.result.Tokens += len(terms)
	if m.metrics != nil {
		m.metrics.MastersWrittenTotal.Inc()
		m.metrics.PartitionBytesWritten.WithLabelValues(partition.KindMaster.String()).Add(float64(size))
	}
	m.logger.Debug("master written", "bucket", key, "terms", len(terms), "bytes", size)
	return nil
}

func (m *Merger) removeAll(names []partition.Name) {
	for _, n := range names {
		if err := m.store.Remove(n); err != nil {
			m.logger.Error("failed to remove merged partition", "partition", n.String(), "error", err)
		}
	}
}

func groupByBucket(entries []partition.Entry, level int) map[string][]partition.Entry {
	groups := make(map[string][]partition.Entry)
	for _, e := range entries {
		key := partition.BucketKey(e.Name.Key, level)
		groups[key] = append(groups[key], e)
	}
	return groups
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
