package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/events"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/merge"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/stats"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/journal"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/memory"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/pipeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/postgres"
)

func runBuild(c *cli.Context) error {
	ctx := c.Context
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	m, stopMetrics := startMetrics(cfg.Metrics)
	defer stopMetrics()

	mon, err := startMonitor(ctx, cfg.Memory, m)
	if err != nil {
		return err
	}
	defer mon.Stop()

	store, err := openStore(cfg.Indexer.DataDir, cfg.Indexer.Compression)
	if err != nil {
		return err
	}
	if store.Exists(partition.Stats()) {
		return fmt.Errorf("%w: %s already holds a built index", apperrors.ErrStatsPersisted, cfg.Indexer.DataDir)
	}
	tok, err := newTokenizer(cfg.Indexer)
	if err != nil {
		return err
	}
	source, err := ingestion.NewCSVSource(cfg.Indexer.CorpusDir)
	if err != nil {
		return err
	}
	defer source.Close()

	level := partition.SplitLevel(mon.MaxAmount(), uint64(cfg.Indexer.SplitThresholdMB)<<20)
	components := pipeline.Components{
		Producer: ingestion.NewProducer(source, mon, ingestion.ProducerOptions{
			CalibrationFraction: cfg.Memory.CalibrationFraction,
			BatchSize:           cfg.Memory.DefaultBatchSize,
		}),
		Reader:    ingestion.NewCorpusReader(store),
		Tokenizer: tok,
		Builder: indexer.NewBuilder(store, indexer.Options{
			Level:   level,
			Workers: cfg.Indexer.Workers,
			Metrics: m,
		}),
		Merger:     newMerger(store, mon, level, cfg.Merge.Inflation, cfg.Merge.MaxSplitLevel, m),
		Stats:      stats.New(),
		StatsStore: store,
		Gauge:      mon,
	}

	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer pg.Close()
		j := journal.New(pg)
		if err := j.EnsureSchema(ctx); err != nil {
			return err
		}
		components.Journal = j
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		components.Notifier = events.NewNotifier(producer)
	}

	slog.Info("starting build",
		"corpus_dir", cfg.Indexer.CorpusDir,
		"data_dir", cfg.Indexer.DataDir,
		"csv_files", len(source.Files()),
		"split_level", level,
	)
	summary, err := pipeline.New(components, pipeline.Options{
		DataDir:         cfg.Indexer.DataDir,
		Workers:         cfg.Indexer.Workers,
		CorpusCountHint: cfg.Indexer.CorpusCountHint,
		Metrics:         m,
	}).Run(ctx)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func runMerge(c *cli.Context) error {
	ctx := c.Context
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	m, stopMetrics := startMetrics(cfg.Metrics)
	defer stopMetrics()

	mon, err := startMonitor(ctx, cfg.Memory, m)
	if err != nil {
		return err
	}
	defer mon.Stop()

	store, err := openStore(cfg.Indexer.DataDir, cfg.Indexer.Compression)
	if err != nil {
		return err
	}
	if store.Exists(partition.Stats()) {
		return fmt.Errorf("%w: nothing to merge in %s", apperrors.ErrStatsPersisted, cfg.Indexer.DataDir)
	}
	masters, err := store.List(partition.KindMaster)
	if err != nil {
		return err
	}
	if len(masters) > 0 {
		return fmt.Errorf("%w: %s already holds %d master partitions", apperrors.ErrConfiguration, cfg.Indexer.DataDir, len(masters))
	}
	partials, err := store.List(partition.KindPartial)
	if err != nil {
		return err
	}
	level := partition.SplitLevel(mon.MaxAmount(), uint64(cfg.Indexer.SplitThresholdMB)<<20)
	if len(partials) > 0 {
		level = partials[0].Name.Level()
	}
	docMaps, err := store.List(partition.KindDocMap)
	if err != nil {
		return err
	}

	corpus := stats.New()
	for _, e := range docMaps {
		corpus.SetCorpusCount(max(corpus.Snapshot().CorpusCount, e.Name.Seq))
	}
	mon.Reclaim()
	result, err := newMerger(store, mon, level, cfg.Merge.Inflation, cfg.Merge.MaxSplitLevel, m).Merge(ctx, corpus)
	if err != nil {
		return err
	}
	if err := corpus.Save(store); err != nil {
		return err
	}
	return printJSON(struct {
		Merge merge.Result   `json:"merge"`
		Stats stats.Snapshot `json:"stats"`
	}{result, corpus.Snapshot()})
}

type inventory struct {
	stats.Snapshot
	Masters  int   `json:"masters"`
	DocMaps  int   `json:"doc_maps"`
	Partials int   `json:"partials"`
	Bytes    int64 `json:"bytes"`
}

func runStats(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := openStore(cfg.Indexer.DataDir, cfg.Indexer.Compression)
	if err != nil {
		return err
	}
	snapshot, err := stats.Load(store)
	if err != nil {
		return err
	}
	entries, err := store.List(partition.KindMaster, partition.KindDocMap, partition.KindPartial, partition.KindPart)
	if err != nil {
		return err
	}
	inv := inventory{Snapshot: snapshot}
	for _, e := range entries {
		inv.Bytes += e.Size
		switch e.Name.Kind {
		case partition.KindMaster:
			inv.Masters++
		case partition.KindDocMap:
			inv.DocMaps++
		default:
			inv.Partials++
		}
	}
	return printJSON(inv)
}

func openStore(dir, compression string) (*partition.Store, error) {
	return partition.Open(dir, partition.Options{Compress: compression == "zstd"})
}

func newMerger(store *partition.Store, gauge memory.Gauge, level int, inflation float64, maxLevel int, m *metrics.Metrics) *merge.Merger {
	return merge.New(store, gauge, merge.Options{
		Level:         level,
		Inflation:     inflation,
		MaxSplitLevel: maxLevel,
		Metrics:       m,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
