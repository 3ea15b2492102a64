package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/memory"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		slog.Error("indexer failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "configs/development.yaml",
			Usage:   "path to a YAML or TOML config file",
		},
		&cli.StringFlag{
			Name:  "data-dir",
			Usage: "directory holding the partition files",
		},
	}
	buildFlags := append([]cli.Flag{
		&cli.StringFlag{
			Name:  "corpus",
			Usage: "directory of CSV files to index",
		},
		&cli.IntFlag{
			Name:  "ceiling-mb",
			Usage: "memory ceiling in MiB (0 detects it from the host)",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "tokenizer and indexer concurrency",
		},
	}, flags...)

	return &cli.App{
		Name:  "indexer",
		Usage: "builds a memory-adaptive inverted index from a CSV corpus",
		Commands: []*cli.Command{
			{
				Name:        "build",
				Usage:       "index the corpus and merge it into master partitions",
				Description: "Reads the corpus in memory-sized batches, writes partial partitions per batch, merges them and persists corpus statistics.",
				Flags:       buildFlags,
				Action:      runBuild,
			},
			{
				Name:        "merge",
				Usage:       "merge partial partitions left in the data directory",
				Description: "Finishes a build that was interrupted after indexing, before its merge completed.",
				Flags:       flags,
				Action:      runMerge,
			},
			{
				Name:   "stats",
				Usage:  "print the corpus statistics and partition inventory as JSON",
				Flags:  flags,
				Action: runStats,
			},
		},
	}
}

// loadConfig reads the config file, applies command-line overrides and
// installs the logger on stderr so stdout only carries command output.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if v := c.String("data-dir"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if c.IsSet("corpus") {
		cfg.Indexer.CorpusDir = c.String("corpus")
	}
	if c.IsSet("ceiling-mb") {
		cfg.Memory.CeilingMB = c.Int("ceiling-mb")
	}
	if c.IsSet("workers") {
		cfg.Indexer.Workers = c.Int("workers")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

// startMetrics registers the collectors and serves them when enabled. The
// returned stop function is always safe to call.
func startMetrics(cfg config.MetricsConfig) (*metrics.Metrics, func()) {
	if !cfg.Enabled {
		return nil, func() {}
	}
	m := metrics.New()
	shutdown := metrics.StartServer(cfg.Port)
	return m, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			slog.Warn("metrics server shutdown failed", "error", err)
		}
	}
}

func startMonitor(ctx context.Context, cfg config.MemoryConfig, m *metrics.Metrics) (*memory.Monitor, error) {
	mon, err := memory.NewMonitor(memory.Options{
		Source:         memory.Source(cfg.Source),
		CeilingBytes:   uint64(cfg.CeilingMB) << 20,
		SampleInterval: cfg.SampleInterval,
		OnSample: func(s memory.Snapshot) {
			m.ObserveMemory(s.Used, s.Max, s.Peak)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("starting memory monitor: %w", err)
	}
	mon.Start(ctx)
	return mon, nil
}

func newTokenizer(cfg config.IndexerConfig) (*tokenizer.Tokenizer, error) {
	var filter tokenizer.Filter = tokenizer.DefaultStopWords()
	if cfg.StopWordsPath != "" {
		words, err := tokenizer.LoadStopWords(cfg.StopWordsPath)
		if err != nil {
			return nil, err
		}
		filter = words
	}
	var stemmer tokenizer.Stemmer = tokenizer.NoopStemmer{}
	if cfg.Stemming {
		stemmer = tokenizer.PorterStemmer{}
	}
	return tokenizer.New(filter, stemmer), nil
}
