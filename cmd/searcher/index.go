package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/events"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/stats"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/memory"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/searcher/querycache"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/metrics"
)

// searchIndex holds everything a query needs over one data directory.
type searchIndex struct {
	dataDir    string
	store      *partition.Store
	monitor    *memory.Monitor
	cache      *cache.PartitionCache
	parser     *parser.Parser
	exec       *executor.Executor
	queryCache *querycache.QueryCache
	corpus     atomic.Pointer[stats.Snapshot]
	logger     *slog.Logger
}

func openIndex(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*searchIndex, error) {
	logger := slog.Default().With("component", "searcher")

	tok, err := newTokenizer(cfg.Indexer)
	if err != nil {
		return nil, err
	}
	mon, err := memory.NewMonitor(memory.Options{
		Source:         memory.Source(cfg.Memory.Source),
		CeilingBytes:   uint64(cfg.Memory.CeilingMB) << 20,
		SampleInterval: cfg.Memory.SampleInterval,
		OnSample: func(s memory.Snapshot) {
			m.ObserveMemory(s.Used, s.Max, s.Peak)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("starting memory monitor: %w", err)
	}
	mon.Start(ctx)

	store, err := partition.Open(cfg.Indexer.DataDir, partition.Options{Compress: cfg.Indexer.Compression == "zstd"})
	if err != nil {
		mon.Stop()
		return nil, err
	}
	pc, err := cache.New(store, mon, cache.Options{
		TermThreshold: cfg.Search.TermThreshold,
		TermInflation: cfg.Search.TermInflation,
		DocThreshold:  cfg.Search.DocThreshold,
		DocInflation:  cfg.Search.DocInflation,
		MaxEvictions:  cfg.Search.MaxEvictions,
		Metrics:       m,
	})
	if err != nil {
		mon.Stop()
		return nil, err
	}

	idx := &searchIndex{
		dataDir: cfg.Indexer.DataDir,
		store:   store,
		monitor: mon,
		cache:   pc,
		parser:  parser.New(tok),
		logger:  logger,
	}
	snap := idx.loadStats()
	idx.exec = executor.New(pc, snap.CorpusCount, cfg.Search.QueryTimeout, m)
	idx.corpus.Store(&snap)
	return idx, nil
}

// loadStats returns the persisted corpus statistics. A directory without
// them serves empty results until a build completes.
func (s *searchIndex) loadStats() stats.Snapshot {
	snap, err := stats.Load(s.store)
	if err != nil {
		if errors.Is(err, apperrors.ErrStatsMissing) {
			s.logger.Warn("corpus statistics missing, index not built yet", "data_dir", s.dataDir)
		} else {
			s.logger.Error("corpus statistics unreadable", "data_dir", s.dataDir, "error", err)
		}
		return stats.Snapshot{}
	}
	return snap
}

func (s *searchIndex) corpusStats() stats.Snapshot {
	return *s.corpus.Load()
}

// reload swaps in a rebuilt index announced by ev and drops every cached
// query result computed against the old one.
func (s *searchIndex) reload(ctx context.Context, ev events.IndexComplete) error {
	if ev.DataDir != "" && ev.DataDir != s.dataDir {
		s.logger.Debug("ignoring build for another data directory", "build_id", ev.BuildID, "data_dir", ev.DataDir)
		return nil
	}
	if err := s.cache.Reload(); err != nil {
		return fmt.Errorf("reloading partitions for build %s: %w", ev.BuildID, err)
	}
	snap := s.loadStats()
	s.exec.SetCorpusCount(snap.CorpusCount)
	s.corpus.Store(&snap)

	if s.queryCache != nil {
		deleted, err := s.queryCache.Invalidate(ctx)
		if err != nil {
			s.logger.Warn("query cache invalidation failed", "build_id", ev.BuildID, "error", err)
		} else {
			s.logger.Info("query cache invalidated", "build_id", ev.BuildID, "keys_deleted", deleted)
		}
	}
	s.logger.Info("index reloaded", "build_id", ev.BuildID, "corpus_count", snap.CorpusCount)
	return nil
}

func (s *searchIndex) close() {
	s.monitor.Stop()
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
