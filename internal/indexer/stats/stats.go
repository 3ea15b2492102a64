// Package stats holds the corpus-wide counters produced by a build. The
// counters are mutated while the build runs, persisted exactly once at the
// end, and only read back by the searcher after that.
package stats

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/partition"
	apperrors "github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/errors"
)

// Snapshot is the persisted form of the statistics.
type Snapshot struct {
	CorpusCount int `json:"corpus_count"`
	TokenCount  int `json:"token_count"`
}

// Store is the subset of partition.Store used to persist statistics.
type Store interface {
	Write(n partition.Name, v any, entries int) (int64, error)
	Read(n partition.Name, v any) error
}

// CorpusStatistics is owned by the build coordinator and handed by reference
// to the merger; all methods are safe for concurrent use.
type CorpusStatistics struct {
	mu          sync.Mutex
	corpusCount int
	tokenCount  int
	persisted   bool
}

func New() *CorpusStatistics {
	return &CorpusStatistics{}
}

func (s *CorpusStatistics) SetCorpusCount(n int) {
	s.mu.Lock()
	s.corpusCount = n
	s.mu.Unlock()
}

// AddTokens adds the distinct-term count of a written master partition.
func (s *CorpusStatistics) AddTokens(n int) {
	s.mu.Lock()
	s.tokenCount += n
	s.mu.Unlock()
}

func (s *CorpusStatistics) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{CorpusCount: s.corpusCount, TokenCount: s.tokenCount}
}

// Save persists the statistics. It succeeds at most once.
func (s *CorpusStatistics) Save(store Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persisted {
		return apperrors.ErrStatsPersisted
	}
	snap := Snapshot{CorpusCount: s.corpusCount, TokenCount: s.tokenCount}
	if _, err := store.Write(partition.Stats(), snap, 1); err != nil {
		return fmt.Errorf("saving corpus statistics: %w", err)
	}
	s.persisted = true
	return nil
}

// Load reads the statistics persisted by a completed build.
func Load(store Store) (Snapshot, error) {
	var snap Snapshot
	if err := store.Read(partition.Stats(), &snap); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, apperrors.ErrStatsMissing
		}
		return Snapshot{}, fmt.Errorf("loading corpus statistics: %w", err)
	}
	return snap, nil
}
