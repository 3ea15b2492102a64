package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/events"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/merge"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/stats"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/journal"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/memory"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/memory/memorytest"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/partition"
)

type recordingJournal struct{ runs []journal.Run }

func (j *recordingJournal) Record(_ context.Context, run journal.Run) error {
	j.runs = append(j.runs, run)
	return nil
}

type recordingNotifier struct{ events []events.IndexComplete }

func (n *recordingNotifier) IndexComplete(_ context.Context, ev events.IndexComplete) error {
	n.events = append(n.events, ev)
	return nil
}

type fixture struct {
	store    *partition.Store
	journal  *recordingJournal
	notifier *recordingNotifier
	coord    *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithMergeGauge(t, nil)
}

// newFixtureWithMergeGauge builds the fixture with a separate gauge for the
// merge phase, leaving batching unaffected. A nil gauge shares the default.
func newFixtureWithMergeGauge(t *testing.T, mergeGauge memory.Gauge) *fixture {
	t.Helper()
	corpus := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(corpus, "posts.csv"), []byte(
		"Id,CreationDate,Score,Body\n"+
			"101,2020-01-01,1,the quick brown fox\n"+
			"102,2020-01-02,2,quick dogs jump\n"+
			"103,2020-01-03,3,lazy fox sleeps\n"), 0o644))

	store, err := partition.Open(t.TempDir(), partition.Options{})
	require.NoError(t, err)
	src, err := ingestion.NewCSVSource(corpus)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	gauge := memorytest.New(0, 1<<34)
	if mergeGauge == nil {
		mergeGauge = gauge
	}
	f := &fixture{
		store:    store,
		journal:  &recordingJournal{},
		notifier: &recordingNotifier{},
	}
	f.coord = New(Components{
		Producer:   ingestion.NewProducer(src, gauge, ingestion.ProducerOptions{BatchSize: 2}),
		Reader:     ingestion.NewCorpusReader(store),
		Tokenizer:  tokenizer.New(tokenizer.DefaultStopWords(), nil),
		Builder:    indexer.NewBuilder(store, indexer.Options{Level: 1, Workers: 2}),
		Merger:     merge.New(store, mergeGauge, merge.Options{Level: 1, MaxSplitLevel: 4}),
		Stats:      stats.New(),
		StatsStore: store,
		Gauge:      gauge,
		Journal:    f.journal,
		Notifier:   f.notifier,
	}, Options{DataDir: store.Dir(), Workers: 2, CorpusCountHint: 10})
	return f
}

func TestRunBuildsMergedIndex(t *testing.T) {
	f := newFixture(t)

	summary, err := f.coord.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Batches)
	require.Equal(t, 3, summary.Documents)
	require.Equal(t, stats.Snapshot{CorpusCount: 3, TokenCount: 7}, summary.Stats)
	require.Zero(t, summary.Merge.Spills)
	requireCompleteIndex(t, f.store, summary)

	masters, err := f.store.List(partition.KindMaster)
	require.NoError(t, err)
	require.Len(t, masters, 7)

	fox, err := f.store.ReadTerms(partition.Master("f"))
	require.NoError(t, err)
	require.Len(t, fox["fox"], 2)

	docMaps, err := f.store.List(partition.KindDocMap)
	require.NoError(t, err)
	require.Len(t, docMaps, 2)
	last, err := f.store.ReadDocMap(partition.DocMap(3))
	require.NoError(t, err)
	require.Equal(t, 103, last[2].OriginalID)

	persisted, err := stats.Load(f.store)
	require.NoError(t, err)
	require.Equal(t, summary.Stats, persisted)

	require.Len(t, f.journal.runs, 2)
	require.Equal(t, journal.StatusRunning, f.journal.runs[0].Status)
	require.Equal(t, journal.StatusSucceeded, f.journal.runs[1].Status)
	require.Equal(t, 7, f.journal.runs[1].Masters)

	require.Len(t, f.notifier.events, 1)
	require.Equal(t, summary.BuildID.String(), f.notifier.events[0].BuildID)
}

func TestRunSpillsUnderMemoryPressure(t *testing.T) {
	// one free byte during the merge: every bucket with more than one
	// partial has to spill into finer parts
	starved := memorytest.New(1<<30-1, 1<<30)
	f := newFixtureWithMergeGauge(t, starved)

	summary, err := f.coord.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, summary.Documents)
	require.Positive(t, summary.Merge.Spills)
	require.Positive(t, starved.Reclaims())
	require.Equal(t, stats.Snapshot{CorpusCount: 3, TokenCount: 7}, summary.Stats)
	requireCompleteIndex(t, f.store, summary)

	// fox is in both batches, so its bucket spilled below the first level
	var found bool
	masters, err := f.store.List(partition.KindMaster)
	require.NoError(t, err)
	for _, e := range masters {
		terms, err := f.store.ReadTerms(e.Name)
		require.NoError(t, err)
		if p, ok := terms["fox"]; ok {
			found = true
			require.Len(t, p, 2)
			require.Greater(t, e.Name.Level(), 1)
		}
	}
	require.True(t, found)
}

// requireCompleteIndex checks that only masters are left, that no term is
// split across masters, that the master term count matches the statistics
// and that every document's weights still form a unit vector.
func requireCompleteIndex(t *testing.T, store *partition.Store, summary Summary) {
	t.Helper()

	leftovers, err := store.List(partition.KindPartial, partition.KindPart)
	require.NoError(t, err)
	require.Empty(t, leftovers)

	masters, err := store.List(partition.KindMaster)
	require.NoError(t, err)
	require.Len(t, masters, summary.Merge.Masters)

	seen := make(map[string]bool)
	norms := make(map[int]float64)
	for _, e := range masters {
		terms, err := store.ReadTerms(e.Name)
		require.NoError(t, err)
		for term, postings := range terms {
			require.False(t, seen[term], "term %q in more than one master", term)
			seen[term] = true
			for docID, w := range postings {
				norms[docID] += w * w
			}
		}
	}
	require.Len(t, seen, summary.Stats.TokenCount)
	require.Len(t, norms, summary.Documents)
	for docID, sum := range norms {
		require.InDelta(t, 1, sum, 1e-9, "doc %d", docID)
	}
}

func TestRunCancelledRecordsFailure(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.coord.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, journal.StatusFailed, f.journal.runs[len(f.journal.runs)-1].Status)
	require.Empty(t, f.notifier.events)
}

func TestEstimate(t *testing.T) {
	remaining, eta := estimate(100, 25, 10*time.Second)
	require.Equal(t, 75, remaining)
	require.Equal(t, 30*time.Second, eta)

	remaining, eta = estimate(10, 20, time.Second)
	require.Zero(t, remaining)
	require.Zero(t, eta)
}
