package indexer

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/partition"
)

func newStore(t *testing.T) *partition.Store {
	t.Helper()
	s, err := partition.Open(t.TempDir(), partition.Options{})
	require.NoError(t, err)
	return s
}

func batch() []index.Document {
	return []index.Document{
		{ID: 1, Content: []string{"dog", "cat"}},
		{ID: 2, Content: []string{"dog", "dog", "fish"}},
		{ID: 3, Content: []string{"cat", "fish", "fish", "d"}},
	}
}

func TestFlushEmptyIsNoop(t *testing.T) {
	s := newStore(t)
	b := NewBuilder(s, Options{Level: 1, Workers: 2})

	res, err := b.Flush(context.Background())
	require.NoError(t, err)
	require.Zero(t, res)

	entries, err := s.List()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestIndexAndFlushWritesOnePartialPerBucket(t *testing.T) {
	s := newStore(t)
	b := NewBuilder(s, Options{Level: 1, Workers: 4})

	require.NoError(t, b.Index(context.Background(), batch()))
	require.Equal(t, int64(3), b.Processed())

	res, err := b.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, res.Partitions) // c, d, f
	require.Equal(t, 4, res.Terms)
	require.Zero(t, b.LiveTerms())

	d, err := s.ReadTerms(partition.Partial("d", 0))
	require.NoError(t, err)
	require.Contains(t, d, "dog")
	require.Contains(t, d, "d")

	// doc2: dog tf=2, fish tf=1
	dogW := 1 + math.Log10(2)
	require.InDelta(t, dogW/math.Sqrt(dogW*dogW+1), d["dog"][2], 1e-12)
}

func TestSecondFlushAdvancesSequence(t *testing.T) {
	s := newStore(t)
	b := NewBuilder(s, Options{Level: 2, Workers: 1})
	ctx := context.Background()

	require.NoError(t, b.Index(ctx, []index.Document{{ID: 1, Content: []string{"dog"}}}))
	_, err := b.Flush(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Index(ctx, []index.Document{{ID: 2, Content: []string{"door"}}}))
	_, err = b.Flush(ctx)
	require.NoError(t, err)

	entries, err := s.List(partition.KindPartial)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, partition.Partial("do", 0), entries[0].Name)
	require.Equal(t, partition.Partial("do", 1), entries[1].Name)
}

type failingStore struct {
	*partition.Store
	fail string
}

func (f failingStore) WriteTerms(n partition.Name, terms index.TermPostings) (int64, error) {
	if n.Key == f.fail {
		return 0, errors.New("disk full")
	}
	return f.Store.WriteTerms(n, terms)
}

func TestFlushFailureKeepsEntries(t *testing.T) {
	s := newStore(t)
	b := NewBuilder(failingStore{Store: s, fail: "f"}, Options{Level: 1, Workers: 1})
	require.NoError(t, b.Index(context.Background(), batch()))

	_, err := b.Flush(context.Background())
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, 1, b.LiveTerms())
}
