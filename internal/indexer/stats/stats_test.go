package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/partition"
	apperrors "github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/errors"
)

func TestSaveOnceAndLoad(t *testing.T) {
	store, err := partition.Open(t.TempDir(), partition.Options{})
	require.NoError(t, err)

	_, err = Load(store)
	require.ErrorIs(t, err, apperrors.ErrStatsMissing)

	s := New()
	s.SetCorpusCount(3)
	s.AddTokens(4)
	s.AddTokens(2)
	require.NoError(t, s.Save(store))
	require.ErrorIs(t, s.Save(store), apperrors.ErrStatsPersisted)

	snap, err := Load(store)
	require.NoError(t, err)
	require.Equal(t, Snapshot{CorpusCount: 3, TokenCount: 6}, snap)
}

func TestConcurrentAddTokens(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddTokens(2)
		}()
	}
	wg.Wait()
	require.Equal(t, 100, s.Snapshot().TokenCount)
}
