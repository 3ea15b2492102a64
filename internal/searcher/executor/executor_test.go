package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/errors"
)

type fakeIndex struct {
	terms index.TermPostings
	docs  index.DocMap
	delay time.Duration
}

func (f *fakeIndex) Search(term string) index.TermPostings {
	time.Sleep(f.delay)
	p, ok := f.terms[term]
	if !ok {
		return index.TermPostings{}
	}
	return index.TermPostings{term: p}
}

func (f *fakeIndex) DocumentLocation(docID int) (index.DocLocation, bool) {
	loc, ok := f.docs[docID]
	return loc, ok
}

// Weights of "cat dog", "dog dog fish", "cat fish fish" after LNC.
func threeDocs() *fakeIndex {
	return &fakeIndex{
		terms: index.TermPostings{
			"cat":  {0: 0.70711, 2: 0.60940},
			"dog":  {0: 0.70711, 1: 0.79285},
			"fish": {1: 0.60940, 2: 0.79285},
		},
		docs: index.DocMap{
			0: {FilePath: "q.csv", OriginalID: 100},
			1: {FilePath: "q.csv", OriginalID: 101},
		},
	}
}

func plan(q string) *parser.QueryPlan {
	return parser.New(tokenizer.New(tokenizer.DefaultStopWords(), nil)).Parse(q)
}

func TestExecuteRanksAndResolves(t *testing.T) {
	e := New(threeDocs(), 3, 0, nil)

	res, err := e.Execute(context.Background(), plan("cat fish"), 2)
	require.NoError(t, err)
	require.Equal(t, []string{"cat", "fish"}, res.Terms)
	require.Equal(t, 3, res.TotalHits)
	require.Len(t, res.Results, 2)

	require.Equal(t, 2, res.Results[0].DocID)
	require.Equal(t, -1, res.Results[0].OriginalID)
	require.Empty(t, res.Results[0].FilePath)

	require.Equal(t, 0, res.Results[1].DocID)
	require.Equal(t, "q.csv", res.Results[1].FilePath)
	require.Equal(t, 100, res.Results[1].OriginalID)
	require.Equal(t, map[string]int{"cat": 2, "fish": 2}, res.TermStats)
}

func TestExecuteSingleTerm(t *testing.T) {
	e := New(threeDocs(), 3, time.Second, nil)

	res, err := e.Execute(context.Background(), plan("dog"), 10)
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalHits)
	require.Equal(t, 1, res.Results[0].DocID)
	require.Equal(t, 0, res.Results[1].DocID)
}

func TestExecuteEmptyPlan(t *testing.T) {
	e := New(threeDocs(), 3, 0, nil)

	res, err := e.Execute(context.Background(), plan("the and"), 10)
	require.NoError(t, err)
	require.Empty(t, res.Results)
	require.Zero(t, res.TotalHits)
	require.NotNil(t, res.Results)
}

func TestExecuteTimeout(t *testing.T) {
	idx := threeDocs()
	idx.delay = 50 * time.Millisecond
	e := New(idx, 3, 5*time.Millisecond, nil)

	_, err := e.Execute(context.Background(), plan("cat dog fish"), 10)
	require.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestSetCorpusCount(t *testing.T) {
	e := New(threeDocs(), 3, 0, nil)
	e.SetCorpusCount(2)
	require.Equal(t, 2, e.CorpusCount())

	res, err := e.Execute(context.Background(), plan("dog"), 10)
	require.NoError(t, err)
	for _, hit := range res.Results {
		require.Zero(t, hit.Score)
	}
}
