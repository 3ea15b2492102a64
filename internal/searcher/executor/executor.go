package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/tracing"
)

// Index is the read side of the partition cache.
type Index interface {
	Search(term string) index.TermPostings
	DocumentLocation(docID int) (index.DocLocation, bool)
}

type Hit struct {
	DocID      int     `json:"doc_id"`
	Score      float64 `json:"score"`
	FilePath   string  `json:"file_path"`
	OriginalID int     `json:"original_id"`
}

type SearchResult struct {
	Query     string         `json:"query"`
	Terms     []string       `json:"terms"`
	TotalHits int            `json:"total_hits"`
	Results   []Hit          `json:"results"`
	TermStats map[string]int `json:"term_stats,omitempty"`
}

type Executor struct {
	index       Index
	corpusCount atomic.Int64
	timeout     time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// New returns an Executor ranking against a corpus of corpusCount documents.
// A positive timeout bounds each query.
func New(idx Index, corpusCount int, timeout time.Duration, m *metrics.Metrics) *Executor {
	e := &Executor{
		index:   idx,
		timeout: timeout,
		metrics: m,
		logger:  slog.Default().With("component", "query-executor"),
	}
	e.corpusCount.Store(int64(corpusCount))
	return e
}

// SetCorpusCount replaces N after the index was rebuilt.
func (e *Executor) SetCorpusCount(n int) {
	e.corpusCount.Store(int64(n))
}

func (e *Executor) CorpusCount() int {
	return int(e.corpusCount.Load())
}

func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	start := time.Now()
	result := &SearchResult{
		Query:   plan.RawQuery,
		Terms:   plan.Keys(),
		Results: []Hit{},
	}
	if len(plan.Terms) == 0 {
		return result, nil
	}

	ctx, span := tracing.Start(ctx, "search")
	span.SetAttr("terms", len(plan.Terms))
	err := resilience.WithTimeout(ctx, e.timeout, "search", func(ctx context.Context) error {
		return e.execute(ctx, plan, limit, result)
	})
	span.End()
	span.Log(ctx, e.logger)
	if err != nil {
		e.observe(err, 0)
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: query %q: %w", apperrors.ErrTimeout, plan.RawQuery, err)
		}
		return nil, fmt.Errorf("executing query %q: %w", plan.RawQuery, err)
	}

	e.observe(nil, len(result.Results))
	e.logger.Info("query executed",
		"query", plan.RawQuery,
		"terms", result.Terms,
		"total_hits", result.TotalHits,
		"results", len(result.Results),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (e *Executor) execute(ctx context.Context, plan *parser.QueryPlan, limit int, result *SearchResult) error {
	_, fetch := tracing.Start(ctx, "fetch_postings")
	postings := make(index.TermPostings, len(plan.Terms))
	termStats := make(map[string]int)
	for _, term := range plan.Terms {
		if err := ctx.Err(); err != nil {
			fetch.End()
			return err
		}
		docs := e.index.Search(term.Term)[term.Term]
		if len(docs) == 0 {
			continue
		}
		postings[term.Term] = docs
		termStats[term.Term] = len(docs)
	}
	fetch.SetAttr("matched_terms", len(postings))
	fetch.End()

	_, rank := tracing.Start(ctx, "rank")
	scores := ranker.Rank(postings, e.CorpusCount())
	top := merger.TopK(scores, limit)
	rank.SetAttr("candidates", len(scores))
	rank.End()

	_, resolve := tracing.Start(ctx, "resolve")
	defer resolve.End()
	hits := make([]Hit, 0, len(top))
	for _, doc := range top {
		if err := ctx.Err(); err != nil {
			return err
		}
		hit := Hit{DocID: doc.DocID, Score: doc.Score, OriginalID: -1}
		if loc, ok := e.index.DocumentLocation(doc.DocID); ok {
			hit.FilePath = loc.FilePath
			hit.OriginalID = loc.OriginalID
		} else {
			e.logger.Warn("document location missing", "doc_id", doc.DocID)
		}
		hits = append(hits, hit)
	}

	result.TotalHits = len(scores)
	result.Results = hits
	result.TermStats = termStats
	return nil
}

func (e *Executor) observe(err error, returned int) {
	if e.metrics == nil {
		return
	}
	resultType := "hit"
	switch {
	case err != nil:
		resultType = "error"
	case returned == 0:
		resultType = "zero_result"
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	if err == nil {
		e.metrics.SearchResultsCount.Observe(float64(returned))
	}
}
