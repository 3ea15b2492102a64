package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/stats"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/metrics"
)

type SearchExecutor interface {
	Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error)
	CorpusCount() int
}

// DocumentIndex is the document side of the partition cache.
type DocumentIndex interface {
	DocumentLocation(docID int) (index.DocLocation, bool)
	Stats() cache.Stats
}

// QueryCache is the optional result cache in front of the executor.
type QueryCache interface {
	GetOrCompute(ctx context.Context, terms []string, limit int, computeFn func() (*executor.SearchResult, error)) (*executor.SearchResult, bool, error)
	Invalidate(ctx context.Context) (int64, error)
	Stats() (hits, misses int64)
}

// CorpusSource returns the statistics of the index being served.
type CorpusSource func() stats.Snapshot

type Options struct {
	DefaultLimit int
	MaxResults   int
	Metrics      *metrics.Metrics
}

type Handler struct {
	parser       *parser.Parser
	executor     SearchExecutor
	documents    DocumentIndex
	corpus       CorpusSource
	cache        QueryCache
	defaultLimit int
	maxResults   int
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// New returns the search API handler. queryCache may be nil.
func New(p *parser.Parser, exec SearchExecutor, docs DocumentIndex, corpus CorpusSource, queryCache QueryCache, opts Options) *Handler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxResults < opts.DefaultLimit {
		opts.MaxResults = opts.DefaultLimit
	}
	return &Handler{
		parser:       p,
		executor:     exec,
		documents:    docs,
		corpus:       corpus,
		cache:        queryCache,
		defaultLimit: opts.DefaultLimit,
		maxResults:   opts.MaxResults,
		metrics:      opts.Metrics,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.Document)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(parsed, h.maxResults)
	}

	plan := h.parser.Parse(query)
	if len(plan.Terms) == 0 {
		h.writeJSON(w, http.StatusOK, &executor.SearchResult{
			Query:   query,
			Terms:   []string{},
			Results: []executor.Hit{},
		})
		return
	}

	var result *executor.SearchResult
	var err error
	cacheStatus := "disabled"
	if h.cache != nil {
		var hit bool
		result, hit, err = h.cache.GetOrCompute(ctx, plan.Keys(), limit, func() (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, plan, limit)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		result, err = h.executor.Execute(ctx, plan, limit)
	}
	if err != nil {
		log.Error("search failed", "query", query, "error", err)
		h.writeError(w, err)
		return
	}
	if result.Query != query {
		// Cached responses carry the query text that produced them.
		copied := *result
		copied.Query = query
		result = &copied
	}

	elapsed := time.Since(start)
	if h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	}
	log.Info("search completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache", cacheStatus,
		"latency_ms", elapsed.Milliseconds(),
	)
	w.Header().Set("X-Cache", strings.ToUpper(cacheStatus))
	h.writeJSON(w, http.StatusOK, result)
}

type documentResponse struct {
	DocID int `json:"doc_id"`
	index.DocLocation
}

func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 0 {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid document id %q", r.PathValue("id")))
		return
	}
	loc, ok := h.documents.DocumentLocation(id)
	if !ok {
		h.writeError(w, fmt.Errorf("%w: %d", apperrors.ErrDocumentNotFound, id))
		return
	}
	h.writeJSON(w, http.StatusOK, documentResponse{DocID: id, DocLocation: loc})
}

type statsResponse struct {
	Corpus stats.Snapshot `json:"corpus"`
	Cache  cache.Stats    `json:"cache"`
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, statsResponse{
		Corpus: h.corpus(),
		Cache:  h.documents.Stats(),
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	resp := map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	}
	if b, ok := h.cache.(interface{ BreakerState() string }); ok {
		resp["breaker"] = b.BreakerState()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError reports err with the status its chain maps to. Internal causes
// are not exposed.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		message = appErr.Message
	case status == http.StatusInternalServerError:
		message = "search failed"
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
