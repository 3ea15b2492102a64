// Package querycache stores complete search responses in Redis so repeated
// queries skip ranking. Keys depend only on the normalized query terms and
// the limit, so "Dogs cat" and "cat dog" share an entry. Every entry is
// dropped when a new index is loaded.
package querycache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/resilience"
)

const keyPrefix = "search:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a cache writing entries with the given TTL. Store failures
// trip a circuit breaker so an unreachable Redis degrades to cache misses
// instead of slowing every query.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		breaker: resilience.NewCircuitBreaker("query-cache", resilience.CircuitBreakerConfig{}),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, terms []string, limit int) (*executor.SearchResult, bool) {
	key := BuildKey(terms, limit)
	var data []byte
	var found bool
	err := c.breaker.Execute(func() error {
		var err error
		data, found, err = c.store.Get(ctx, key)
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	if !found {
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.QueryCacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "terms", terms, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, terms []string, limit int, result *executor.SearchResult) {
	key := BuildKey(terms, limit)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached response for terms and limit, or runs
// computeFn once for all concurrent callers asking for the same key.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	terms []string,
	limit int,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, terms, limit); ok {
		return result, true, nil
	}
	key := BuildKey(terms, limit)
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, terms, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops every cached response.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating query cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BreakerState reports the circuit state guarding the store.
func (c *QueryCache) BreakerState() string {
	return c.breaker.GetState().String()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.QueryCacheMissesTotal.Inc()
	}
}

// BuildKey derives the Redis key for a set of index terms and a limit.
// Term order and duplicates do not matter.
func BuildKey(terms []string, limit int) string {
	sorted := append([]string(nil), terms...)
	sort.Strings(sorted)
	uniq := make([]string, 0, len(sorted))
	for _, t := range sorted {
		if len(uniq) > 0 && uniq[len(uniq)-1] == t {
			continue
		}
		uniq = append(uniq, t)
	}
	raw := "OR|" + strings.Join(uniq, ",") + "|limit=" + strconv.Itoa(limit)
	return fmt.Sprintf("%s%016x", keyPrefix, xxhash.Sum64String(raw))
}
