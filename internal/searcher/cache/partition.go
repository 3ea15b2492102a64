// Package cache pages master and document-map partitions into memory on
// demand and evicts the least recently used ones when the memory gauge
// reports that a load would push usage past a threshold.
package cache

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/memory"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/internal/partition"
	apperrors "github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/metrics"
)

const (
	DefaultTermThreshold = 0.60
	DefaultTermInflation = 2.0
	DefaultDocThreshold  = 0.50
	DefaultDocInflation  = 2.5
	DefaultMaxEvictions  = 64
)

// Store is the read side of partition.Store.
type Store interface {
	List(kinds ...partition.Kind) ([]partition.Entry, error)
	Stat(n partition.Name) (int64, bool, error)
	ReadTerms(n partition.Name) (index.TermPostings, error)
	ReadDocMap(n partition.Name) (index.DocMap, error)
}

type Options struct {
	TermThreshold float64
	TermInflation float64
	DocThreshold  float64
	DocInflation  float64
	// MaxEvictions bounds the evictions attempted for a single load. When
	// they do not free enough memory the partition is loaded anyway.
	MaxEvictions int
	Metrics      *metrics.Metrics
}

type entry[V any] struct {
	name       partition.Name
	lastAccess uint64
	resident   bool
	content    V
}

type catalog[K comparable, V any] struct {
	label      string
	generation uint64
	threshold  float64
	inflation float64
	entries   map[K]*entry[V]

	hits, misses, loads, evictions int64
}

func newCatalog[K comparable, V any](label string, threshold, inflation float64) *catalog[K, V] {
	return &catalog[K, V]{
		label:     label,
		threshold: threshold,
		inflation: inflation,
		entries:   make(map[K]*entry[V]),
	}
}

func (c *catalog[K, V]) resident() int {
	n := 0
	for _, e := range c.entries {
		if e.resident {
			n++
		}
	}
	return n
}

// CatalogStats describes one catalog of the cache.
type CatalogStats struct {
	Partitions int   `json:"partitions"`
	Resident   int   `json:"resident"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Loads      int64 `json:"loads"`
	Evictions  int64 `json:"evictions"`
}

type Stats struct {
	Terms        CatalogStats `json:"terms"`
	Documents    CatalogStats `json:"documents"`
	UsedFraction float64      `json:"used_fraction"`
}

// PartitionCache serves term postings from master partitions and document
// locations from docMap partitions. Content it returns is shared with the
// cache and must not be modified.
type PartitionCache struct {
	store        Store
	gauge        memory.Gauge
	maxEvictions int
	metrics      *metrics.Metrics
	logger       *slog.Logger
	group        singleflight.Group

	mu       sync.Mutex
	clock    uint64
	reloads  uint64
	lengths  []int
	terms    *catalog[string, index.TermPostings]
	docs     *catalog[int, index.DocMap]
	ceilings []int
	opts     Options
}

func New(store Store, gauge memory.Gauge, opts Options) (*PartitionCache, error) {
	if opts.TermThreshold <= 0 {
		opts.TermThreshold = DefaultTermThreshold
	}
	if opts.TermInflation <= 0 {
		opts.TermInflation = DefaultTermInflation
	}
	if opts.DocThreshold <= 0 {
		opts.DocThreshold = DefaultDocThreshold
	}
	if opts.DocInflation <= 0 {
		opts.DocInflation = DefaultDocInflation
	}
	if opts.MaxEvictions <= 0 {
		opts.MaxEvictions = DefaultMaxEvictions
	}
	c := &PartitionCache{
		store:        store,
		gauge:        gauge,
		maxEvictions: opts.MaxEvictions,
		metrics:      opts.Metrics,
		logger:       slog.Default().With("component", "partition-cache"),
		opts:         opts,
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload rescans the store for master and docMap partitions and drops every
// resident partition. It is used after a rebuild replaces the index.
func (c *PartitionCache) Reload() error {
	masters, err := c.store.List(partition.KindMaster)
	if err != nil {
		return fmt.Errorf("scanning master partitions: %w", err)
	}
	docMaps, err := c.store.List(partition.KindDocMap)
	if err != nil {
		return fmt.Errorf("scanning document maps: %w", err)
	}

	terms := newCatalog[string, index.TermPostings]("term", c.opts.TermThreshold, c.opts.TermInflation)
	seen := make(map[int]bool)
	var lengths []int
	for _, m := range masters {
		terms.entries[m.Name.Key] = &entry[index.TermPostings]{name: m.Name}
		if l := m.Name.Level(); !seen[l] {
			seen[l] = true
			lengths = append(lengths, l)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(lengths)))

	docs := newCatalog[int, index.DocMap]("doc", c.opts.DocThreshold, c.opts.DocInflation)
	ceilings := make([]int, 0, len(docMaps))
	for _, d := range docMaps {
		docs.entries[d.Name.Seq] = &entry[index.DocMap]{name: d.Name}
		ceilings = append(ceilings, d.Name.Seq)
	}
	sort.Ints(ceilings)

	c.mu.Lock()
	c.reloads++
	terms.generation, docs.generation = c.reloads, c.reloads
	c.terms, c.docs = terms, docs
	c.lengths, c.ceilings = lengths, ceilings
	c.mu.Unlock()
	c.observeResident()

	c.logger.Info("partition catalog loaded",
		"masters", len(masters),
		"doc_maps", len(docMaps),
		"key_lengths", lengths,
	)
	return nil
}

// Search returns the postings of term, or an empty map when the term is not
// indexed or its partition cannot be read.
func (c *PartitionCache) Search(term string) index.TermPostings {
	out := make(index.TermPostings)
	c.mu.Lock()
	key, ok := c.bucketFor(term)
	terms := c.terms
	c.mu.Unlock()
	if !ok {
		return out
	}

	content, err := load(c, terms, key, c.store.ReadTerms)
	if err != nil {
		c.logger.Error("term partition unavailable", "bucket", key, "error", err)
		return out
	}
	if postings, ok := content[term]; ok {
		out[term] = postings
	}
	return out
}

// DocumentLocation resolves an internal document ID to its origin.
func (c *PartitionCache) DocumentLocation(docID int) (index.DocLocation, bool) {
	c.mu.Lock()
	i := sort.SearchInts(c.ceilings, docID+1)
	if docID < 0 || i == len(c.ceilings) {
		c.mu.Unlock()
		return index.DocLocation{}, false
	}
	ceiling := c.ceilings[i]
	docs := c.docs
	c.mu.Unlock()

	content, err := load(c, docs, ceiling, c.store.ReadDocMap)
	if err != nil {
		c.logger.Error("document map unavailable", "ceiling", ceiling, "error", err)
		return index.DocLocation{}, false
	}
	loc, ok := content[docID]
	return loc, ok
}

// bucketFor finds the master bucket of term, trying the longest key length
// present first. Callers hold c.mu.
func (c *PartitionCache) bucketFor(term string) (string, bool) {
	for _, l := range c.lengths {
		key := partition.BucketKey(term, l)
		if _, ok := c.terms.entries[key]; ok {
			return key, true
		}
	}
	return "", false
}

// load returns the content of key, reading it from disk on a miss. Concurrent
// misses for the same key of the same catalog generation share one read.
func load[K comparable, V any](c *PartitionCache, cat *catalog[K, V], key K, read func(partition.Name) (V, error)) (V, error) {
	var zero V
	if v, ok := touch(c, cat, key, true); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(fmt.Sprintf("%s:%d:%v", cat.label, cat.generation, key), func() (any, error) {
		if v, ok := touch(c, cat, key, false); ok {
			return v, nil
		}
		c.mu.Lock()
		e := cat.entries[key]
		c.mu.Unlock()

		size, exists, err := c.store.Stat(e.name)
		if err != nil {
			return zero, err
		}
		if !exists {
			return zero, nil
		}
		makeRoom(c, cat, size)

		content, err := read(e.name)
		if err != nil {
			return zero, err
		}
		c.mu.Lock()
		c.clock++
		e.content = content
		e.resident = true
		e.lastAccess = c.clock
		cat.loads++
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.PartitionCacheLoads.WithLabelValues(cat.label).Inc()
		}
		c.observeResident()
		c.logger.Debug("partition loaded", "partition", e.name.String(), "bytes", size)
		return content, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(V), nil
}

// touch returns the resident content of key and refreshes its access tick.
// With count set the lookup is recorded as a hit or a miss.
func touch[K comparable, V any](c *PartitionCache, cat *catalog[K, V], key K, count bool) (V, bool) {
	c.mu.Lock()
	e := cat.entries[key]
	hit := e != nil && e.resident
	var v V
	if hit {
		c.clock++
		e.lastAccess = c.clock
		v = e.content
	}
	if count {
		if hit {
			cat.hits++
		} else {
			cat.misses++
		}
	}
	c.mu.Unlock()

	if count && c.metrics != nil {
		result := "miss"
		if hit {
			result = "hit"
		}
		c.metrics.PartitionCacheRequests.WithLabelValues(cat.label, result).Inc()
	}
	return v, hit
}

// makeRoom evicts least recently used partitions of cat until loading size
// more bytes keeps projected usage under the catalog threshold, no resident
// partition is left, or the eviction bound is reached.
func makeRoom[K comparable, V any](c *PartitionCache, cat *catalog[K, V], size int64) {
	projected := c.project(cat.inflation, size)
	for i := 0; projected >= cat.threshold && i < c.maxEvictions; i++ {
		if !evictOldest(c, cat) {
			break
		}
		c.gauge.Reclaim()
		projected = c.project(cat.inflation, size)
	}
	if projected >= cat.threshold {
		c.logger.Warn("loading partition above memory threshold",
			"catalog", cat.label,
			"projected", projected,
			"threshold", cat.threshold,
			"error", apperrors.ErrMemoryPressure,
		)
	}
}

func evictOldest[K comparable, V any](c *PartitionCache, cat *catalog[K, V]) bool {
	c.mu.Lock()
	var victim *entry[V]
	for _, e := range cat.entries {
		if e.resident && (victim == nil || e.lastAccess < victim.lastAccess) {
			victim = e
		}
	}
	if victim == nil {
		c.mu.Unlock()
		return false
	}
	var zero V
	victim.content = zero
	victim.resident = false
	cat.evictions++
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.PartitionCacheEvictions.WithLabelValues(cat.label).Inc()
	}
	c.observeResident()
	c.logger.Debug("partition evicted", "partition", victim.name.String())
	return true
}

func (c *PartitionCache) project(inflation float64, size int64) float64 {
	used := c.gauge.UsedFraction()
	ceiling := c.gauge.MaxAmount()
	if ceiling == 0 {
		return used
	}
	return used + float64(size)*inflation/float64(ceiling)
}

func (c *PartitionCache) observeResident() {
	if c.metrics == nil {
		return
	}
	c.mu.Lock()
	terms, docs := c.terms.resident(), c.docs.resident()
	c.mu.Unlock()
	c.metrics.PartitionCacheResident.WithLabelValues("term").Set(float64(terms))
	c.metrics.PartitionCacheResident.WithLabelValues("doc").Set(float64(docs))
}

// ResidentTerms lists the bucket keys of the term partitions held in memory.
func (c *PartitionCache) ResidentTerms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []string
	for k, e := range c.terms.entries {
		if e.resident {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// ResidentDocMaps lists the ceilings of the docMap partitions held in memory.
func (c *PartitionCache) ResidentDocMaps() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []int
	for k, e := range c.docs.entries {
		if e.resident {
			keys = append(keys, k)
		}
	}
	sort.Ints(keys)
	return keys
}

func (c *PartitionCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Terms:        catalogStats(c.terms),
		Documents:    catalogStats(c.docs),
		UsedFraction: c.gauge.UsedFraction(),
	}
}

// Ready reports whether any master partition is known.
func (c *PartitionCache) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.terms.entries) > 0
}

func catalogStats[K comparable, V any](cat *catalog[K, V]) CatalogStats {
	return CatalogStats{
		Partitions: len(cat.entries),
		Resident:   cat.resident(),
		Hits:       cat.hits,
		Misses:     cat.misses,
		Loads:      cat.loads,
		Evictions:  cat.evictions,
	}
}
