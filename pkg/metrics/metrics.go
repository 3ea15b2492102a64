// Package metrics defines the Prometheus metric collectors used by the
// indexer and searcher and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for both binaries. Components take
// a *Metrics that may be nil, in which case they record nothing.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SearchQueriesTotal    *prometheus.CounterVec
	SearchLatency         *prometheus.HistogramVec
	SearchResultsCount    prometheus.Histogram
	QueryCacheHitsTotal   prometheus.Counter
	QueryCacheMissesTotal prometheus.Counter

	DocsIndexedTotal      prometheus.Counter
	BatchesTotal          prometheus.Counter
	BatchDuration         prometheus.Histogram
	BuildRemainingSeconds prometheus.Gauge
	PartitionFlushesTotal *prometheus.CounterVec
	PartitionBytesWritten *prometheus.CounterVec
	MergeSpillsTotal      prometheus.Counter
	MastersWrittenTotal   prometheus.Counter

	MemoryUsedBytes prometheus.Gauge
	MemoryMaxBytes  prometheus.Gauge
	MemoryPeakBytes prometheus.Gauge

	PartitionCacheRequests  *prometheus.CounterVec
	PartitionCacheLoads     *prometheus.CounterVec
	PartitionCacheEvictions *prometheus.CounterVec
	PartitionCacheResident  *prometheus.GaugeVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		QueryCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "query_cache_hits_total",
				Help: "Total number of query result cache hits.",
			},
		),
		QueryCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "query_cache_misses_total",
				Help: "Total number of query result cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		BatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_batches_total",
				Help: "Total ingestion batches indexed and flushed.",
			},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_batch_duration_seconds",
				Help:    "Wall time to tokenize, index and flush one batch.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		BuildRemainingSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_build_remaining_seconds",
				Help: "Estimated time left in the build based on the corpus size hint.",
			},
		),
		PartitionFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partition_flushes_total",
				Help: "Total partial partition writes by status.",
			},
			[]string{"status"},
		),
		PartitionBytesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partition_bytes_written_total",
				Help: "Bytes written to partition files by partition kind.",
			},
			[]string{"kind"},
		),
		MergeSpillsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "merge_spills_total",
				Help: "Times the merger spilled its accumulator to finer part partitions.",
			},
		),
		MastersWrittenTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "merge_masters_written_total",
				Help: "Master partitions written by the merger.",
			},
		),
		MemoryUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_used_bytes",
				Help: "Most recent memory sample.",
			},
		),
		MemoryMaxBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_max_bytes",
				Help: "Memory ceiling the adaptive components compare against.",
			},
		),
		MemoryPeakBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_peak_bytes",
				Help: "Highest memory sample observed.",
			},
		),
		PartitionCacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partition_cache_requests_total",
				Help: "Partition cache lookups by catalog (term, doc) and result (hit, miss).",
			},
			[]string{"catalog", "result"},
		),
		PartitionCacheLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partition_cache_loads_total",
				Help: "Partitions read from disk into the cache by catalog.",
			},
			[]string{"catalog"},
		),
		PartitionCacheEvictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partition_cache_evictions_total",
				Help: "Partitions evicted from the cache by catalog.",
			},
			[]string{"catalog"},
		),
		PartitionCacheResident: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "partition_cache_resident",
				Help: "Partitions currently held in memory by catalog.",
			},
			[]string{"catalog"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.QueryCacheHitsTotal,
		m.QueryCacheMissesTotal,
		m.DocsIndexedTotal,
		m.BatchesTotal,
		m.BatchDuration,
		m.BuildRemainingSeconds,
		m.PartitionFlushesTotal,
		m.PartitionBytesWritten,
		m.MergeSpillsTotal,
		m.MastersWrittenTotal,
		m.MemoryUsedBytes,
		m.MemoryMaxBytes,
		m.MemoryPeakBytes,
		m.PartitionCacheRequests,
		m.PartitionCacheLoads,
		m.PartitionCacheEvictions,
		m.PartitionCacheResident,
	)

	return m
}

// ObserveMemory copies a memory sample into the memory gauges.
func (m *Metrics) ObserveMemory(used, max, peak uint64) {
	if m == nil {
		return
	}
	m.MemoryUsedBytes.Set(float64(used))
	m.MemoryMaxBytes.Set(float64(max))
	m.MemoryPeakBytes.Set(float64(peak))
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
