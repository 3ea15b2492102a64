// Package memory samples process memory in the background and exposes the
// latest reading to the components that adapt to it: the ingestion producer
// sizes its batches, the merger decides when to spill, and the search cache
// decides when to evict.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"runtime/debug"
	"runtime/metrics"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/procfs"
)

// Source selects what "used" means.
type Source string

const (
	// SourceHeap reports live Go heap objects.
	SourceHeap Source = "heap"
	// SourceRSS reports the resident set size of the process.
	SourceRSS Source = "rss"
)

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// Gauge is the read side of the monitor consumed by the adaptive components.
type Gauge interface {
	UsedAmount() uint64
	FreeAmount() uint64
	MaxAmount() uint64
	UsedFraction() float64
	// Reclaim asks the runtime to release memory. It is a hint.
	Reclaim()
}

// Snapshot is a point-in-time copy of the monitor state.
type Snapshot struct {
	Used     uint64  `json:"used_bytes"`
	Max      uint64  `json:"max_bytes"`
	Peak     uint64  `json:"peak_bytes"`
	Fraction float64 `json:"used_fraction"`
	Samples  uint64  `json:"samples"`
}

// Options configures a Monitor.
type Options struct {
	Source Source
	// CeilingBytes overrides ceiling detection when non-zero.
	CeilingBytes   uint64
	SampleInterval time.Duration
	// OnSample is called after every background sample.
	OnSample func(Snapshot)
}

// Monitor samples memory usage on a fixed interval. Readers never block the
// sampler; all state is held in atomics.
type Monitor struct {
	used    atomic.Uint64
	max     uint64
	peak    atomic.Uint64
	samples atomic.Uint64

	read     func() (uint64, error)
	interval time.Duration
	onSample func(Snapshot)
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewMonitor resolves the memory ceiling and takes an initial sample.
func NewMonitor(opts Options) (*Monitor, error) {
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = 10 * time.Millisecond
	}
	m := &Monitor{
		interval: opts.SampleInterval,
		onSample: opts.OnSample,
		logger:   slog.Default().With("component", "memory-monitor", "source", string(opts.Source)),
	}
	switch opts.Source {
	case SourceRSS:
		proc, err := procfs.Self()
		if err != nil {
			return nil, fmt.Errorf("opening procfs for self: %w", err)
		}
		m.read = func() (uint64, error) {
			stat, err := proc.Stat()
			if err != nil {
				return 0, fmt.Errorf("reading process stat: %w", err)
			}
			return uint64(stat.ResidentMemory()), nil
		}
	case SourceHeap, "":
		m.read = readHeap
	default:
		return nil, fmt.Errorf("unknown memory source %q", opts.Source)
	}

	m.max = resolveCeiling(opts.CeilingBytes)
	if err := m.Refresh(); err != nil {
		return nil, err
	}
	m.logger.Info("memory monitor ready",
		"max_bytes", m.max,
		"used_bytes", m.UsedAmount(),
		"interval", m.interval,
	)
	return m, nil
}

// Start launches the background sampler. It stops when ctx is cancelled or
// Stop is called. Starting a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.running = true

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Refresh(); err != nil {
					m.logger.Warn("memory sample failed", "error", err)
					continue
				}
				if m.onSample != nil {
					m.onSample(m.Snapshot())
				}
			}
		}
	}(m.done)
}

// Stop halts the sampler and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.cancel()
	done := m.done
	m.running = false
	m.mu.Unlock()
	<-done
	m.logger.Info("memory monitor stopped", "peak_bytes", m.PeakAmount(), "samples", m.samples.Load())
}

// Refresh samples synchronously.
func (m *Monitor) Refresh() error {
	used, err := m.read()
	if err != nil {
		return err
	}
	m.used.Store(used)
	m.samples.Add(1)
	for {
		peak := m.peak.Load()
		if used <= peak || m.peak.CompareAndSwap(peak, used) {
			break
		}
	}
	return nil
}

// Reclaim forces a collection and resamples so callers see its effect.
func (m *Monitor) Reclaim() {
	runtime.GC()
	if err := m.Refresh(); err != nil {
		m.logger.Warn("memory sample after reclaim failed", "error", err)
	}
}

func (m *Monitor) UsedAmount() uint64 { return m.used.Load() }

func (m *Monitor) MaxAmount() uint64 { return m.max }

func (m *Monitor) PeakAmount() uint64 { return m.peak.Load() }

func (m *Monitor) FreeAmount() uint64 {
	used := m.used.Load()
	if used >= m.max {
		return 0
	}
	return m.max - used
}

func (m *Monitor) UsedFraction() float64 {
	if m.max == 0 {
		return 1
	}
	return float64(m.used.Load()) / float64(m.max)
}

func (m *Monitor) Snapshot() Snapshot {
	return Snapshot{
		Used:     m.UsedAmount(),
		Max:      m.max,
		Peak:     m.PeakAmount(),
		Fraction: m.UsedFraction(),
		Samples:  m.samples.Load(),
	}
}

func readHeap() (uint64, error) {
	sample := []metrics.Sample{{Name: heapObjectsMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0, fmt.Errorf("runtime metric %s unsupported", heapObjectsMetric)
	}
	return sample[0].Value.Uint64(), nil
}

// resolveCeiling picks the first available of: the configured ceiling, the
// runtime soft memory limit, host MemTotal, and the runtime's own reservation.
func resolveCeiling(configured uint64) uint64 {
	if configured > 0 {
		return configured
	}
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
		return uint64(limit)
	}
	if fs, err := procfs.NewDefaultFS(); err == nil {
		if info, err := fs.Meminfo(); err == nil && info.MemTotal != nil && *info.MemTotal > 0 {
			return *info.MemTotal * 1024
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys
}
