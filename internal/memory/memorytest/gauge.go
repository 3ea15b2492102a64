// Package memorytest provides a scriptable memory.Gauge for tests.
package memorytest

import "sync"

// Gauge reports whatever the test sets. OnReclaim, when set, runs on every
// Reclaim call and may adjust the reported usage.
type Gauge struct {
	mu        sync.Mutex
	used      uint64
	max       uint64
	reclaims  int
	OnReclaim func(g *Gauge)
}

func New(used, max uint64) *Gauge {
	return &Gauge{used: used, max: max}
}

func (g *Gauge) Set(used uint64) {
	g.mu.Lock()
	g.used = used
	g.mu.Unlock()
}

func (g *Gauge) SetMax(max uint64) {
	g.mu.Lock()
	g.max = max
	g.mu.Unlock()
}

func (g *Gauge) UsedAmount() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used
}

func (g *Gauge) MaxAmount() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.max
}

func (g *Gauge) FreeAmount() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.used >= g.max {
		return 0
	}
	return g.max - g.used
}

func (g *Gauge) UsedFraction() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.max == 0 {
		return 1
	}
	return float64(g.used) / float64(g.max)
}

func (g *Gauge) Reclaim() {
	g.mu.Lock()
	g.reclaims++
	fn := g.OnReclaim
	g.mu.Unlock()
	if fn != nil {
		fn(g)
	}
}

// Reclaims returns how many times Reclaim was called.
func (g *Gauge) Reclaims() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reclaims
}
