package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T, readings ...uint64) *Monitor {
	t.Helper()
	m, err := NewMonitor(Options{Source: SourceHeap, CeilingBytes: 1000, SampleInterval: time.Millisecond})
	require.NoError(t, err)
	var i atomic.Int64
	m.read = func() (uint64, error) {
		n := int(i.Add(1)) - 1
		if n >= len(readings) {
			n = len(readings) - 1
		}
		return readings[n], nil
	}
	m.peak.Store(0)
	return m
}

func TestMonitorDerivedAmounts(t *testing.T) {
	m := newTestMonitor(t, 250)
	require.NoError(t, m.Refresh())

	require.Equal(t, uint64(250), m.UsedAmount())
	require.Equal(t, uint64(1000), m.MaxAmount())
	require.Equal(t, uint64(750), m.FreeAmount())
	require.InDelta(t, 0.25, m.UsedFraction(), 1e-9)
}

func TestMonitorFreeNeverUnderflows(t *testing.T) {
	m := newTestMonitor(t, 1500)
	require.NoError(t, m.Refresh())
	require.Zero(t, m.FreeAmount())
	require.Greater(t, m.UsedFraction(), 1.0)
}

func TestMonitorTracksPeak(t *testing.T) {
	m := newTestMonitor(t, 100, 900, 300)
	for i := 0; i < 3; i++ {
		require.NoError(t, m.Refresh())
	}
	require.Equal(t, uint64(300), m.UsedAmount())
	require.Equal(t, uint64(900), m.PeakAmount())
}

func TestMonitorRefreshError(t *testing.T) {
	m := newTestMonitor(t, 10)
	m.read = func() (uint64, error) { return 0, errors.New("no procfs") }
	require.Error(t, m.Refresh())
}

func TestMonitorBackgroundSampling(t *testing.T) {
	m := newTestMonitor(t, 10, 20, 30, 40)
	var seen atomic.Int64
	m.onSample = func(Snapshot) { seen.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	m.Start(ctx) // second start is ignored

	require.Eventually(t, func() bool { return seen.Load() >= 4 }, time.Second, time.Millisecond)
	m.Stop()
	m.Stop()

	require.Equal(t, uint64(40), m.UsedAmount())
	require.Equal(t, uint64(40), m.Snapshot().Peak)
}

func TestMonitorStopsOnContextCancel(t *testing.T) {
	m := newTestMonitor(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()

	select {
	case <-m.done:
	case <-time.After(time.Second):
		t.Fatal("sampler did not exit after cancel")
	}
}

func TestRealHeapSourceReportsUsage(t *testing.T) {
	m, err := NewMonitor(Options{Source: SourceHeap})
	require.NoError(t, err)
	require.NotZero(t, m.UsedAmount())
	require.NotZero(t, m.MaxAmount())
	m.Reclaim()
	require.GreaterOrEqual(t, m.Snapshot().Samples, uint64(2))
}

func TestUnknownSource(t *testing.T) {
	_, err := NewMonitor(Options{Source: "swap"})
	require.Error(t, err)
}
