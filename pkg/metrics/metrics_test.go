package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistryRegistersAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.DocsIndexedTotal.Add(3)
	m.PartitionCacheEvictions.WithLabelValues("term").Inc()
	m.ObserveMemory(100, 1000, 400)

	require.Equal(t, 3.0, testutil.ToFloat64(m.DocsIndexedTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PartitionCacheEvictions.WithLabelValues("term")))
	require.Equal(t, 400.0, testutil.ToFloat64(m.MemoryPeakBytes))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestObserveMemoryNilSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() { m.ObserveMemory(1, 2, 3) })
}
