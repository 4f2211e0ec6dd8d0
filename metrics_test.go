package audiotab

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNodeMetricsRecordFrame(t *testing.T) {
	m := NewNodeMetrics()

	snap := m.Snapshot("gain-1")
	require.Equal(t, uint64(0), snap.FramesProcessed)

	m.RecordFrame(50, true)
	m.RecordFrame(200, true)
	m.RecordFrame(10, false)

	snap = m.Snapshot("gain-1")
	require.Equal(t, uint64(2), snap.FramesProcessed)
	require.Equal(t, uint64(1), snap.ErrorsCount)
	require.InDelta(t, 33.33, snap.ErrorRate, 0.1)
	require.Equal(t, uint64(125), snap.AvgLatencyUs)
}

func TestNodeMetricsFailureLeavesFramesProcessedUnchanged(t *testing.T) {
	m := NewNodeMetrics()
	for i := 0; i < 10; i++ {
		m.RecordFrame(20, i%2 == 0)
	}

	snap := m.Snapshot("flaky")
	require.Equal(t, uint64(5), snap.FramesProcessed)
	require.Equal(t, uint64(5), snap.ErrorsCount)
	require.Equal(t, uint64(5), snap.LatencyHistogram[1])
}

func TestNodeMetricsReset(t *testing.T) {
	m := NewNodeMetrics()
	m.RecordFrame(100, true)
	m.Reset()

	snap := m.Snapshot("gain-1")
	require.Equal(t, uint64(0), snap.FramesProcessed)
	require.Equal(t, uint64(0), snap.ErrorsCount)
}

func TestMetricsRegistryForCreatesOnDemand(t *testing.T) {
	r := NewMetricsRegistry()
	a := r.For("node-a")
	b := r.For("node-a")
	require.Same(t, a, b)

	a.RecordFrame(10, true)
	snaps := r.Snapshot()
	require.Len(t, snaps, 1)
	require.Equal(t, uint64(1), snaps[0].FramesProcessed)
}

func TestPipelineMonitorReport(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.For("source").RecordFrame(100, true)
	registry.For("sink").RecordFrame(50, false)

	monitor := NewPipelineMonitor(registry)
	var buf bytes.Buffer
	monitor.Report(&buf)

	output := buf.String()
	require.Contains(t, output, "source")
	require.Contains(t, output, "sink")
}

func TestMetricsObserverRecordsToUnderlyingMetrics(t *testing.T) {
	m := NewNodeMetrics()
	obs := NewMetricsObserver(m)
	obs.ObserveFrame(42, true)

	snap := m.Snapshot("n")
	require.Equal(t, uint64(1), snap.FramesProcessed)
}

func TestNoOpObserverDoesNothing(t *testing.T) {
	var obs Observer = NoOpObserver{}
	require.NotPanics(t, func() { obs.ObserveFrame(1, true) })
}
