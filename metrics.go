package audiotab

import (
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olekukonko/tablewriter"
)

// LatencyBuckets defines the latency histogram buckets in microseconds.
// Buckets cover from 10us to 1s with logarithmic spacing, matching the
// scale of a single node's Process call rather than a full I/O operation.
var LatencyBuckets = []uint64{
	10,        // 10us
	50,        // 50us
	100,       // 100us
	500,       // 500us
	1_000,     // 1ms
	10_000,    // 10ms
	100_000,   // 100ms
	1_000_000, // 1s
}

const numLatencyBuckets = 8

// NodeMetrics tracks the per-node counters named by the metrics registry:
// frames processed, errors, and cumulative/sample-count latency in
// microseconds, plus a latency histogram kept as an enrichment for the
// Pipeline Monitor report.
type NodeMetrics struct {
	FramesProcessed atomic.Uint64
	ErrorsCount     atomic.Uint64
	TotalLatencyUs  atomic.Uint64
	LatencySamples  atomic.Uint64

	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewNodeMetrics creates a metrics instance with its start time set to now.
func NewNodeMetrics() *NodeMetrics {
	m := &NodeMetrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordFrame records one Process invocation's outcome and latency. A
// successful call bumps FramesProcessed and feeds the latency
// accumulators; a failed call bumps only ErrorsCount, so the two counters
// partition invocations by outcome.
func (m *NodeMetrics) RecordFrame(latencyUs uint64, success bool) {
	if !success {
		m.ErrorsCount.Add(1)
		return
	}
	m.FramesProcessed.Add(1)
	m.TotalLatencyUs.Add(latencyUs)
	m.LatencySamples.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyUs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the node's metrics as no longer accumulating uptime.
func (m *NodeMetrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// NodeMetricsSnapshot is a point-in-time read of a node's metrics.
type NodeMetricsSnapshot struct {
	NodeID           string
	FramesProcessed  uint64
	ErrorsCount      uint64
	AvgLatencyUs     uint64
	LatencyP50Us     uint64
	LatencyP99Us     uint64
	ErrorRate        float64
	UptimeNs         uint64
	LatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot produces a NodeMetricsSnapshot for the given node id.
func (m *NodeMetrics) Snapshot(nodeID string) NodeMetricsSnapshot {
	snap := NodeMetricsSnapshot{
		NodeID:          nodeID,
		FramesProcessed: m.FramesProcessed.Load(),
		ErrorsCount:     m.ErrorsCount.Load(),
	}

	samples := m.LatencySamples.Load()
	if samples > 0 {
		snap.AvgLatencyUs = m.TotalLatencyUs.Load() / samples
		snap.LatencyP50Us = m.calculatePercentile(0.50)
		snap.LatencyP99Us = m.calculatePercentile(0.99)
	}
	if total := snap.FramesProcessed + snap.ErrorsCount; total > 0 {
		snap.ErrorRate = float64(snap.ErrorsCount) / float64(total) * 100.0
	}

	start := m.StartTime.Load()
	if stop := m.StopTime.Load(); stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}
	return snap
}

func (m *NodeMetrics) calculatePercentile(percentile float64) uint64 {
	total := m.LatencySamples.Load()
	if total == 0 {
		return 0
	}
	targetCount := uint64(float64(total) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters, useful between test runs.
func (m *NodeMetrics) Reset() {
	m.FramesProcessed.Store(0)
	m.ErrorsCount.Store(0)
	m.TotalLatencyUs.Store(0)
	m.LatencySamples.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// MetricsRegistry owns one NodeMetrics per node id in a pipeline.
type MetricsRegistry struct {
	mu    sync.RWMutex
	nodes map[string]*NodeMetrics
}

// NewMetricsRegistry returns an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{nodes: make(map[string]*NodeMetrics)}
}

// For returns the NodeMetrics for nodeID, creating it on first use.
func (r *MetricsRegistry) For(nodeID string) *NodeMetrics {
	r.mu.RLock()
	m, ok := r.nodes[nodeID]
	r.mu.RUnlock()
	if ok {
		return m
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.nodes[nodeID]; ok {
		return m
	}
	m = NewNodeMetrics()
	r.nodes[nodeID] = m
	return m
}

// Snapshot returns a snapshot for every registered node, ordered by
// insertion is not guaranteed; callers needing stable order should sort by
// NodeID.
func (r *MetricsRegistry) Snapshot() []NodeMetricsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NodeMetricsSnapshot, 0, len(r.nodes))
	for id, m := range r.nodes {
		out = append(out, m.Snapshot(id))
	}
	return out
}

// PipelineMonitor renders a textual per-node report: one row per
// registered node with frames processed, errors, and mean latency.
type PipelineMonitor struct {
	registry *MetricsRegistry
}

// NewPipelineMonitor wraps a MetricsRegistry for reporting.
func NewPipelineMonitor(registry *MetricsRegistry) *PipelineMonitor {
	return &PipelineMonitor{registry: registry}
}

// Report writes a table of per-node metrics to w.
func (p *PipelineMonitor) Report(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Node", "Frames", "Errors", "Error Rate %", "Avg Latency us", "P99 Latency us"})

	for _, snap := range p.registry.Snapshot() {
		table.Append([]string{
			snap.NodeID,
			strconv.FormatUint(snap.FramesProcessed, 10),
			strconv.FormatUint(snap.ErrorsCount, 10),
			strconv.FormatFloat(snap.ErrorRate, 'f', 2, 64),
			strconv.FormatUint(snap.AvgLatencyUs, 10),
			strconv.FormatUint(snap.LatencyP99Us, 10),
		})
	}
	table.Render()
}

// Observer allows pluggable per-frame metrics collection, mirroring the
// resilience wrapper's timing hook.
type Observer interface {
	ObserveFrame(latencyUs uint64, success bool)
}

// NoOpObserver discards all observations.
type NoOpObserver struct{}

func (NoOpObserver) ObserveFrame(uint64, bool) {}

// MetricsObserver records observations into a NodeMetrics.
type MetricsObserver struct {
	metrics *NodeMetrics
}

// NewMetricsObserver wraps a NodeMetrics as an Observer.
func NewMetricsObserver(m *NodeMetrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveFrame(latencyUs uint64, success bool) {
	o.metrics.RecordFrame(latencyUs, success)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
