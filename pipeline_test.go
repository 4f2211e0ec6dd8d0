package audiotab

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func gainNodeFactory() Node {
	n := NewMockNode()
	n.Transform = func(f *Frame) *Frame {
		out := f.Clone()
		for ch := range out.Payload {
			for i := range out.Payload[ch] {
				out.Payload[ch][i] *= 2
			}
		}
		return out
	}
	return n
}

func sourceNodeFactory(frames []*Frame) func() Node {
	return func() Node {
		return &MockSourceNode{Frames: frames}
	}
}

func buildTestCatalog(frames []*Frame) *Catalog {
	c := NewCatalog()
	c.Register(NodeTypeInfo{ID: "test.source", NewInstance: sourceNodeFactory(frames)})
	c.Register(NodeTypeInfo{ID: "test.gain", NewInstance: gainNodeFactory})
	c.Register(NodeTypeInfo{ID: "test.sink", NewInstance: func() Node { return NewMockNode() }})
	return c
}

func TestPipelineFromJSONAndRun(t *testing.T) {
	frames := []*Frame{}
	for i := 0; i < 3; i++ {
		f := NewFrame(0, uint64(i+1))
		f.Payload["ch0"] = []float64{1, 2}
		frames = append(frames, f)
	}
	catalog := buildTestCatalog(frames)

	doc := []byte(`{
		"nodes": [
			{"id": "src", "type": "test.source"},
			{"id": "gain", "type": "test.gain"},
			{"id": "sink", "type": "test.sink"}
		],
		"edges": [
			{"from": "src", "to": "gain"},
			{"from": "gain", "to": "sink"}
		]
	}`)

	p, err := NewPipelineFromJSON(context.Background(), "p1", doc, catalog)
	require.NoError(t, err)
	require.Equal(t, PipelineIdle, p.State())

	require.NoError(t, p.Start(context.Background(), nil))

	require.Eventually(t, func() bool {
		return p.State() == PipelineCompleted
	}, 2*time.Second, 10*time.Millisecond)

	snap := p.Metrics().For("sink").Snapshot("sink")
	require.Equal(t, uint64(3), snap.FramesProcessed)
}

func TestPipelineEmptyGraphStartsAndStops(t *testing.T) {
	catalog := buildTestCatalog(nil)
	doc := []byte(`{"nodes": [], "edges": []}`)

	p, err := NewPipelineFromJSON(context.Background(), "p1", doc, catalog)
	require.NoError(t, err)
	require.Equal(t, PipelineIdle, p.State())

	require.NoError(t, p.Start(context.Background(), nil))
	require.NoError(t, p.Stop(context.Background()))
}

func TestPipelineRejectsMultipleSources(t *testing.T) {
	catalog := buildTestCatalog(nil)
	doc := []byte(`{
		"nodes": [
			{"id": "a", "type": "test.source"},
			{"id": "b", "type": "test.source"},
			{"id": "sink", "type": "test.sink"}
		],
		"edges": [
			{"from": "a", "to": "sink"},
			{"from": "b", "to": "sink"}
		]
	}`)

	_, err := NewPipelineFromJSON(context.Background(), "p1", doc, catalog)
	require.Error(t, err)
	require.True(t, IsCode(err, ErrCodeMultipleSources))
}

func TestPipelinePauseResume(t *testing.T) {
	catalog := buildTestCatalog(nil)

	// a source-port pipeline idles until frames are pushed, so it stays
	// Running for the duration of the lifecycle checks
	doc := []byte(`{
		"nodes": [
			{"id": "in", "type": "test.sink", "source_port": true},
			{"id": "sink", "type": "test.sink"}
		],
		"edges": [{"from": "in", "to": "sink"}]
	}`)

	p, err := NewPipelineFromJSON(context.Background(), "p1", doc, catalog)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background(), nil))

	require.NoError(t, p.Pause())
	require.Equal(t, PipelinePaused, p.State())

	require.NoError(t, p.Resume())
	require.Equal(t, PipelineRunning, p.State())

	require.NoError(t, p.Stop(context.Background()))
}

func TestPipelineInvalidTransition(t *testing.T) {
	catalog := buildTestCatalog(nil)
	doc := []byte(`{"nodes": [{"id": "sink", "type": "test.sink"}], "edges": []}`)

	p, err := NewPipelineFromJSON(context.Background(), "p1", doc, catalog)
	require.NoError(t, err)

	err = p.Resume()
	require.Error(t, err)
	require.True(t, IsCode(err, ErrCodeInvalidTransition))
}

// flakyNode fails every second Process call, for exercising error
// policies end to end.
type flakyNode struct {
	BaseNode
	calls int
}

func (f *flakyNode) Process(ctx context.Context, in *Frame) (*Frame, error) {
	f.calls++
	if f.calls%2 == 0 {
		return nil, errors.New("intermittent failure")
	}
	return in, nil
}

func TestPipelineSkipFramePolicyDropsFailedFrames(t *testing.T) {
	frames := make([]*Frame, 10)
	for i := range frames {
		f := NewFrame(0, uint64(i+1))
		f.Payload["ch0"] = []float64{1}
		frames[i] = f
	}

	catalog := buildTestCatalog(frames)
	catalog.Register(NodeTypeInfo{ID: "test.flaky", NewInstance: func() Node { return &flakyNode{} }})

	doc := []byte(`{
		"nodes": [
			{"id": "src", "type": "test.source"},
			{"id": "flaky", "type": "test.flaky", "error_policy": "SkipFrame"},
			{"id": "sink", "type": "test.sink"}
		],
		"edges": [
			{"from": "src", "to": "flaky"},
			{"from": "flaky", "to": "sink"}
		]
	}`)

	p, err := NewPipelineFromJSON(context.Background(), "p1", doc, catalog)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background(), nil))

	require.Eventually(t, func() bool {
		return p.State() == PipelineCompleted
	}, 2*time.Second, 10*time.Millisecond)

	flaky := p.Metrics().For("flaky").Snapshot("flaky")
	require.Equal(t, uint64(5), flaky.FramesProcessed)
	require.Equal(t, uint64(5), flaky.ErrorsCount)

	sink := p.Metrics().For("sink").Snapshot("sink")
	require.Equal(t, uint64(5), sink.FramesProcessed)
}

func TestPipelinePushFrameBackpressureOnUndrainedInbox(t *testing.T) {
	catalog := buildTestCatalog(nil)
	doc := []byte(`{
		"pipeline_config": {"channel_capacity": 2},
		"nodes": [{"id": "in", "type": "test.sink", "source_port": true}],
		"edges": []
	}`)

	p, err := NewPipelineFromJSON(context.Background(), "p1", doc, catalog)
	require.NoError(t, err)

	f := NewFrame(0, 1)
	f.Payload["ch0"] = []float64{1}

	// pipeline not started, so nothing drains the inbox
	require.NoError(t, p.PushFrame(context.Background(), "in", f))
	require.NoError(t, p.PushFrame(context.Background(), "in", f))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = p.PushFrame(ctx, "in", f)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestPipelineResetAfterCompletionAllowsRestart(t *testing.T) {
	frames := []*Frame{NewFrame(0, 1)}
	frames[0].Payload["ch0"] = []float64{1}
	catalog := buildTestCatalog(frames)

	doc := []byte(`{
		"nodes": [
			{"id": "src", "type": "test.source"},
			{"id": "sink", "type": "test.sink"}
		],
		"edges": [{"from": "src", "to": "sink"}]
	}`)

	p, err := NewPipelineFromJSON(context.Background(), "p1", doc, catalog)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background(), nil))
	require.Eventually(t, func() bool {
		return p.State() == PipelineCompleted
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Reset())
	require.Equal(t, PipelineIdle, p.State())

	// idle pipelines cannot reset again; only Completed and recoverable
	// Error states can
	require.Error(t, p.Reset())

	require.NoError(t, p.Start(context.Background(), nil))
	require.Eventually(t, func() bool {
		return p.State() == PipelineCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPipelineNodeFailureIsRecoverable(t *testing.T) {
	catalog := NewCatalog()
	catalog.Register(NodeTypeInfo{ID: "test.broken", NewInstance: func() Node {
		n := NewMockNode()
		n.ProcessErr = errors.New("boom")
		return n
	}})
	catalog.Register(NodeTypeInfo{ID: "test.sink", NewInstance: func() Node { return NewMockNode() }})

	doc := []byte(`{
		"pipeline_config": {"channel_capacity": 4},
		"nodes": [
			{"id": "broken", "type": "test.broken", "source_port": true},
			{"id": "sink", "type": "test.sink"}
		],
		"edges": [{"from": "broken", "to": "sink"}]
	}`)

	p, err := NewPipelineFromJSON(context.Background(), "p1", doc, catalog)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background(), nil))

	f := NewFrame(0, 1)
	f.Payload["ch0"] = []float64{1}
	require.NoError(t, p.PushFrame(context.Background(), "broken", f))

	require.Eventually(t, func() bool {
		return p.State() == PipelineError
	}, 2*time.Second, 10*time.Millisecond)

	msg, recoverable := p.ErrorInfo()
	require.Contains(t, msg, "boom")
	require.True(t, recoverable)

	require.NoError(t, p.Reset())
	require.Equal(t, PipelineIdle, p.State())
}

func TestPipelineMappingFailureIsNotRecoverable(t *testing.T) {
	catalog := buildTestCatalog(nil)

	cfg := &GraphConfig{
		Nodes: []GraphNodeConfig{
			{ID: "in", Type: "test.sink", SourcePort: true},
			{ID: "sink", Type: "test.sink"},
		},
		Edges: []GraphEdgeConfig{{
			From: "in", To: "sink",
			Mappings: []ChannelMapping{{
				PhysicalChannels: 2,
				VirtualChannels:  1,
				Routing:          []ChannelRoute{Merge(0, 1)},
			}},
		}},
	}

	p, err := NewPipelineFromConfig("p1", cfg, catalog)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background(), nil))

	// single-channel frame against a two-channel mapping
	f := NewFrame(0, 1)
	f.Payload["ch0"] = []float64{1}
	require.NoError(t, p.PushFrame(context.Background(), "in", f))

	require.Eventually(t, func() bool {
		return p.State() == PipelineError
	}, 2*time.Second, 10*time.Millisecond)

	_, recoverable := p.ErrorInfo()
	require.False(t, recoverable)
	require.Error(t, p.Reset())
}

func TestPipelineIDAndLabel(t *testing.T) {
	catalog := buildTestCatalog(nil)
	doc := []byte(`{"nodes": [{"id": "sink", "type": "test.sink"}], "edges": []}`)

	p, err := NewPipelineFromJSON(context.Background(), "p1", doc, catalog)
	require.NoError(t, err)

	require.Equal(t, "p1", p.ID())
	require.Equal(t, "", p.Label())

	p.SetLabel("bench-run-3")
	require.Equal(t, "bench-run-3", p.Label())
}

func TestPipelinePoolReusesIdleBuildAndEvicts(t *testing.T) {
	catalog := buildTestCatalog(nil)
	doc := []byte(`{"nodes": [{"id": "sink", "type": "test.sink"}], "edges": []}`)
	build := func() (*Pipeline, error) {
		return NewPipelineFromJSON(context.Background(), "p1", doc, catalog)
	}

	pool := NewPipelinePool()
	p1, err := pool.GetOrBuild("p1", build)
	require.NoError(t, err)

	p2, err := pool.GetOrBuild("p1", build)
	require.NoError(t, err)
	require.Same(t, p1, p2)

	require.NoError(t, p1.Start(context.Background(), nil))
	pool.Evict("p1")

	p3, err := pool.GetOrBuild("p1", build)
	require.NoError(t, err)
	require.NotSame(t, p1, p3)
}
