package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/audiotab-dev/audiotab"
	"github.com/audiotab-dev/audiotab/internal/logging"
)

func testGraphCatalog() *audiotab.Catalog {
	c := audiotab.NewCatalog()
	c.Register(audiotab.NodeTypeInfo{
		ID:          "test.source",
		NewInstance: func() audiotab.Node { return &audiotab.MockSourceNode{} },
	})
	c.Register(audiotab.NodeTypeInfo{
		ID:          "test.sink",
		NewInstance: func() audiotab.Node { return audiotab.NewMockNode() },
	})
	return c
}

func TestKernelBindingDeployAndControlPipeline(t *testing.T) {
	kb := NewKernelBinding(t.TempDir()+"/ring.dat", 16, logging.Default())
	catalog := testGraphCatalog()

	// a source-port pipeline idles until frames are pushed, so it stays
	// Running while the control actions are exercised
	doc := []byte(`{
		"nodes": [
			{"id": "in", "type": "test.sink", "source_port": true},
			{"id": "sink", "type": "test.sink"}
		],
		"edges": [{"from": "in", "to": "sink"}]
	}`)

	ctx := context.Background()
	require.NoError(t, kb.deployGraph(ctx, "p1", doc, catalog))
	require.NoError(t, kb.pipeline.Start(ctx, nil))

	require.NoError(t, kb.controlPipeline("pause"))
	require.NoError(t, kb.controlPipeline("resume"))
	require.Error(t, kb.controlPipeline("bogus"))
}

func TestKernelBindingStatusAndStop(t *testing.T) {
	kb := NewKernelBinding(t.TempDir()+"/ring.dat", 16, logging.Default())
	catalog := testGraphCatalog()

	doc := []byte(`{
		"nodes": [
			{"id": "src", "type": "test.source"},
			{"id": "sink", "type": "test.sink"}
		],
		"edges": [{"from": "src", "to": "sink"}]
	}`)

	ctx := context.Background()
	require.NoError(t, kb.deployGraph(ctx, "p1", doc, catalog))

	states := kb.allPipelineStates()
	require.Len(t, states, 1)
	require.Equal(t, "idle", states[0].State)

	require.NoError(t, kb.startKernel(ctx, nil, nil, nil))
	states = kb.allPipelineStates()
	require.Len(t, states, 1)
	require.Equal(t, "p1", states[0].ID)

	require.Equal(t, "idle", kb.kernelStatus().State)
	require.NoError(t, kb.stopKernel(ctx))
}

func TestKernelBindingControlPipelineWithoutDeployFails(t *testing.T) {
	kb := NewKernelBinding(t.TempDir()+"/ring.dat", 16, logging.Default())
	require.Error(t, kb.controlPipeline("pause"))
}

func TestKernelBindingRingBuffer(t *testing.T) {
	kb := NewKernelBinding(t.TempDir()+"/ring.dat", 16, logging.Default())
	require.NoError(t, kb.openRingBuffer(48000, 2, 16))
	for i := 0; i < 4; i++ {
		require.NoError(t, kb.Ring().WriteFrame([]float64{float64(i), 0}))
	}

	samples, err := kb.ringChannel(0, 4)
	require.NoError(t, err)
	require.Len(t, samples, 4)
}
