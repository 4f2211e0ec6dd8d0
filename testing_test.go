package audiotab

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockNodeEchoesByDefault(t *testing.T) {
	m := NewMockNode()
	ctx := context.Background()

	require.NoError(t, m.OnCreate(ctx, map[string]any{"gain": 2.0}))
	f := NewFrame(0, 1)
	out, err := m.Process(ctx, f)
	require.NoError(t, err)
	require.Same(t, f, out)

	create, process, destroy := m.CallCounts()
	require.Equal(t, 1, create)
	require.Equal(t, 1, process)
	require.Equal(t, 0, destroy)
	require.Equal(t, 2.0, m.LastParams()["gain"])
}

func TestMockNodeTransform(t *testing.T) {
	m := NewMockNode()
	m.Transform = func(f *Frame) *Frame {
		out := f.Clone()
		out.Payload["ch0"][0] *= 2
		return out
	}

	f := NewFrame(0, 1)
	f.Payload["ch0"] = []float64{1, 2}
	out, err := m.Process(context.Background(), f)
	require.NoError(t, err)
	require.Equal(t, 2.0, out.Payload["ch0"][0])
}

func TestMockNodeInjectedErrors(t *testing.T) {
	m := NewMockNode()
	boom := errors.New("boom")
	m.ProcessErr = boom

	_, err := m.Process(context.Background(), NewFrame(0, 1))
	require.ErrorIs(t, err, boom)
}

func TestMockSourceNodeExhaustion(t *testing.T) {
	m := &MockSourceNode{Frames: []*Frame{NewFrame(0, 1), NewFrame(0, 2)}}
	ctx := context.Background()

	f1, err := m.Generate(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), f1.SequenceID)

	f2, err := m.Generate(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), f2.SequenceID)

	_, err = m.Generate(ctx)
	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, 3, m.GenCalls)
}
