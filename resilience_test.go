package audiotab

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResilienceWrapperPropagatesByDefault(t *testing.T) {
	m := NewMockNode()
	m.ProcessErr = errors.New("boom")
	w := NewResilienceWrapper(m, "node-1", ResilienceOptions{Policy: PolicyPropagate})

	_, err := w.Process(context.Background(), NewFrame(0, 1))
	require.Error(t, err)
	require.True(t, IsCode(err, ErrCodeNodeFailure))
}

func TestResilienceWrapperSkipFrame(t *testing.T) {
	m := NewMockNode()
	m.ProcessErr = errors.New("boom")
	w := NewResilienceWrapper(m, "node-1", ResilienceOptions{Policy: PolicySkipFrame})

	out, err := w.Process(context.Background(), NewFrame(0, 1))
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestResilienceWrapperUseDefault(t *testing.T) {
	m := NewMockNode()
	m.ProcessErr = errors.New("boom")
	def := NewFrame(0, 0)
	w := NewResilienceWrapper(m, "node-1", ResilienceOptions{Policy: PolicyUseDefault, DefaultFrame: def})

	out, err := w.Process(context.Background(), NewFrame(0, 1))
	require.NoError(t, err)
	require.Same(t, def, out)
}

func TestResilienceWrapperRecordsObservations(t *testing.T) {
	m := NewMockNode()
	metrics := NewNodeMetrics()
	w := NewResilienceWrapper(m, "node-1", ResilienceOptions{
		Policy:   PolicyPropagate,
		Observer: NewMetricsObserver(metrics),
	})

	_, err := w.Process(context.Background(), NewFrame(0, 1))
	require.NoError(t, err)

	snap := metrics.Snapshot("node-1")
	require.Equal(t, uint64(1), snap.FramesProcessed)
}

func TestResilienceWrapperRestartStrategy(t *testing.T) {
	m := NewMockNode()
	m.ProcessErr = errors.New("boom")
	w := NewResilienceWrapper(m, "node-1", ResilienceOptions{
		Policy:  PolicySkipFrame,
		Restart: &RestartStrategy{MaxRestarts: 2, Window: 0},
	})

	_, err := w.Process(context.Background(), NewFrame(0, 1))
	require.NoError(t, err)
	create, _, _ := m.CallCounts()
	require.Equal(t, 1, create)
}
