package nodes

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/audiotab-dev/audiotab"
)

func TestDebugSinkDumpsFrameAndTerminatesBranch(t *testing.T) {
	d := &DebugSink{}
	var buf bytes.Buffer
	d.out = &buf
	require.NoError(t, d.OnCreate(context.Background(), map[string]any{"label": "probe"}))

	f := audiotab.NewFrame(0, 1)
	f.Payload["ch0"] = []float64{1, 2}

	out, err := d.Process(context.Background(), f)
	require.NoError(t, err)
	require.Nil(t, out)
	require.Contains(t, buf.String(), "probe")
}
