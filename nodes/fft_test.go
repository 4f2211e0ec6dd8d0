package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/audiotab-dev/audiotab"
)

func TestFFTMagnitudeProducesNonNegativeSpectrum(t *testing.T) {
	n := NewFFTMagnitude()
	frame := audiotab.NewFrame(0, 1)
	samples := make([]float64, 16)
	for i := range samples {
		samples[i] = float64(i % 4)
	}
	frame.Payload["ch0"] = samples

	out, err := n.Process(context.Background(), frame)
	require.NoError(t, err)
	require.NotEmpty(t, out.Payload["ch0"])
	for _, v := range out.Payload["ch0"] {
		require.GreaterOrEqual(t, v, 0.0)
	}
}
