package audiotab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameValidateDetectsMismatch(t *testing.T) {
	f := NewFrame(0, 1)
	f.Payload["ch0"] = []float64{1, 2, 3}
	f.Payload["ch1"] = []float64{1, 2}

	err := f.Validate()
	require.Error(t, err)
	require.True(t, IsCode(err, ErrCodeInvalidConfig))
}

func TestFrameCloneIsIndependent(t *testing.T) {
	f := NewFrame(10, 1)
	f.Payload["ch0"] = []float64{1, 2, 3}
	f.Metadata["sample_rate"] = "48000"

	clone := f.Clone()
	clone.Payload["ch0"][0] = 99
	clone.Metadata["sample_rate"] = "44100"

	require.Equal(t, float64(1), f.Payload["ch0"][0])
	require.Equal(t, "48000", f.Metadata["sample_rate"])
	require.Equal(t, float64(99), clone.Payload["ch0"][0])
}

func TestFrameSampleCount(t *testing.T) {
	f := NewFrame(0, 1)
	require.Equal(t, 0, f.SampleCount())
	f.Payload["ch0"] = []float64{1, 2, 3, 4}
	require.Equal(t, 4, f.SampleCount())
}
