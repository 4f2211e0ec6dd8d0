// Package nodes provides the built-in catalog of dataflow node types:
// signal generators, gain/filter/FFT processors, device-facing source and
// output nodes, and a debug sink.
package nodes

import (
	"context"
	"math"

	"github.com/audiotab-dev/audiotab"
)

// SineSource generates a single-channel sine wave at a configured
// frequency and amplitude, one Frame of BlockSize samples per Generate
// call.
type SineSource struct {
	audiotab.BaseNode

	freqHz     float64
	amplitude  float64
	sampleRate float64
	blockSize  int

	phase float64
	seq   uint64
}

// NewSineSource returns an uninitialized SineSource; OnCreate fills in
// its parameters from the graph config.
func NewSineSource() audiotab.Node {
	return &SineSource{}
}

func (s *SineSource) OnCreate(ctx context.Context, params map[string]any) error {
	s.freqHz = floatParam(params, "freq_hz", 440.0)
	s.amplitude = floatParam(params, "amplitude", 1.0)
	s.sampleRate = floatParam(params, "sample_rate", 48000.0)
	s.blockSize = intParam(params, "block_size", 256)
	return nil
}

func (s *SineSource) Generate(ctx context.Context) (*audiotab.Frame, error) {
	samples := make([]float64, s.blockSize)
	step := 2 * math.Pi * s.freqHz / s.sampleRate
	for i := range samples {
		samples[i] = s.amplitude * math.Sin(s.phase)
		s.phase += step
	}
	s.seq++
	f := audiotab.NewFrame(0, s.seq)
	f.Payload["main_channel"] = samples
	return f, nil
}

func (s *SineSource) Process(ctx context.Context, in *audiotab.Frame) (*audiotab.Frame, error) {
	return in, nil
}

var _ audiotab.SourceNode = (*SineSource)(nil)

func floatParam(params map[string]any, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return def
}

func intParam(params map[string]any, key string, def int) int {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return def
}

func stringParam(params map[string]any, key string, def string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}
