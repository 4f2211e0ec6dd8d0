package nodes

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/audiotab-dev/audiotab"
)

// FIRFilter applies a finite-impulse-response filter to every channel
// independently, convolving each incoming block against a fixed kernel.
// The kernel defaults to a simple moving-average low-pass; callers needing
// a different response supply "taps" as a list of coefficients.
type FIRFilter struct {
	audiotab.BaseNode

	taps    *mat.VecDense
	history map[string][]float64
}

// NewFIRFilter returns an uninitialized FIRFilter.
func NewFIRFilter() audiotab.Node {
	return &FIRFilter{history: make(map[string][]float64)}
}

func (f *FIRFilter) OnCreate(ctx context.Context, params map[string]any) error {
	taps := tapsParam(params, "taps")
	if len(taps) == 0 {
		n := intParam(params, "taps_count", 8)
		taps = make([]float64, n)
		for i := range taps {
			taps[i] = 1.0 / float64(n)
		}
	}
	f.taps = mat.NewVecDense(len(taps), taps)
	return nil
}

func tapsParam(params map[string]any, key string) []float64 {
	v, ok := params[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, len(raw))
	for i, x := range raw {
		switch n := x.(type) {
		case float64:
			out[i] = n
		case int:
			out[i] = float64(n)
		}
	}
	return out
}

func (f *FIRFilter) Process(ctx context.Context, in *audiotab.Frame) (*audiotab.Frame, error) {
	out := audiotab.NewFrame(in.TimestampUs, in.SequenceID)
	for k, v := range in.Metadata {
		out.Metadata[k] = v
	}

	tapCount := f.taps.Len()
	for ch, samples := range in.Payload {
		hist := f.history[ch]
		window := append(hist, samples...)

		filtered := make([]float64, len(samples))
		for i := range samples {
			start := len(window) - len(samples) + i - tapCount + 1
			sum := 0.0
			for t := 0; t < tapCount; t++ {
				idx := start + t
				if idx < 0 || idx >= len(window) {
					continue
				}
				sum += window[idx] * f.taps.AtVec(t)
			}
			filtered[i] = sum
		}
		out.Payload[ch] = filtered

		if len(window) > tapCount {
			f.history[ch] = append([]float64(nil), window[len(window)-tapCount:]...)
		} else {
			f.history[ch] = append([]float64(nil), window...)
		}
	}
	return out, nil
}
