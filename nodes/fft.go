package nodes

import (
	"context"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/audiotab-dev/audiotab"
)

// FFTMagnitude replaces each channel's time-domain samples with the
// magnitude spectrum of a real FFT over the block, useful for spectrum
// visualization or peak-frequency detection downstream.
type FFTMagnitude struct {
	audiotab.BaseNode

	fft map[int]*fourier.FFT
}

// NewFFTMagnitude returns an uninitialized FFTMagnitude node.
func NewFFTMagnitude() audiotab.Node {
	return &FFTMagnitude{fft: make(map[int]*fourier.FFT)}
}

func (n *FFTMagnitude) fftFor(size int) *fourier.FFT {
	if f, ok := n.fft[size]; ok {
		return f
	}
	f := fourier.NewFFT(size)
	n.fft[size] = f
	return f
}

func (n *FFTMagnitude) Process(ctx context.Context, in *audiotab.Frame) (*audiotab.Frame, error) {
	out := audiotab.NewFrame(in.TimestampUs, in.SequenceID)
	for k, v := range in.Metadata {
		out.Metadata[k] = v
	}

	for ch, samples := range in.Payload {
		f := n.fftFor(len(samples))
		coeffs := f.Coefficients(nil, samples)

		mags := make([]float64, len(coeffs))
		for i, c := range coeffs {
			mags[i] = cmplx.Abs(c)
		}
		out.Payload[ch] = mags
	}
	return out, nil
}
