package nodes

import (
	"context"

	"github.com/audiotab-dev/audiotab"
)

// Gain multiplies every sample on every channel by a fixed factor.
type Gain struct {
	audiotab.BaseNode
	factor float64
}

// NewGain returns an uninitialized Gain node.
func NewGain() audiotab.Node { return &Gain{factor: 1.0} }

func (g *Gain) OnCreate(ctx context.Context, params map[string]any) error {
	g.factor = floatParam(params, "factor", 1.0)
	return nil
}

func (g *Gain) Process(ctx context.Context, in *audiotab.Frame) (*audiotab.Frame, error) {
	out := in.Clone()
	for ch, samples := range out.Payload {
		for i := range samples {
			samples[i] *= g.factor
		}
		out.Payload[ch] = samples
	}
	return out, nil
}
