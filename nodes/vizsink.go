package nodes

import (
	"context"
	"sync/atomic"

	"github.com/audiotab-dev/audiotab"
	"github.com/audiotab-dev/audiotab/internal/ringbuf"
)

// processRing is the process-wide visualization ring buffer that
// catalog-built VisualizationSinks publish into, installed once by the
// daemon after it creates the ring.
var processRing atomic.Pointer[ringbuf.RingBuffer]

// SetVisualizationRing installs the ring buffer the viz_sink catalog
// entry binds at OnCreate. The daemon calls this at startup; until then,
// creating a viz_sink node from a graph fails with InvalidConfig.
func SetVisualizationRing(r *ringbuf.RingBuffer) {
	processRing.Store(r)
}

// VisualizationSink streams every incoming Frame into the memory-mapped
// ring buffer a visualization client reads, one WriteFrame per sample
// position. Unlike the kernel reader's best-effort ring tap, a graph
// that routes through this node explicitly expects every named channel
// present, so a missing channel is an error rather than silence.
type VisualizationSink struct {
	audiotab.BaseNode

	ring  *ringbuf.RingBuffer
	order []string
}

// NewVisualizationSink binds ring directly, for callers wiring a graph
// by hand. order names the Frame channels to publish, in ring-channel
// order; nil derives "ch0".."chN-1" from the ring's channel count.
func NewVisualizationSink(ring *ringbuf.RingBuffer, order []string) *VisualizationSink {
	v := &VisualizationSink{ring: ring, order: order}
	v.deriveOrder()
	return v
}

// NewVisualizationSinkNode is the catalog factory; the ring resolves
// from SetVisualizationRing at OnCreate.
func NewVisualizationSinkNode() audiotab.Node {
	return &VisualizationSink{}
}

func (v *VisualizationSink) deriveOrder() {
	if v.order != nil || v.ring == nil {
		return
	}
	v.order = make([]string, v.ring.Channels())
	for i := range v.order {
		v.order[i] = audiotab.ChannelLabel(i)
	}
}

func (v *VisualizationSink) OnCreate(ctx context.Context, params map[string]any) error {
	if v.ring == nil {
		v.ring = processRing.Load()
	}
	if v.ring == nil {
		return audiotab.NewError("VisualizationSink.OnCreate",
			audiotab.ErrCodeInvalidConfig, "no visualization ring buffer configured")
	}
	v.deriveOrder()
	return nil
}

func (v *VisualizationSink) Process(ctx context.Context, in *audiotab.Frame) (*audiotab.Frame, error) {
	n := in.SampleCount()
	tick := make([]float64, len(v.order))
	for s := 0; s < n; s++ {
		for i, ch := range v.order {
			samples, ok := in.Payload[ch]
			if !ok {
				return nil, audiotab.NewError("VisualizationSink.Process",
					audiotab.ErrCodeConversionFailure, "frame missing channel "+ch)
			}
			tick[i] = samples[s]
		}
		if err := v.ring.WriteFrame(tick); err != nil {
			return nil, err
		}
	}
	return nil, nil
}
