package nodes

import (
	"context"

	"github.com/audiotab-dev/audiotab"
)

// AudioSourcePort is the identity node type registered for graph nodes
// marked "source_port": true. The kernel runtime feeds it Frames directly
// (converted from a Device's Packets), so Process is a pass-through; the
// node exists so the graph has something to target as an inbound edge
// destination and metrics can be attributed to a named node.
type AudioSourcePort struct {
	audiotab.BaseNode
}

// NewAudioSourcePort returns an AudioSourcePort node.
func NewAudioSourcePort() audiotab.Node { return &AudioSourcePort{} }

func (a *AudioSourcePort) Process(ctx context.Context, in *audiotab.Frame) (*audiotab.Frame, error) {
	return in, nil
}
