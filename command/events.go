package command

import (
	"encoding/binary"
	"math"

	"github.com/audiotab-dev/audiotab"
	"github.com/audiotab-dev/audiotab/internal/bufpool"
	"github.com/audiotab-dev/audiotab/internal/wire"
)

// encodeSamplesFrame packs a channel index and a slice of float64 samples
// into a wire.FrameKindRingBufferChunk binary frame: 4-byte little-endian
// channel index followed by one little-endian float64 per sample. The
// staging buffer comes from bufpool since this runs once per
// get_ringbuffer_bytes call on a hot visualization path.
func encodeSamplesFrame(channel int, samples []float64) []byte {
	payload := bufpool.Get(4 + 8*len(samples))
	binary.LittleEndian.PutUint32(payload[0:4], uint32(channel))
	for i, s := range samples {
		binary.LittleEndian.PutUint64(payload[4+8*i:12+8*i], math.Float64bits(s))
	}
	framed := wire.EncodeBinaryFrame(wire.FrameKindRingBufferChunk, payload)
	bufpool.Put(payload)
	return framed
}

// PipelineEvent is the JSON shape pushed to every connected client when
// the pipeline's state or a node's metrics change.
type PipelineEvent struct {
	Type       string                         `json:"type"`
	PipelineID string                         `json:"pipeline_id,omitempty"`
	State      string                         `json:"state,omitempty"`
	Metrics    []audiotab.NodeMetricsSnapshot `json:"metrics,omitempty"`
}

// BroadcastPipelineState notifies every connected client of a pipeline
// state transition (run/pause/resume/stop/error).
func (s *Server) BroadcastPipelineState(pipelineID, state string) {
	s.Broadcast(PipelineEvent{Type: "pipeline_state", PipelineID: pipelineID, State: state})
}

// broadcastPipelineStates pushes the current state of every known
// pipeline to connected clients, called after any command that can move
// one through its lifecycle.
func (s *Server) broadcastPipelineStates() {
	for _, st := range s.kernel.allPipelineStates() {
		s.BroadcastPipelineState(st.ID, st.State)
	}
}

// BroadcastMetrics notifies every connected client of a metrics snapshot,
// used to drive a live per-node latency/throughput view.
func (s *Server) BroadcastMetrics(pipelineID string, snapshot []audiotab.NodeMetricsSnapshot) {
	s.Broadcast(PipelineEvent{Type: "metrics", PipelineID: pipelineID, Metrics: snapshot})
}
