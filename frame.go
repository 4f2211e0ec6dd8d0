package audiotab

// Frame is the canonical in-engine payload: a timestamped, sequence-numbered
// collection of per-channel float samples, flowing between node tasks. A
// Frame is shared by reference between a producer and its consumers; a node
// that mutates a Frame it does not exclusively own must Clone it first (see
// Clone).
type Frame struct {
	// TimestampUs is microseconds-since-epoch by convention, monotonic
	// within a source.
	TimestampUs uint64

	// SequenceID is assigned by the producer and strictly increases
	// within a source.
	SequenceID uint64

	// Payload maps a channel label ("ch0", "ch1", ... for device sources,
	// "main_channel" for software generators) to an ordered sample slice.
	// All channels within one Frame carry the same sample count.
	Payload map[string][]float64

	// Metadata carries string key-value pairs, e.g. "sample_rate".
	Metadata map[string]string
}

// NewFrame builds an empty Frame ready to receive channel payloads.
func NewFrame(timestampUs, sequenceID uint64) *Frame {
	return &Frame{
		TimestampUs: timestampUs,
		SequenceID:  sequenceID,
		Payload:     make(map[string][]float64),
		Metadata:    make(map[string]string),
	}
}

// SampleCount returns the sample count of the first channel encountered, or
// 0 for a Frame with no channels. Callers that must validate uniform
// channel length should use Validate.
func (f *Frame) SampleCount() int {
	for _, samples := range f.Payload {
		return len(samples)
	}
	return 0
}

// Validate checks the Frame invariant that every channel carries the same
// sample count.
func (f *Frame) Validate() error {
	want := -1
	for ch, samples := range f.Payload {
		if want == -1 {
			want = len(samples)
			continue
		}
		if len(samples) != want {
			return NewError("Frame.Validate", ErrCodeInvalidConfig,
				"channel "+ch+" has mismatched sample count")
		}
	}
	return nil
}

// Clone returns a deep copy of the Frame, including full copies of the
// sample slices and metadata. Fan-out does not copy: every downstream branch
// receives the same Frame pointer, and a node that modifies samples calls
// Clone to get an independently mutable Frame.
func (f *Frame) Clone() *Frame {
	clone := &Frame{
		TimestampUs: f.TimestampUs,
		SequenceID:  f.SequenceID,
		Payload:     make(map[string][]float64, len(f.Payload)),
		Metadata:    make(map[string]string, len(f.Metadata)),
	}
	for ch, samples := range f.Payload {
		cp := make([]float64, len(samples))
		copy(cp, samples)
		clone.Payload[ch] = cp
	}
	for k, v := range f.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}
