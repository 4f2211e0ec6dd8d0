package audiotab

import "fmt"

// ChannelRouteKind selects one routing rule within a ChannelMapping.
type ChannelRouteKind int

const (
	RouteDirect ChannelRouteKind = iota
	RouteReorder
	RouteMerge
	RouteDuplicate
)

// ChannelRoute is one rule producing a single virtual-channel sample from
// one or more physical-channel indices: Direct/Reorder/Duplicate take
// exactly one index, Merge averages two or more.
type ChannelRoute struct {
	Kind     ChannelRouteKind `json:"kind"`
	Channels []int            `json:"channels"`
}

// Direct copies physical[ch] straight through.
func Direct(ch int) ChannelRoute { return ChannelRoute{Kind: RouteDirect, Channels: []int{ch}} }

// Reorder copies physical[ch] into a different virtual position; the only
// difference from Direct is intent, since both take a single index.
func Reorder(ch int) ChannelRoute { return ChannelRoute{Kind: RouteReorder, Channels: []int{ch}} }

// Merge averages the named physical channels into one virtual channel.
func Merge(chs ...int) ChannelRoute { return ChannelRoute{Kind: RouteMerge, Channels: chs} }

// Duplicate copies physical[ch] into an additional virtual position.
func Duplicate(ch int) ChannelRoute { return ChannelRoute{Kind: RouteDuplicate, Channels: []int{ch}} }

// ChannelMapping declaratively routes a physical sample slice of length
// PhysicalChannels to a virtual sample slice of length VirtualChannels: one
// Routing rule per produced virtual channel, evaluated in order.
type ChannelMapping struct {
	PhysicalChannels int            `json:"physical_channels"`
	VirtualChannels  int            `json:"virtual_channels"`
	Routing          []ChannelRoute `json:"routing"`
}

// OutOfRangeError reports a routing rule referencing a physical channel
// index the mapping or the input slice doesn't have.
type OutOfRangeError struct {
	Channel   int
	Available int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("channel %d out of range (0..%d)", e.Channel, e.Available)
}

// BadReorderArityError reports a Reorder rule with other than exactly one
// source channel.
type BadReorderArityError struct {
	Got int
}

func (e *BadReorderArityError) Error() string {
	return fmt.Sprintf("reorder expects a single channel, got %d", e.Got)
}

// ArityMismatchError reports a mapping whose produced virtual channel count
// doesn't match its declared VirtualChannels.
type ArityMismatchError struct {
	Produced int
	Expected int
}

func (e *ArityMismatchError) Error() string {
	return fmt.Sprintf("mapping produced %d channels, expected %d", e.Produced, e.Expected)
}

func newMappingError(op string, cause error) *Error {
	return &Error{Op: op, Code: ErrCodeMappingFailure, Msg: cause.Error(), Inner: cause}
}

// ChannelMapper applies a validated ChannelMapping to physical sample
// slices, producing virtual sample slices.
type ChannelMapper struct {
	mapping ChannelMapping
}

// NewChannelMapper validates mapping's routing list against its declared
// channel counts and returns a ready-to-use mapper.
func NewChannelMapper(mapping ChannelMapping) (*ChannelMapper, error) {
	if len(mapping.Routing) != mapping.VirtualChannels {
		return nil, newMappingError("NewChannelMapper", &ArityMismatchError{
			Produced: len(mapping.Routing), Expected: mapping.VirtualChannels,
		})
	}
	for _, route := range mapping.Routing {
		switch route.Kind {
		case RouteDirect, RouteDuplicate:
			if len(route.Channels) != 1 {
				return nil, newMappingError("NewChannelMapper", fmt.Errorf("route requires exactly one channel, got %d", len(route.Channels)))
			}
		case RouteReorder:
			if len(route.Channels) != 1 {
				return nil, newMappingError("NewChannelMapper", &BadReorderArityError{Got: len(route.Channels)})
			}
		case RouteMerge:
			if len(route.Channels) < 2 {
				return nil, newMappingError("NewChannelMapper", fmt.Errorf("merge route requires at least two channels, got %d", len(route.Channels)))
			}
		default:
			return nil, newMappingError("NewChannelMapper", fmt.Errorf("unknown route kind %d", route.Kind))
		}
		for _, ch := range route.Channels {
			if ch < 0 || ch >= mapping.PhysicalChannels {
				return nil, newMappingError("NewChannelMapper", &OutOfRangeError{Channel: ch, Available: mapping.PhysicalChannels})
			}
		}
	}
	return &ChannelMapper{mapping: mapping}, nil
}

// Apply routes one tick of physical samples (length PhysicalChannels) into
// a freshly allocated virtual sample slice (length VirtualChannels).
func (m *ChannelMapper) Apply(physical []float64) ([]float64, error) {
	if len(physical) != m.mapping.PhysicalChannels {
		return nil, newMappingError("ChannelMapper.Apply", fmt.Errorf(
			"expected %d physical channels, got %d", m.mapping.PhysicalChannels, len(physical)))
	}

	virtual := make([]float64, 0, m.mapping.VirtualChannels)
	for _, route := range m.mapping.Routing {
		switch route.Kind {
		case RouteDirect, RouteReorder, RouteDuplicate:
			virtual = append(virtual, physical[route.Channels[0]])
		case RouteMerge:
			var sum float64
			for _, ch := range route.Channels {
				sum += physical[ch]
			}
			virtual = append(virtual, sum/float64(len(route.Channels)))
		}
	}

	if len(virtual) != m.mapping.VirtualChannels {
		return nil, newMappingError("ChannelMapper.Apply", &ArityMismatchError{
			Produced: len(virtual), Expected: m.mapping.VirtualChannels,
		})
	}
	return virtual, nil
}

// ApplyFrame routes a Frame's positionally-named physical channels
// ("ch0".."ch{PhysicalChannels-1}") into a new Frame with
// "ch0".."ch{VirtualChannels-1}" virtual channels, applying the mapping
// independently to every sample position. Metadata and timing fields carry
// through unchanged.
func (m *ChannelMapper) ApplyFrame(f *Frame) (*Frame, error) {
	n := f.SampleCount()
	physical := make([][]float64, m.mapping.PhysicalChannels)
	for i := range physical {
		samples, ok := f.Payload[ChannelLabel(i)]
		if !ok {
			return nil, newMappingError("ChannelMapper.ApplyFrame", &OutOfRangeError{Channel: i, Available: len(f.Payload)})
		}
		physical[i] = samples
	}

	virtual := make([][]float64, m.mapping.VirtualChannels)
	for i := range virtual {
		virtual[i] = make([]float64, n)
	}

	tick := make([]float64, m.mapping.PhysicalChannels)
	for s := 0; s < n; s++ {
		for i := range physical {
			tick[i] = physical[i][s]
		}
		mapped, err := m.Apply(tick)
		if err != nil {
			return nil, err
		}
		for i, v := range mapped {
			virtual[i][s] = v
		}
	}

	out := NewFrame(f.TimestampUs, f.SequenceID)
	for k, v := range f.Metadata {
		out.Metadata[k] = v
	}
	for i := range virtual {
		out.Payload[ChannelLabel(i)] = virtual[i]
	}
	return out, nil
}

// DefaultChannelMapping builds the identity mapping for numChannels: every
// physical channel passes straight through to the matching virtual one.
func DefaultChannelMapping(numChannels int) ChannelMapping {
	routing := make([]ChannelRoute, numChannels)
	for i := range routing {
		routing[i] = Direct(i)
	}
	return ChannelMapping{PhysicalChannels: numChannels, VirtualChannels: numChannels, Routing: routing}
}
