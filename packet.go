package audiotab

// SampleFormat tags the device-native sample encoding carried by a Packet.
type SampleFormat int

const (
	FormatI16 SampleFormat = iota
	FormatI24
	FormatI32
	FormatF32
	FormatF64
	FormatU8
	FormatBytes
)

func (f SampleFormat) String() string {
	switch f {
	case FormatI16:
		return "i16"
	case FormatI24:
		return "i24"
	case FormatI32:
		return "i32"
	case FormatF32:
		return "f32"
	case FormatF64:
		return "f64"
	case FormatU8:
		return "u8"
	case FormatBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Packet is the device-native payload exchanged with a Driver: an
// interleaved sample buffer tagged with its encoding, sample rate, and
// channel count. Unlike Frame, Packet carries no per-channel labeling — the
// Channel Mapper is responsible for turning interleaved device channels
// into named Frame channels.
type Packet struct {
	Format      SampleFormat
	Data        []byte
	SampleRate  uint32
	NumChannels int

	// TimestampUs is optional; zero means "unset, derive from arrival order".
	TimestampUs  uint64
	HasTimestamp bool
}

// FrameCount returns the number of interleaved sample frames (one sample
// per channel) contained in Data, or 0 if Data's length isn't a multiple of
// the per-sample-frame byte width.
func (p *Packet) FrameCount() int {
	width := p.bytesPerSample() * p.NumChannels
	if width == 0 || len(p.Data)%width != 0 {
		return 0
	}
	return len(p.Data) / width
}

func (p *Packet) bytesPerSample() int {
	switch p.Format {
	case FormatI16:
		return 2
	case FormatI24:
		return 3
	case FormatI32, FormatF32:
		return 4
	case FormatF64:
		return 8
	case FormatU8, FormatBytes:
		return 1
	default:
		return 0
	}
}
