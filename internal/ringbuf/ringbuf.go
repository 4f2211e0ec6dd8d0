// Package ringbuf implements the memory-mapped visualization ring buffer:
// a fixed-layout shared memory region a separate visualization process can
// mmap read-only to see the most recent samples of every channel the
// engine is processing, without any IPC round trip.
package ringbuf

import (
	"encoding/binary"
	"math"
	"os"

	"golang.org/x/sys/unix"

	"github.com/audiotab-dev/audiotab"
)

const (
	// Magic is the fixed 8-byte identifier stored at byte offset 0.
	Magic = "AUDITAB!"

	// HeaderSize is the fixed header region preceding the per-channel
	// data regions, regardless of how few of its bytes are meaningful.
	HeaderSize = 4096

	offsetMagic      = 0
	offsetVersion    = 8
	offsetSampleRate = 16
	offsetChannels   = 24
	offsetCapacity   = 32
	offsetWriteSeq   = 40

	// Version is the current header layout version.
	Version = 1
)

// RingBuffer is a memory-mapped circular buffer of per-channel float64
// samples, with a fixed 4096-byte header: magic (0-8), version u64
// (8-16), sample_rate u64 (16-24), channels u64 (24-32), capacity in
// samples-per-channel u64 (32-40), and a write-sequence counter u64
// (40-48). The per-channel data regions follow the header, each
// `capacity` float64s long, laid out channel-major.
type RingBuffer struct {
	file       *os.File
	data       []byte
	sampleRate uint64
	channels   uint64
	capacity   uint64
}

// Create allocates (or truncates) path to the size needed for channels
// channels of capacity samples each, writes the header, and maps it.
func Create(path string, sampleRate uint32, channels int, capacity int) (*RingBuffer, error) {
	size := HeaderSize + int64(channels)*int64(capacity)*8

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, audiotab.WrapError("ringbuf.Create", err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, audiotab.WrapError("ringbuf.Create", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, audiotab.WrapError("ringbuf.Create", err)
	}

	r := &RingBuffer{
		file:       f,
		data:       data,
		sampleRate: uint64(sampleRate),
		channels:   uint64(channels),
		capacity:   uint64(capacity),
	}
	r.writeHeader()
	return r, nil
}

// Open maps an existing ring buffer file read-only, as a visualization
// client would.
func Open(path string) (*RingBuffer, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, audiotab.WrapError("ringbuf.Open", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, audiotab.WrapError("ringbuf.Open", err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, audiotab.WrapError("ringbuf.Open", err)
	}

	r := &RingBuffer{file: f, data: data}
	if string(r.data[offsetMagic:offsetMagic+8]) != Magic {
		r.Close()
		return nil, audiotab.NewError("ringbuf.Open", audiotab.ErrCodeInvalidConfig, "bad ring buffer magic")
	}
	r.sampleRate = binary.LittleEndian.Uint64(r.data[offsetSampleRate : offsetSampleRate+8])
	r.channels = binary.LittleEndian.Uint64(r.data[offsetChannels : offsetChannels+8])
	r.capacity = binary.LittleEndian.Uint64(r.data[offsetCapacity : offsetCapacity+8])
	return r, nil
}

func (r *RingBuffer) writeHeader() {
	copy(r.data[offsetMagic:offsetMagic+8], Magic)
	binary.LittleEndian.PutUint64(r.data[offsetVersion:offsetVersion+8], Version)
	binary.LittleEndian.PutUint64(r.data[offsetSampleRate:offsetSampleRate+8], r.sampleRate)
	binary.LittleEndian.PutUint64(r.data[offsetChannels:offsetChannels+8], r.channels)
	binary.LittleEndian.PutUint64(r.data[offsetCapacity:offsetCapacity+8], r.capacity)
	binary.LittleEndian.PutUint64(r.data[offsetWriteSeq:offsetWriteSeq+8], 0)
}

// SampleRate, Channels, and Capacity report the header's fixed geometry.
func (r *RingBuffer) SampleRate() uint32 { return uint32(r.sampleRate) }
func (r *RingBuffer) Channels() int      { return int(r.channels) }
func (r *RingBuffer) Capacity() int      { return int(r.capacity) }

// WriteSequence returns the current write-sequence counter, incremented
// once per WriteFrame call. A visualization reader can poll this to
// detect new data without re-reading the whole buffer.
func (r *RingBuffer) WriteSequence() uint64 {
	return binary.LittleEndian.Uint64(r.data[offsetWriteSeq : offsetWriteSeq+8])
}

func (r *RingBuffer) channelOffset(ch int) int64 {
	return HeaderSize + int64(ch)*int64(r.capacity)*8
}

// WriteFrame writes one sample per channel at the buffer's current write
// position (derived from the write-sequence counter modulo capacity) and
// advances the counter. channels[i] is the i-th channel's sample.
func (r *RingBuffer) WriteFrame(channels []float64) error {
	if uint64(len(channels)) != r.channels {
		return audiotab.NewError("ringbuf.WriteFrame", audiotab.ErrCodeInvalidConfig, "channel count mismatch")
	}
	seq := r.WriteSequence()
	pos := seq % r.capacity

	for ch, v := range channels {
		off := r.channelOffset(ch) + int64(pos)*8
		binary.LittleEndian.PutUint64(r.data[off:off+8], math.Float64bits(v))
	}
	binary.LittleEndian.PutUint64(r.data[offsetWriteSeq:offsetWriteSeq+8], seq+1)
	return nil
}

// PublishFrame writes every sample position of f's positionally-named
// channels ("ch0", "ch1", ...) into the ring, advancing the write
// sequence once per position. Ring channels the frame doesn't carry are
// written as silence, so a mono device still advances a stereo ring
// consistently.
func (r *RingBuffer) PublishFrame(f *audiotab.Frame) error {
	n := f.SampleCount()
	tick := make([]float64, r.channels)
	for s := 0; s < n; s++ {
		for c := 0; c < int(r.channels); c++ {
			if samples, ok := f.Payload[audiotab.ChannelLabel(c)]; ok {
				tick[c] = samples[s]
			} else {
				tick[c] = 0
			}
		}
		if err := r.WriteFrame(tick); err != nil {
			return err
		}
	}
	return nil
}

// ReadChannel returns the last n samples of channel ch (or fewer, if the
// buffer has not yet been filled n deep), oldest first.
func (r *RingBuffer) ReadChannel(ch int, n int) []float64 {
	seq := r.WriteSequence()
	capSamples := int64(r.capacity)
	if int64(n) > capSamples {
		n = int(capSamples)
	}
	if seq < uint64(n) {
		n = int(seq)
	}

	out := make([]float64, n)
	base := r.channelOffset(ch)
	start := int64(seq) - int64(n)
	for i := 0; i < n; i++ {
		pos := (start + int64(i)) % capSamples
		if pos < 0 {
			pos += capSamples
		}
		off := base + pos*8
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(r.data[off : off+8]))
	}
	return out
}

// Close unmaps the buffer and closes its backing file.
func (r *RingBuffer) Close() error {
	if r.data != nil {
		unix.Munmap(r.data)
		r.data = nil
	}
	return r.file.Close()
}
