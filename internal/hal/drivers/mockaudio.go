// Package drivers holds concrete Driver/Device implementations. mockaudio
// simulates an audio interface entirely in software, generating a sine
// wave Packet stream without touching real hardware.
package drivers

import (
	"context"
	"math"
	"sync"

	"github.com/audiotab-dev/audiotab"
	"github.com/audiotab-dev/audiotab/internal/hal"
)

// MockAudioDevice is a simulated audio input Device. It hands Packets to
// its reader through fillCh, a bounded channel of capacity 2. drainCh (also
// capacity 2) is emptied by the producer loop, but nothing sends Packets
// back on it: every Packet is freshly allocated and no buffer is reused.
type MockAudioDevice struct {
	id   string
	sm   *hal.StateMachine
	rate uint32
	ch   int

	freqHz    float64
	phase     float64
	mu        sync.Mutex
	seq       uint64
	frameSize int

	fillCh  chan *audiotab.Packet
	drainCh chan *audiotab.Packet
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMockAudioDevice builds a simulated device producing a freqHz sine
// wave across ch channels at the given sample rate.
func NewMockAudioDevice(id string, rate uint32, ch int, freqHz float64) *MockAudioDevice {
	return &MockAudioDevice{
		id:        id,
		sm:        hal.NewStateMachine(),
		rate:      rate,
		ch:        ch,
		freqHz:    freqHz,
		frameSize: 256,
		fillCh:    make(chan *audiotab.Packet, 2),
		drainCh:   make(chan *audiotab.Packet, 2),
	}
}

func (d *MockAudioDevice) ID() string             { return d.id }
func (d *MockAudioDevice) State() hal.DeviceState { return d.sm.State() }

func (d *MockAudioDevice) Open(ctx context.Context) error {
	return d.sm.Transition(hal.DeviceStateOpened)
}

func (d *MockAudioDevice) Start(ctx context.Context) error {
	if d.sm.State() == hal.DeviceStateRunning {
		return audiotab.NewError("MockAudioDevice.Start", audiotab.ErrCodeAlreadyStreaming,
			"device "+d.id+" is already streaming")
	}
	if err := d.sm.Transition(hal.DeviceStateRunning); err != nil {
		return err
	}
	genCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.generate(genCtx)
	return nil
}

func (d *MockAudioDevice) Stop(ctx context.Context) error {
	if err := d.sm.Transition(hal.DeviceStateStopped); err != nil {
		return err
	}
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
	return nil
}

func (d *MockAudioDevice) Close(ctx context.Context) error {
	return d.sm.Transition(hal.DeviceStateClosed)
}

// Read returns the next produced Packet, blocking until one is available
// or ctx is cancelled.
func (d *MockAudioDevice) Read(ctx context.Context) (*audiotab.Packet, error) {
	select {
	case p := <-d.fillCh:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *MockAudioDevice) generate(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		p := d.nextPacket()
		select {
		case d.fillCh <- p:
		case <-ctx.Done():
			return
		}

		select {
		case <-d.drainCh:
		default:
		}
	}
}

func (d *MockAudioDevice) nextPacket() *audiotab.Packet {
	d.mu.Lock()
	defer d.mu.Unlock()

	data := make([]byte, d.frameSize*d.ch*4)
	step := 2 * math.Pi * d.freqHz / float64(d.rate)
	for i := 0; i < d.frameSize; i++ {
		sample := math.Sin(d.phase)
		d.phase += step
		for c := 0; c < d.ch; c++ {
			off := (i*d.ch + c) * 4
			bits := math.Float32bits(float32(sample))
			data[off] = byte(bits)
			data[off+1] = byte(bits >> 8)
			data[off+2] = byte(bits >> 16)
			data[off+3] = byte(bits >> 24)
		}
	}
	d.seq++
	return &audiotab.Packet{
		Format:      audiotab.FormatF32,
		Data:        data,
		SampleRate:  d.rate,
		NumChannels: d.ch,
	}
}

// Capabilities reports the simulated interface's supported formats: F32
// input at the common studio rates.
func (d *MockAudioDevice) Capabilities() hal.Capabilities {
	return hal.Capabilities{
		Formats:     []audiotab.SampleFormat{audiotab.FormatF32},
		SampleRates: []uint32{44100, 48000, 96000},
		MaxChannels: 8,
		Input:       true,
	}
}

var (
	_ hal.Device             = (*MockAudioDevice)(nil)
	_ hal.PacketSource       = (*MockAudioDevice)(nil)
	_ hal.CapabilityReporter = (*MockAudioDevice)(nil)
)

// MockAudioDriver discovers a fixed set of MockAudioDevices, simulating a
// hardware family whose devices are known in advance, and can mint new
// ones on demand from a DeviceConfig.
type MockAudioDriver struct {
	mu      sync.Mutex
	devices []*MockAudioDevice
}

// NewMockAudioDriver returns a driver reporting the given devices.
func NewMockAudioDriver(devices ...*MockAudioDevice) *MockAudioDriver {
	return &MockAudioDriver{devices: devices}
}

func (d *MockAudioDriver) Name() string { return "mockaudio" }

func (d *MockAudioDriver) Discover(ctx context.Context) ([]hal.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]hal.Device, len(d.devices))
	for i, dev := range d.devices {
		out[i] = dev
	}
	return out, nil
}

// Create instantiates a new simulated device from cfg and adds it to the
// set future Discover calls report. The sine frequency is fixed; the
// channel count follows the mapping's physical side.
func (d *MockAudioDriver) Create(deviceID string, cfg hal.DeviceConfig) (hal.Device, error) {
	channels := cfg.ChannelMapping.PhysicalChannels
	if channels <= 0 {
		channels = 1
	}
	dev := NewMockAudioDevice(deviceID, cfg.SampleRate, channels, 440.0)
	if cfg.BufferFrames > 0 {
		dev.frameSize = cfg.BufferFrames
	}
	d.mu.Lock()
	d.devices = append(d.devices, dev)
	d.mu.Unlock()
	return dev, nil
}

var (
	_ hal.Driver        = (*MockAudioDriver)(nil)
	_ hal.DeviceFactory = (*MockAudioDriver)(nil)
)
