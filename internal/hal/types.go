// Package hal defines the hardware abstraction layer: the Device state
// machine, the Driver discovery interface, and a registry of configured
// hardware endpoints.
package hal

import (
	"context"
	"fmt"

	"github.com/audiotab-dev/audiotab"
)

// DeviceState enumerates the lifecycle states of a Device. The state
// machine is Unopened -> Opened -> Running <-> Stopped -> Closed, with a
// terminal Error state reachable from any non-terminal state.
type DeviceState int

const (
	DeviceStateUnopened DeviceState = iota
	DeviceStateOpened
	DeviceStateRunning
	DeviceStateStopped
	DeviceStateClosed
	DeviceStateError
)

func (s DeviceState) String() string {
	switch s {
	case DeviceStateUnopened:
		return "unopened"
	case DeviceStateOpened:
		return "opened"
	case DeviceStateRunning:
		return "running"
	case DeviceStateStopped:
		return "stopped"
	case DeviceStateClosed:
		return "closed"
	case DeviceStateError:
		return "error"
	default:
		return "unknown"
	}
}

// validTransitions enumerates the allowed Device state transitions. Error
// is reachable from anywhere and is intentionally left out of this table;
// callers moving a Device to Error should bypass ValidateTransition.
var validTransitions = map[DeviceState][]DeviceState{
	DeviceStateUnopened: {DeviceStateOpened},
	DeviceStateOpened:   {DeviceStateRunning, DeviceStateClosed},
	DeviceStateRunning:  {DeviceStateStopped},
	DeviceStateStopped:  {DeviceStateRunning, DeviceStateClosed},
	DeviceStateClosed:   {},
	DeviceStateError:    {},
}

// ValidateTransition reports whether moving from `from` to `to` is legal
// per the Device state machine.
func ValidateTransition(from, to DeviceState) error {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return audiotab.NewError("hal.ValidateTransition", audiotab.ErrCodeInvalidTransition,
		fmt.Sprintf("cannot transition from %s to %s", from, to))
}

// Device is the capability interface for one hardware or simulated
// endpoint. Device itself covers only identity, state and lifecycle; Packet
// I/O is on PacketSource (Read, for input Devices) and PacketSink (Write,
// for output Devices).
type Device interface {
	ID() string
	State() DeviceState
	Open(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Close(ctx context.Context) error
}

// PacketSource is implemented by input-capable Devices: Read blocks until
// the next Packet is available or ctx is cancelled.
type PacketSource interface {
	Device
	Read(ctx context.Context) (*audiotab.Packet, error)
}

// PacketSink is implemented by output-capable Devices.
type PacketSink interface {
	Device
	Write(ctx context.Context, p *audiotab.Packet) error
}

// Driver discovers Devices of one hardware family. DiscoverAll (on
// Registry) swallows per-driver Discover failures so one broken driver
// cannot block discovery of the rest.
type Driver interface {
	Name() string
	Discover(ctx context.Context) ([]Device, error)
}

// DeviceConfig carries the streaming parameters a Driver needs to
// instantiate a Device for one registered hardware endpoint: the
// operator-facing name, declared rate and sample encoding, packet size in
// frames, physical-to-virtual channel routing, and the linear calibration
// applied to decoded samples.
type DeviceConfig struct {
	Name           string
	SampleRate     uint32
	Format         audiotab.SampleFormat
	BufferFrames   int
	ChannelMapping audiotab.ChannelMapping
	Calibration    audiotab.Calibration
}

// DefaultDeviceConfig fills the defaults the kernel's startup sequence
// applies when a registration doesn't pin them: F32 samples, 1024-frame
// packets, identity channel mapping.
func DefaultDeviceConfig(name string, sampleRate uint32, channels int) DeviceConfig {
	return DeviceConfig{
		Name:           name,
		SampleRate:     sampleRate,
		Format:         audiotab.FormatF32,
		BufferFrames:   1024,
		ChannelMapping: audiotab.DefaultChannelMapping(channels),
	}
}

// DeviceFactory is an optional Driver capability: drivers that can
// instantiate a Device on demand from a DeviceConfig, rather than only
// reporting what Discover finds, implement it. Registry.Create dispatches
// through this.
type DeviceFactory interface {
	Create(deviceID string, cfg DeviceConfig) (Device, error)
}

// Capabilities declares what a Device supports, advisory for config
// validation and UI display.
type Capabilities struct {
	Formats     []audiotab.SampleFormat
	SampleRates []uint32
	MaxChannels int
	Input       bool
	Output      bool
}

// CapabilityReporter is an optional Device capability for endpoints that
// can describe their supported formats and directions.
type CapabilityReporter interface {
	Capabilities() Capabilities
}
