package nodes

import (
	"context"
	"sync/atomic"

	"github.com/audiotab-dev/audiotab"
	"github.com/audiotab-dev/audiotab/internal/hal"
)

// OutputDeviceResolver maps the device_id named in an audio_output
// node's config to a live output-capable Device. Installed by the
// daemon, which is the only layer that knows the hardware registry.
type OutputDeviceResolver func(deviceID string) (hal.PacketSink, error)

var outputResolver atomic.Value

// SetOutputDeviceResolver installs the process-wide resolver the
// audio_output catalog entry uses to bind hardware at OnCreate.
func SetOutputDeviceResolver(r OutputDeviceResolver) {
	outputResolver.Store(r)
}

// AudioOutput converts incoming Frames to Packets and writes them to a
// bound PacketSink Device, the device-backed sink half of a graph. The
// device binds either directly through NewAudioOutput or at OnCreate
// from the node's device_id parameter via the installed resolver.
type AudioOutput struct {
	audiotab.BaseNode

	sink       hal.PacketSink
	converter  *audiotab.Converter
	format     audiotab.SampleFormat
	sampleRate uint32
	channels   []string
}

// NewAudioOutput binds sink directly, for callers wiring a graph to
// hardware by hand. channels gives the Frame channel names to
// interleave, in order.
func NewAudioOutput(sink hal.PacketSink, format audiotab.SampleFormat, sampleRate uint32, channels []string) *AudioOutput {
	return &AudioOutput{
		sink:       sink,
		converter:  audiotab.NewConverter(),
		format:     format,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// NewAudioOutputNode is the catalog factory; the device binds at
// OnCreate through the installed OutputDeviceResolver.
func NewAudioOutputNode() audiotab.Node {
	return &AudioOutput{
		converter:  audiotab.NewConverter(),
		format:     audiotab.FormatF32,
		sampleRate: 48000,
	}
}

func (a *AudioOutput) OnCreate(ctx context.Context, params map[string]any) error {
	if a.sink == nil {
		deviceID := stringParam(params, "device_id", "")
		if deviceID == "" {
			return audiotab.NewError("AudioOutput.OnCreate",
				audiotab.ErrCodeInvalidConfig, "device_id is required")
		}
		resolver, _ := outputResolver.Load().(OutputDeviceResolver)
		if resolver == nil {
			return audiotab.NewError("AudioOutput.OnCreate",
				audiotab.ErrCodeInvalidConfig, "no output device resolver configured")
		}
		sink, err := resolver(deviceID)
		if err != nil {
			return err
		}
		a.sink = sink
	}

	a.sampleRate = uint32(floatParam(params, "sample_rate", float64(a.sampleRate)))
	switch stringParam(params, "format", "") {
	case "i16":
		a.format = audiotab.FormatI16
	case "i24":
		a.format = audiotab.FormatI24
	case "i32":
		a.format = audiotab.FormatI32
	case "f32":
		a.format = audiotab.FormatF32
	case "f64":
		a.format = audiotab.FormatF64
	}
	if n := intParam(params, "channels", 0); n > 0 {
		a.channels = make([]string, n)
		for i := range a.channels {
			a.channels[i] = audiotab.ChannelLabel(i)
		}
	}
	if a.channels == nil {
		a.channels = []string{audiotab.ChannelLabel(0), audiotab.ChannelLabel(1)}
	}
	return nil
}

func (a *AudioOutput) Process(ctx context.Context, in *audiotab.Frame) (*audiotab.Frame, error) {
	packet, err := a.converter.ToPacket(in, a.channels, a.format, a.sampleRate)
	if err != nil {
		return nil, err
	}
	if err := a.sink.Write(ctx, packet); err != nil {
		return nil, audiotab.WrapError("AudioOutput.Process", err)
	}
	return nil, nil
}

func (a *AudioOutput) OnDestroy(ctx context.Context) error {
	if a.sink == nil {
		return nil
	}
	return a.sink.Close(ctx)
}
