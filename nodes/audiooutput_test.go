package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/audiotab-dev/audiotab"
	"github.com/audiotab-dev/audiotab/internal/hal"
)

// fakeSink is a minimal output-capable Device recording every written
// Packet.
type fakeSink struct {
	id      string
	packets []*audiotab.Packet
	closed  bool
}

func (f *fakeSink) ID() string                      { return f.id }
func (f *fakeSink) State() hal.DeviceState          { return hal.DeviceStateRunning }
func (f *fakeSink) Open(ctx context.Context) error  { return nil }
func (f *fakeSink) Start(ctx context.Context) error { return nil }
func (f *fakeSink) Stop(ctx context.Context) error  { return nil }
func (f *fakeSink) Close(ctx context.Context) error { f.closed = true; return nil }
func (f *fakeSink) Write(ctx context.Context, p *audiotab.Packet) error {
	f.packets = append(f.packets, p)
	return nil
}

var _ hal.PacketSink = (*fakeSink)(nil)

func TestAudioOutputNodeResolvesDeviceAndWrites(t *testing.T) {
	sink := &fakeSink{id: "out-1"}
	SetOutputDeviceResolver(func(deviceID string) (hal.PacketSink, error) {
		require.Equal(t, "out-1", deviceID)
		return sink, nil
	})
	defer SetOutputDeviceResolver(nil)

	n := NewAudioOutputNode()
	require.NoError(t, n.OnCreate(context.Background(), map[string]any{
		"device_id": "out-1", "channels": 1, "format": "i16",
	}))

	f := audiotab.NewFrame(0, 1)
	f.Payload["ch0"] = []float64{0.5, -0.5}

	out, err := n.Process(context.Background(), f)
	require.NoError(t, err)
	require.Nil(t, out)
	require.Len(t, sink.packets, 1)
	require.Equal(t, audiotab.FormatI16, sink.packets[0].Format)
	require.Equal(t, 1, sink.packets[0].NumChannels)

	require.NoError(t, n.OnDestroy(context.Background()))
	require.True(t, sink.closed)
}

func TestAudioOutputNodeRequiresDeviceID(t *testing.T) {
	n := NewAudioOutputNode()
	err := n.OnCreate(context.Background(), nil)
	require.Error(t, err)
	require.True(t, audiotab.IsCode(err, audiotab.ErrCodeInvalidConfig))
}

func TestAudioOutputDirectConstructionSkipsResolver(t *testing.T) {
	sink := &fakeSink{id: "out-2"}
	n := NewAudioOutput(sink, audiotab.FormatF64, 48000, []string{"ch0"})
	require.NoError(t, n.OnCreate(context.Background(), nil))

	f := audiotab.NewFrame(0, 1)
	f.Payload["ch0"] = []float64{1.0}
	_, err := n.Process(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, sink.packets, 1)
	require.Equal(t, audiotab.FormatF64, sink.packets[0].Format)
}
