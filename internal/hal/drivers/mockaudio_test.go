package drivers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/audiotab-dev/audiotab"
	"github.com/audiotab-dev/audiotab/internal/hal"
)

func TestMockAudioDeviceLifecycle(t *testing.T) {
	dev := NewMockAudioDevice("dev-1", 48000, 1, 440.0)
	ctx := context.Background()

	require.NoError(t, dev.Open(ctx))
	require.Equal(t, hal.DeviceStateOpened, dev.State())

	require.NoError(t, dev.Start(ctx))
	require.Equal(t, hal.DeviceStateRunning, dev.State())

	readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	p, err := dev.Read(readCtx)
	require.NoError(t, err)
	require.Equal(t, 1, p.NumChannels)
	require.Greater(t, p.FrameCount(), 0)

	require.NoError(t, dev.Stop(ctx))
	require.NoError(t, dev.Close(ctx))
}

func TestMockAudioDeviceStartWhileRunningFails(t *testing.T) {
	dev := NewMockAudioDevice("dev-1", 48000, 1, 440.0)
	ctx := context.Background()

	require.NoError(t, dev.Open(ctx))
	require.NoError(t, dev.Start(ctx))
	defer dev.Stop(ctx)

	err := dev.Start(ctx)
	require.Error(t, err)
	require.True(t, audiotab.IsCode(err, audiotab.ErrCodeAlreadyStreaming))
}

func TestMockAudioDriverCreateAddsDiscoverableDevice(t *testing.T) {
	driver := NewMockAudioDriver()

	cfg := hal.DefaultDeviceConfig("bench input", 96000, 2)
	dev, err := driver.Create("dev-9", cfg)
	require.NoError(t, err)
	require.Equal(t, "dev-9", dev.ID())

	caps := dev.(hal.CapabilityReporter).Capabilities()
	require.True(t, caps.Input)
	require.Contains(t, caps.SampleRates, uint32(96000))

	devices, err := driver.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
}

func TestMockAudioDriverDiscover(t *testing.T) {
	dev := NewMockAudioDevice("dev-1", 48000, 2, 220.0)
	driver := NewMockAudioDriver(dev)

	devices, err := driver.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, "dev-1", devices[0].ID())
	require.Equal(t, "mockaudio", driver.Name())
}
