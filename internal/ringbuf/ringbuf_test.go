package ringbuf

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/audiotab-dev/audiotab"
)

func TestCreateWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.ring")
	rb, err := Create(path, 48000, 2, 16)
	require.NoError(t, err)
	defer rb.Close()

	require.Equal(t, uint32(48000), rb.SampleRate())
	require.Equal(t, 2, rb.Channels())
	require.Equal(t, 16, rb.Capacity())

	require.NoError(t, rb.WriteFrame([]float64{1.0, -1.0}))
	require.NoError(t, rb.WriteFrame([]float64{2.0, -2.0}))

	require.Equal(t, uint64(2), rb.WriteSequence())
	require.Equal(t, []float64{1.0, 2.0}, rb.ReadChannel(0, 2))
	require.Equal(t, []float64{-1.0, -2.0}, rb.ReadChannel(1, 2))
}

func TestHeaderLayoutOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.ring")
	rb, err := Create(path, 48000, 1, 48000*30)
	require.NoError(t, err)
	rb.Close()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	require.Equal(t, []byte("AUDITAB!"), raw[0:8])
	require.Equal(t, uint64(1), binary.LittleEndian.Uint64(raw[8:16]))
	require.Equal(t, uint64(48000), binary.LittleEndian.Uint64(raw[16:24]))
	require.Equal(t, uint64(1), binary.LittleEndian.Uint64(raw[24:32]))
	require.Equal(t, uint64(48000*30), binary.LittleEndian.Uint64(raw[32:40]))
	require.Equal(t, uint64(0), binary.LittleEndian.Uint64(raw[40:48]))
}

func TestOpenValidatesMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.ring")
	rb, err := Create(path, 48000, 1, 4)
	require.NoError(t, err)
	rb.Close()

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, uint32(48000), reopened.SampleRate())
}

func TestWriteFrameRejectsWrongChannelCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.ring")
	rb, err := Create(path, 48000, 2, 4)
	require.NoError(t, err)
	defer rb.Close()

	err = rb.WriteFrame([]float64{1.0})
	require.Error(t, err)
}

func TestPublishFrameWritesEveryPositionAndSilencesMissingChannels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.ring")
	rb, err := Create(path, 48000, 2, 8)
	require.NoError(t, err)
	defer rb.Close()

	f := audiotab.NewFrame(0, 1)
	f.Payload["ch0"] = []float64{1, 2, 3}

	require.NoError(t, rb.PublishFrame(f))
	require.Equal(t, uint64(3), rb.WriteSequence())
	require.Equal(t, []float64{1, 2, 3}, rb.ReadChannel(0, 3))
	require.Equal(t, []float64{0, 0, 0}, rb.ReadChannel(1, 3))
}

func TestReadChannelWraparound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.ring")
	rb, err := Create(path, 48000, 1, 4)
	require.NoError(t, err)
	defer rb.Close()

	for i := 0; i < 6; i++ {
		require.NoError(t, rb.WriteFrame([]float64{float64(i)}))
	}

	require.Equal(t, []float64{2, 3, 4, 5}, rb.ReadChannel(0, 4))
}
