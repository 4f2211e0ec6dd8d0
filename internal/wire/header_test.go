package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeBinaryFrameRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	encoded := EncodeBinaryFrame(FrameKindRingBufferChunk, payload)

	kind, decoded, err := DecodeBinaryFrame(encoded)
	require.NoError(t, err)
	require.Equal(t, FrameKindRingBufferChunk, kind)
	require.Equal(t, payload, decoded)
}

func TestDecodeBinaryFrameRejectsShortInput(t *testing.T) {
	_, _, err := DecodeBinaryFrame([]byte{1, 2})
	require.Error(t, err)
}

func TestDecodeBinaryFrameRejectsTruncatedPayload(t *testing.T) {
	frame := EncodeBinaryFrame(FrameKindPacketSample, []byte{1, 2, 3})
	_, _, err := DecodeBinaryFrame(frame[:len(frame)-2])
	require.Error(t, err)
}
