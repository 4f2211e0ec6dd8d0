// Package wire holds small binary marshaling helpers used by the command
// server's binary websocket frames.
package wire

import (
	"encoding/binary"

	"github.com/audiotab-dev/audiotab"
)

// FrameKind tags a binary command-surface message so a client can dispatch
// without parsing the whole payload first.
type FrameKind byte

const (
	FrameKindRingBufferChunk FrameKind = 1
	FrameKindPacketSample    FrameKind = 2
)

// EncodeBinaryFrame prefixes payload with a 1-byte kind tag and a 4-byte
// little-endian length, matching the fixed little-endian convention used
// throughout the engine's binary formats (Packet sample encoding, ring
// buffer header fields).
func EncodeBinaryFrame(kind FrameKind, payload []byte) []byte {
	buf := make([]byte, 5+len(payload))
	buf[0] = byte(kind)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	return buf
}

// DecodeBinaryFrame splits a frame produced by EncodeBinaryFrame back into
// its kind and payload.
func DecodeBinaryFrame(data []byte) (FrameKind, []byte, error) {
	if len(data) < 5 {
		return 0, nil, audiotab.NewError("wire.DecodeBinaryFrame", audiotab.ErrCodeInvalidConfig, "frame too short")
	}
	kind := FrameKind(data[0])
	length := binary.LittleEndian.Uint32(data[1:5])
	if uint32(len(data)-5) < length {
		return 0, nil, audiotab.NewError("wire.DecodeBinaryFrame", audiotab.ErrCodeInvalidConfig, "declared length exceeds frame")
	}
	return kind, data[5 : 5+length], nil
}
