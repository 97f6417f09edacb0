// Package wire implements the reudp frame header: one byte of packed
// type+version followed by a big-endian 32-bit sequence number.
package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// FrameType is the 4-bit datagram type carried in the high nibble of
// the header's first byte.
type FrameType byte

const (
	// User carries an application payload awaiting acknowledgment.
	User FrameType = 0
	// Ack acknowledges a previously received User frame's sequence.
	Ack FrameType = 1
)

// ProtocolVersion is the 4-bit version carried in the low nibble of
// the header's first byte. Version bits are currently unchecked on
// decode and preserved for forward compatibility.
const ProtocolVersion = 0

// HeaderSize is the fixed size of a reudp frame header in bytes.
const HeaderSize = 5

// ErrShortFrame is returned when a frame is too small to contain a header.
var ErrShortFrame = errors.New("reudp/wire: frame shorter than header")

// ErrUnknownType is returned when a decoded frame's type is neither User nor Ack.
var ErrUnknownType = errors.New("reudp/wire: unknown frame type")

func (t FrameType) String() string {
	switch t {
	case User:
		return "USER"
	case Ack:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}

// EncodeHeader packs a type+version byte and a big-endian sequence
// number into a fixed 5-byte header.
func EncodeHeader(t FrameType, seq uint32) [HeaderSize]byte {
	var out [HeaderSize]byte
	out[0] = byte((byte(t)&0x0F)<<4 | (ProtocolVersion & 0x0F))
	binary.BigEndian.PutUint32(out[1:5], seq)
	return out
}

// AppendHeader appends an encoded header followed by payload to dst,
// returning the extended slice. This is the usual way a caller builds
// a full wire frame in one allocation.
func AppendHeader(dst []byte, t FrameType, seq uint32, payload []byte) []byte {
	hdr := EncodeHeader(t, seq)
	dst = append(dst, hdr[:]...)
	dst = append(dst, payload...)
	return dst
}

// DecodeHeader decodes the header of b, returning the frame type, the
// sequence number, and the payload that follows the header.
//
// A frame shorter than HeaderSize or one declaring a type outside
// {User, Ack} is rejected; callers are expected to log and drop it
// rather than propagate the error further.
func DecodeHeader(b []byte) (t FrameType, seq uint32, payload []byte, err error) {
	if len(b) < HeaderSize {
		return 0, 0, nil, ErrShortFrame
	}
	typeID := FrameType((b[0] >> 4) & 0x0F)
	if typeID != User && typeID != Ack {
		return 0, 0, nil, errors.Wrapf(ErrUnknownType, "type id %d", typeID)
	}
	seq = binary.BigEndian.Uint32(b[1:5])
	return typeID, seq, b[HeaderSize:], nil
}
