package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// UBX frame constants
const (
	SyncChar1 = 0xB5
	SyncChar2 = 0x62

	HeaderSize    = 6 // Sync(2) + Class + ID + Length(2)
	ChecksumSize  = 2
	FrameOverhead = HeaderSize + ChecksumSize

	// MaxPayloadSize is the largest payload the 16-bit length field can carry
	MaxPayloadSize = 0xFFFF
)

var syncMarker = []byte{SyncChar1, SyncChar2}

// Frame is one checksum-verified UBX frame.
//
// Frames returned by TryExtract alias the scanned buffer; copy the payload
// if it has to outlive the next buffer mutation.
type Frame struct {
	Class   byte
	ID      byte
	Length  uint16 // Declared payload length, always len(Payload)
	Payload []byte
}

// Bytes re-encodes the frame. The result is byte-identical to the wire frame
// it was extracted from.
func (f *Frame) Bytes() []byte {
	out, _ := Encode(f.Class, f.ID, f.Payload)
	return out
}

// Size returns the total number of wire bytes the frame occupies.
func (f *Frame) Size() int {
	return int(f.Length) + FrameOverhead
}

// String returns a debug representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{class=0x%02x, id=0x%02x, name=%s, len=%d}",
		f.Class, f.ID, MessageName(f.Class, f.ID), f.Length)
}

// Encode builds a complete wire frame:
//
//	[0-1]   0xB5 0x62      Sync marker
//	[2]     class          Message class
//	[3]     id             Message ID
//	[4-5]   length         Payload length (little-endian uint16)
//	[6+]    payload        Message payload
//	[N-2]   ckA, ckB       Checksum over class..payload
func Encode(class, id byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	frame := make([]byte, 0, len(payload)+FrameOverhead)
	frame = append(frame, SyncChar1, SyncChar2, class, id)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(payload)))
	frame = append(frame, payload...)

	ckA, ckB := Checksum(frame[2:])
	return append(frame, ckA, ckB), nil
}

// ExtractStatus tells the caller what TryExtract found at the buffer head.
type ExtractStatus int

const (
	// NeedMoreBytes means a frame may be starting but is not complete yet
	NeedMoreBytes ExtractStatus = iota
	// FrameReady means a checksum-valid frame starts at the buffer head
	FrameReady
	// Discard means the leading Consumed bytes cannot start a frame
	Discard
)

// String returns a human-readable status name
func (s ExtractStatus) String() string {
	switch s {
	case NeedMoreBytes:
		return "need_more_bytes"
	case FrameReady:
		return "frame"
	case Discard:
		return "discard"
	default:
		return fmt.Sprintf("ExtractStatus(%d)", int(s))
	}
}

// Extraction is the outcome of a single TryExtract call.
type Extraction struct {
	Status ExtractStatus
	// Frame is set when Status is FrameReady
	Frame *Frame
	// Consumed is the number of leading buffer bytes the caller must drop:
	// the whole frame for FrameReady, the garbage for Discard, 0 otherwise.
	Consumed int
	// ChecksumMismatch is set when a Discard(1) was caused by a bad checksum
	ChecksumMismatch bool
}

// TryExtract scans buf for the next frame.
//
// Every call either consumes bytes (FrameReady, Discard) or asks for more
// input (NeedMoreBytes), so a caller looping until NeedMoreBytes always
// terminates. A checksum mismatch drops exactly one byte, the first sync byte,
// so a frame hidden inside a corrupt one is still found.
func TryExtract(buf []byte) Extraction {
	if len(buf) == 0 {
		return Extraction{Status: NeedMoreBytes}
	}

	k := bytes.Index(buf, syncMarker)
	if k < 0 {
		// Keep a trailing 0xB5: the 0x62 completing the marker may arrive
		// with the next read.
		if buf[len(buf)-1] == SyncChar1 {
			if len(buf) == 1 {
				return Extraction{Status: NeedMoreBytes}
			}
			return Extraction{Status: Discard, Consumed: len(buf) - 1}
		}
		return Extraction{Status: Discard, Consumed: len(buf)}
	}
	if k > 0 {
		return Extraction{Status: Discard, Consumed: k}
	}

	if len(buf) < HeaderSize {
		return Extraction{Status: NeedMoreBytes}
	}

	class := buf[2]
	id := buf[3]
	length := binary.LittleEndian.Uint16(buf[4:6])

	total := int(length) + FrameOverhead
	if len(buf) < total {
		return Extraction{Status: NeedMoreBytes}
	}

	payload := buf[HeaderSize : HeaderSize+int(length)]
	ckA, ckB := FrameChecksum(class, id, payload)
	if buf[total-2] != ckA || buf[total-1] != ckB {
		return Extraction{Status: Discard, Consumed: 1, ChecksumMismatch: true}
	}

	return Extraction{
		Status: FrameReady,
		Frame: &Frame{
			Class:   class,
			ID:      id,
			Length:  length,
			Payload: payload,
		},
		Consumed: total,
	}
}
