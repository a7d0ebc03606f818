package protocol

import "encoding/binary"

// Checksum computes the UBX 8-bit Fletcher checksum over data.
//
// Both accumulators wrap modulo 256:
//
//	ckA += b
//	ckB += ckA
func Checksum(data []byte) (ckA, ckB byte) {
	for _, b := range data {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}

// FrameChecksum computes the checksum a frame carrying payload must end with.
// The checksum covers class, id, the little-endian payload length and the
// payload itself (everything between the sync marker and the checksum).
func FrameChecksum(class, id byte, payload []byte) (ckA, ckB byte) {
	var header [4]byte
	header[0] = class
	header[1] = id
	binary.LittleEndian.PutUint16(header[2:], uint16(len(payload)))

	ckA, ckB = Checksum(header[:])
	for _, b := range payload {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}
