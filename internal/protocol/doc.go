// Package protocol implements the u-blox UBX binary protocol subset relayed
// by ubxrelay.
//
// This package handles frame extraction, checksum verification, decoding of
// the navigation messages the relay consumes, and synthesis of the NAV-SOL
// message the relay produces.
//
// # Frame Format
//
// Every UBX frame has this structure (all integers little-endian):
//   - Sync marker: 0xB5 0x62
//   - Message class: 1 byte
//   - Message ID: 1 byte
//   - Payload length: 2 bytes
//   - Payload: length bytes
//   - Checksum: 2 bytes (8-bit Fletcher over class..payload)
//
// # Message Types
//
// Consumed (class 0x01, NAV):
//   - 0x07 NAV-PVT: time, geodetic position, NED velocity, fix status
//   - 0x01 NAV-POSECEF: ECEF position
//   - 0x11 NAV-VELECEF: ECEF velocity
//   - 0x21 NAV-TIMEUTC: UTC time
//
// Produced:
//   - 0x06 NAV-SOL: built from the latest NAV-PVT, NAV-VELECEF and
//     (optionally) NAV-POSECEF each time a NAV-VELECEF arrives
//
// All values are kept in their raw integer encoding (mm, cm, deg*1e-7, ...).
//
// # Usage Example - Stream Scanning
//
//	for {
//	    ex := protocol.TryExtract(buf)
//	    switch ex.Status {
//	    case protocol.NeedMoreBytes:
//	        // read more input
//	    case protocol.Discard:
//	        buf = buf[ex.Consumed:]
//	    case protocol.FrameReady:
//	        res := handler.Handle(ex.Frame)
//	        buf = buf[ex.Consumed:]
//	    }
//	}
//
// # Resynchronization
//
// TryExtract never consumes more than it must: garbage before a sync marker
// is discarded in one step, and a checksum mismatch discards a single byte so
// that a valid frame overlapping a corrupt one is still recovered.
//
// # Error Handling
//
// Decoders return ErrPayloadTooShort (wrapped with the message name) instead
// of reading out of bounds. BuildNavSol returns ErrInsufficientData or
// ErrEpochMismatch when no solution can be produced. None of these are fatal
// to a stream.
//
// # Thread Safety
//
// Checksum, Encode, TryExtract and the Parse* functions are stateless and safe
// for concurrent use. NavState and Handler belong to a single stream.
package protocol
