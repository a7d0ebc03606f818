package protocol

import "errors"

var (
	// ErrPayloadTooShort is returned by decoders when a payload is shorter
	// than the fixed layout of its message type. No record is produced.
	ErrPayloadTooShort = errors.New("payload too short")

	// ErrPayloadTooLarge is returned by Encode when a payload does not fit
	// the 16-bit length field.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrInsufficientData is returned by the solution builder when the
	// navigation state lacks a NAV-PVT or NAV-VELECEF record.
	ErrInsufficientData = errors.New("insufficient navigation data")

	// ErrEpochMismatch is returned by the solution builder, when epoch
	// checking is enabled, if the source records carry different iTOW values.
	ErrEpochMismatch = errors.New("navigation records from different epochs")
)
