package protocol

import (
	"encoding/binary"
	"fmt"
)

// Message classes
const (
	ClassNAV = 0x01
)

// NAV message IDs
const (
	MsgIDNavPosECEF = 0x01 // ECEF position
	MsgIDNavSol     = 0x06 // Navigation solution (produced, never consumed)
	MsgIDNavPVT     = 0x07 // Position, velocity, time
	MsgIDNavVelECEF = 0x11 // ECEF velocity
	MsgIDNavTimeUTC = 0x21 // UTC time
)

// Fixed payload sizes
const (
	NavPVTSize     = 92
	NavPosECEFSize = 20
	NavVelECEFSize = 20
	NavTimeUTCSize = 20
	NavSolSize     = 52
)

// NAV-PVT valid bits
const (
	PVTValidDate     = 0x01
	PVTValidTime     = 0x02
	PVTFullyResolved = 0x04
	PVTValidMag      = 0x08
)

// NAV-PVT flags bits
const (
	PVTFlagGNSSFixOK    = 0x01
	PVTFlagDiffSoln     = 0x02
	PVTFlagPSMState     = 0x1C // 3-bit power save mode state
	PVTFlagHeadVehValid = 0x20
	PVTFlagCarrSoln     = 0xC0 // 2-bit carrier phase range solution status
)

// NAV-TIMEUTC valid bits
const (
	TimeUTCValidTOW  = 0x01
	TimeUTCValidWKN  = 0x02
	TimeUTCValidUTC  = 0x04
	TimeUTCStandards = 0xF0 // 4-bit UTC standard identifier
)

// Fix types shared by NAV-PVT fixType and NAV-SOL gpsFix
const (
	FixNone          = 0x00
	FixDeadReckoning = 0x01
	Fix2D            = 0x02
	Fix3D            = 0x03
	FixGNSSDR        = 0x04
	FixTimeOnly      = 0x05
)

// Message is a decoded UBX record.
type Message interface {
	Class() byte
	ID() byte
	// TimeOfWeek returns the GPS time of week (ms) of the navigation epoch
	TimeOfWeek() uint32
	String() string
}

// NavPVT (0x01 0x07) - Navigation position velocity time solution
type NavPVT struct {
	ITOW  uint32 `json:"iTOW"`  // GPS time of week (ms)
	Year  uint16 `json:"year"`  // UTC year
	Month uint8  `json:"month"` // 1..12
	Day   uint8  `json:"day"`   // 1..31
	Hour  uint8  `json:"hour"`  // 0..23
	Min   uint8  `json:"min"`   // 0..59
	Sec   uint8  `json:"sec"`   // 0..60
	Valid uint8  `json:"valid"` // PVTValid* bits
	TAcc  uint32 `json:"tAcc"`  // Time accuracy (ns)
	Nano  int32  `json:"nano"`  // Fraction of second (ns)

	FixType uint8 `json:"fixType"` // Fix* constants
	Flags   uint8 `json:"flags"`   // PVTFlag* bits
	Flags2  uint8 `json:"flags2"`
	NumSV   uint8 `json:"numSV"`

	Lon    int32  `json:"lon"`    // deg * 1e-7
	Lat    int32  `json:"lat"`    // deg * 1e-7
	Height int32  `json:"height"` // Height above ellipsoid (mm)
	HMSL   int32  `json:"hMSL"`   // Height above mean sea level (mm)
	HAcc   uint32 `json:"hAcc"`   // mm
	VAcc   uint32 `json:"vAcc"`   // mm

	VelN    int32  `json:"velN"`    // mm/s
	VelE    int32  `json:"velE"`    // mm/s
	VelD    int32  `json:"velD"`    // mm/s
	GSpeed  int32  `json:"gSpeed"`  // Ground speed (mm/s)
	HeadMot int32  `json:"headMot"` // Heading of motion (deg * 1e-5)
	SAcc    uint32 `json:"sAcc"`    // mm/s
	HeadAcc uint32 `json:"headAcc"` // deg * 1e-5

	PDOP    uint16 `json:"pDOP"`    // * 0.01
	HeadVeh int32  `json:"headVeh"` // Heading of vehicle (deg * 1e-5)
	MagDec  int16  `json:"magDec"`  // deg * 1e-2
	MagAcc  uint16 `json:"magAcc"`  // deg * 1e-2
}

func (m *NavPVT) Class() byte        { return ClassNAV }
func (m *NavPVT) ID() byte           { return MsgIDNavPVT }
func (m *NavPVT) TimeOfWeek() uint32 { return m.ITOW }

func (m *NavPVT) String() string {
	return fmt.Sprintf("NAV-PVT{iTOW=%d, %04d-%02d-%02d %02d:%02d:%02d, fix=%d, flags=0x%02x, numSV=%d, lat=%d, lon=%d, hMSL=%d}",
		m.ITOW, m.Year, m.Month, m.Day, m.Hour, m.Min, m.Sec, m.FixType, m.Flags, m.NumSV, m.Lat, m.Lon, m.HMSL)
}

// NavPosECEF (0x01 0x01) - Position solution in ECEF
type NavPosECEF struct {
	ITOW  uint32 `json:"iTOW"`
	EcefX int32  `json:"ecefX"` // cm
	EcefY int32  `json:"ecefY"` // cm
	EcefZ int32  `json:"ecefZ"` // cm
	PAcc  uint32 `json:"pAcc"`  // cm
}

func (m *NavPosECEF) Class() byte        { return ClassNAV }
func (m *NavPosECEF) ID() byte           { return MsgIDNavPosECEF }
func (m *NavPosECEF) TimeOfWeek() uint32 { return m.ITOW }

func (m *NavPosECEF) String() string {
	return fmt.Sprintf("NAV-POSECEF{iTOW=%d, x=%d, y=%d, z=%d, pAcc=%d}",
		m.ITOW, m.EcefX, m.EcefY, m.EcefZ, m.PAcc)
}

// NavVelECEF (0x01 0x11) - Velocity solution in ECEF
type NavVelECEF struct {
	ITOW   uint32 `json:"iTOW"`
	EcefVX int32  `json:"ecefVX"` // cm/s
	EcefVY int32  `json:"ecefVY"` // cm/s
	EcefVZ int32  `json:"ecefVZ"` // cm/s
	SAcc   uint32 `json:"sAcc"`   // cm/s
}

func (m *NavVelECEF) Class() byte        { return ClassNAV }
func (m *NavVelECEF) ID() byte           { return MsgIDNavVelECEF }
func (m *NavVelECEF) TimeOfWeek() uint32 { return m.ITOW }

func (m *NavVelECEF) String() string {
	return fmt.Sprintf("NAV-VELECEF{iTOW=%d, vx=%d, vy=%d, vz=%d, sAcc=%d}",
		m.ITOW, m.EcefVX, m.EcefVY, m.EcefVZ, m.SAcc)
}

// NavTimeUTC (0x01 0x21) - UTC time solution
type NavTimeUTC struct {
	ITOW  uint32 `json:"iTOW"`
	TAcc  uint32 `json:"tAcc"` // ns
	Nano  int32  `json:"nano"` // ns
	Year  uint16 `json:"year"`
	Month uint8  `json:"month"`
	Day   uint8  `json:"day"`
	Hour  uint8  `json:"hour"`
	Min   uint8  `json:"min"`
	Sec   uint8  `json:"sec"`
	Valid uint8  `json:"valid"` // TimeUTCValid* bits
}

func (m *NavTimeUTC) Class() byte        { return ClassNAV }
func (m *NavTimeUTC) ID() byte           { return MsgIDNavTimeUTC }
func (m *NavTimeUTC) TimeOfWeek() uint32 { return m.ITOW }

func (m *NavTimeUTC) String() string {
	return fmt.Sprintf("NAV-TIMEUTC{iTOW=%d, %04d-%02d-%02d %02d:%02d:%02d, nano=%d, valid=0x%02x}",
		m.ITOW, m.Year, m.Month, m.Day, m.Hour, m.Min, m.Sec, m.Nano, m.Valid)
}

// UnknownMessage - Fallback for messages that are forwarded without decoding
type UnknownMessage struct {
	MsgClass byte
	MsgID    byte
	Data     []byte
}

func (m *UnknownMessage) Class() byte        { return m.MsgClass }
func (m *UnknownMessage) ID() byte           { return m.MsgID }
func (m *UnknownMessage) TimeOfWeek() uint32 { return 0 }

func (m *UnknownMessage) String() string {
	return fmt.Sprintf("Unknown{class=0x%02x, id=0x%02x, len=%d}", m.MsgClass, m.MsgID, len(m.Data))
}

// IsKnown reports whether class/id is one of the decoded NAV records.
func IsKnown(class, id byte) bool {
	if class != ClassNAV {
		return false
	}
	switch id {
	case MsgIDNavPVT, MsgIDNavPosECEF, MsgIDNavVelECEF, MsgIDNavTimeUTC:
		return true
	default:
		return false
	}
}

// ParseMessage decodes the frame payload according to its class and ID.
// Frames that are not one of the four decoded NAV records come back as
// *UnknownMessage with a nil error.
func (f *Frame) ParseMessage() (Message, error) {
	if f.Class == ClassNAV {
		switch f.ID {
		case MsgIDNavPVT:
			return ParseNavPVT(f.Payload)
		case MsgIDNavPosECEF:
			return ParseNavPosECEF(f.Payload)
		case MsgIDNavVelECEF:
			return ParseNavVelECEF(f.Payload)
		case MsgIDNavTimeUTC:
			return ParseNavTimeUTC(f.Payload)
		}
	}
	return &UnknownMessage{
		MsgClass: f.Class,
		MsgID:    f.ID,
		Data:     f.Payload,
	}, nil
}

func checkLength(name string, payload []byte, want int) error {
	if len(payload) < want {
		return fmt.Errorf("%s: %w: %d bytes (minimum %d)", name, ErrPayloadTooShort, len(payload), want)
	}
	return nil
}

// ParseNavPVT decodes a NAV-PVT payload (0x01 0x07)
func ParseNavPVT(payload []byte) (*NavPVT, error) {
	if err := checkLength("NAV-PVT", payload, NavPVTSize); err != nil {
		return nil, err
	}

	le := binary.LittleEndian
	return &NavPVT{
		ITOW:    le.Uint32(payload[0:4]),
		Year:    le.Uint16(payload[4:6]),
		Month:   payload[6],
		Day:     payload[7],
		Hour:    payload[8],
		Min:     payload[9],
		Sec:     payload[10],
		Valid:   payload[11],
		TAcc:    le.Uint32(payload[12:16]),
		Nano:    int32(le.Uint32(payload[16:20])),
		FixType: payload[20],
		Flags:   payload[21],
		Flags2:  payload[22],
		NumSV:   payload[23],
		Lon:     int32(le.Uint32(payload[24:28])),
		Lat:     int32(le.Uint32(payload[28:32])),
		Height:  int32(le.Uint32(payload[32:36])),
		HMSL:    int32(le.Uint32(payload[36:40])),
		HAcc:    le.Uint32(payload[40:44]),
		VAcc:    le.Uint32(payload[44:48]),
		VelN:    int32(le.Uint32(payload[48:52])),
		VelE:    int32(le.Uint32(payload[52:56])),
		VelD:    int32(le.Uint32(payload[56:60])),
		GSpeed:  int32(le.Uint32(payload[60:64])),
		HeadMot: int32(le.Uint32(payload[64:68])),
		SAcc:    le.Uint32(payload[68:72]),
		HeadAcc: le.Uint32(payload[72:76]),
		PDOP:    le.Uint16(payload[76:78]),
		// [78-83] reserved
		HeadVeh: int32(le.Uint32(payload[84:88])),
		MagDec:  int16(le.Uint16(payload[88:90])),
		MagAcc:  le.Uint16(payload[90:92]),
	}, nil
}

// ParseNavPosECEF decodes a NAV-POSECEF payload (0x01 0x01)
func ParseNavPosECEF(payload []byte) (*NavPosECEF, error) {
	if err := checkLength("NAV-POSECEF", payload, NavPosECEFSize); err != nil {
		return nil, err
	}

	le := binary.LittleEndian
	return &NavPosECEF{
		ITOW:  le.Uint32(payload[0:4]),
		EcefX: int32(le.Uint32(payload[4:8])),
		EcefY: int32(le.Uint32(payload[8:12])),
		EcefZ: int32(le.Uint32(payload[12:16])),
		PAcc:  le.Uint32(payload[16:20]),
	}, nil
}

// ParseNavVelECEF decodes a NAV-VELECEF payload (0x01 0x11)
func ParseNavVelECEF(payload []byte) (*NavVelECEF, error) {
	if err := checkLength("NAV-VELECEF", payload, NavVelECEFSize); err != nil {
		return nil, err
	}

	le := binary.LittleEndian
	return &NavVelECEF{
		ITOW:   le.Uint32(payload[0:4]),
		EcefVX: int32(le.Uint32(payload[4:8])),
		EcefVY: int32(le.Uint32(payload[8:12])),
		EcefVZ: int32(le.Uint32(payload[12:16])),
		SAcc:   le.Uint32(payload[16:20]),
	}, nil
}

// ParseNavTimeUTC decodes a NAV-TIMEUTC payload (0x01 0x21)
func ParseNavTimeUTC(payload []byte) (*NavTimeUTC, error) {
	if err := checkLength("NAV-TIMEUTC", payload, NavTimeUTCSize); err != nil {
		return nil, err
	}

	le := binary.LittleEndian
	return &NavTimeUTC{
		ITOW:  le.Uint32(payload[0:4]),
		TAcc:  le.Uint32(payload[4:8]),
		Nano:  int32(le.Uint32(payload[8:12])),
		Year:  le.Uint16(payload[12:14]),
		Month: payload[14],
		Day:   payload[15],
		Hour:  payload[16],
		Min:   payload[17],
		Sec:   payload[18],
		Valid: payload[19],
	}, nil
}

// MessageName returns a human-readable name for a class/id pair
func MessageName(class, id byte) string {
	if class == ClassNAV {
		switch id {
		case MsgIDNavPosECEF:
			return "NAV-POSECEF"
		case MsgIDNavSol:
			return "NAV-SOL"
		case MsgIDNavPVT:
			return "NAV-PVT"
		case MsgIDNavVelECEF:
			return "NAV-VELECEF"
		case MsgIDNavTimeUTC:
			return "NAV-TIMEUTC"
		default:
			return fmt.Sprintf("NAV-0x%02x", id)
		}
	}
	return fmt.Sprintf("0x%02x-0x%02x", class, id)
}
