package protocol

import (
	"encoding/binary"
	"fmt"
	"time"
)

// DefaultWeek is the GPS week number written into synthesized NAV-SOL
// messages unless week derivation is enabled.
const DefaultWeek int16 = 2035

// GPS time constants used for week derivation
const (
	// LeapSeconds is the GPS-UTC offset in effect since 2017-01-01
	LeapSeconds = 18
	weekLength  = 7 * 24 * time.Hour
)

var gpsEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// NAV-SOL flags bits
const (
	SolFlagGPSFixOK = 0x01
	SolFlagDiffSoln = 0x02
	SolFlagWKNSet   = 0x04
	SolFlagTOWSet   = 0x08
)

// NavSol (0x01 0x06) - Navigation solution information.
// Relayed streams carry it as a message synthesized from NAV-PVT,
// NAV-POSECEF and NAV-VELECEF.
type NavSol struct {
	ITOW      uint32 `json:"iTOW"`
	FTOW      int32  `json:"fTOW"` // ns
	Week      int16  `json:"week"`
	GPSFix    uint8  `json:"gpsFix"`
	Flags     uint8  `json:"flags"` // SolFlag* bits
	EcefX     int32  `json:"ecefX"` // cm
	EcefY     int32  `json:"ecefY"` // cm
	EcefZ     int32  `json:"ecefZ"` // cm
	PAcc      uint32 `json:"pAcc"`  // cm
	EcefVX    int32  `json:"ecefVX"`
	EcefVY    int32  `json:"ecefVY"`
	EcefVZ    int32  `json:"ecefVZ"`
	SAcc      uint32 `json:"sAcc"`
	PDOP      uint16 `json:"pDOP"`
	Reserved1 uint8  `json:"-"`
	NumSV     uint8  `json:"numSV"`
	Reserved2 uint32 `json:"-"`
}

func (m *NavSol) Class() byte        { return ClassNAV }
func (m *NavSol) ID() byte           { return MsgIDNavSol }
func (m *NavSol) TimeOfWeek() uint32 { return m.ITOW }

func (m *NavSol) String() string {
	return fmt.Sprintf("NAV-SOL{iTOW=%d, week=%d, fix=%d, flags=0x%02x, pos=(%d,%d,%d), vel=(%d,%d,%d), numSV=%d}",
		m.ITOW, m.Week, m.GPSFix, m.Flags, m.EcefX, m.EcefY, m.EcefZ, m.EcefVX, m.EcefVY, m.EcefVZ, m.NumSV)
}

// MarshalBinary encodes the 52-byte NAV-SOL payload
func (m *NavSol) MarshalBinary() ([]byte, error) {
	p := make([]byte, 0, NavSolSize)
	le := binary.LittleEndian

	p = le.AppendUint32(p, m.ITOW)
	p = le.AppendUint32(p, uint32(m.FTOW))
	p = le.AppendUint16(p, uint16(m.Week))
	p = append(p, m.GPSFix, m.Flags)
	p = le.AppendUint32(p, uint32(m.EcefX))
	p = le.AppendUint32(p, uint32(m.EcefY))
	p = le.AppendUint32(p, uint32(m.EcefZ))
	p = le.AppendUint32(p, m.PAcc)
	p = le.AppendUint32(p, uint32(m.EcefVX))
	p = le.AppendUint32(p, uint32(m.EcefVY))
	p = le.AppendUint32(p, uint32(m.EcefVZ))
	p = le.AppendUint32(p, m.SAcc)
	p = le.AppendUint16(p, m.PDOP)
	p = append(p, m.Reserved1, m.NumSV)
	p = le.AppendUint32(p, m.Reserved2)

	return p, nil
}

// Frame encodes the solution as a complete 0x01 0x06 wire frame
func (m *NavSol) Frame() ([]byte, error) {
	payload, err := m.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return Encode(ClassNAV, MsgIDNavSol, payload)
}

// ParseNavSol decodes a NAV-SOL payload (0x01 0x06).
// Used to inspect relay output; the relay never consumes NAV-SOL.
func ParseNavSol(payload []byte) (*NavSol, error) {
	if err := checkLength("NAV-SOL", payload, NavSolSize); err != nil {
		return nil, err
	}

	le := binary.LittleEndian
	return &NavSol{
		ITOW:      le.Uint32(payload[0:4]),
		FTOW:      int32(le.Uint32(payload[4:8])),
		Week:      int16(le.Uint16(payload[8:10])),
		GPSFix:    payload[10],
		Flags:     payload[11],
		EcefX:     int32(le.Uint32(payload[12:16])),
		EcefY:     int32(le.Uint32(payload[16:20])),
		EcefZ:     int32(le.Uint32(payload[20:24])),
		PAcc:      le.Uint32(payload[24:28]),
		EcefVX:    int32(le.Uint32(payload[28:32])),
		EcefVY:    int32(le.Uint32(payload[32:36])),
		EcefVZ:    int32(le.Uint32(payload[36:40])),
		SAcc:      le.Uint32(payload[40:44]),
		PDOP:      le.Uint16(payload[44:46]),
		Reserved1: payload[46],
		NumSV:     payload[47],
		Reserved2: le.Uint32(payload[48:52]),
	}, nil
}

// SolutionOptions controls how NAV-SOL messages are synthesized
type SolutionOptions struct {
	// Week is written into every solution unless DeriveWeek succeeds
	Week int16
	// DeriveWeek computes the week from the NAV-PVT date when its date and
	// time are flagged valid, falling back to Week otherwise
	DeriveWeek bool
	// RequireSameEpoch refuses synthesis when the source records carry
	// different iTOW values
	RequireSameEpoch bool
}

// DefaultSolutionOptions returns options that reproduce the receiver-less
// behaviour: constant week, no epoch check.
func DefaultSolutionOptions() SolutionOptions {
	return SolutionOptions{Week: DefaultWeek}
}

// BuildNavSol synthesizes a NAV-SOL message from the navigation state.
//
// NAV-PVT and NAV-VELECEF are required (ErrInsufficientData otherwise).
// NAV-POSECEF is optional; without it the ECEF position and pAcc are zero.
func BuildNavSol(state *NavState, opts SolutionOptions) (*NavSol, error) {
	pvt := state.PVT()
	vel := state.VelECEF()
	if pvt == nil || vel == nil {
		return nil, fmt.Errorf("%w: pvt=%t velecef=%t", ErrInsufficientData, pvt != nil, vel != nil)
	}
	pos := state.PosECEF()

	if opts.RequireSameEpoch {
		if pvt.ITOW != vel.ITOW || (pos != nil && pos.ITOW != pvt.ITOW) {
			posTOW := int64(-1)
			if pos != nil {
				posTOW = int64(pos.ITOW)
			}
			return nil, fmt.Errorf("%w: pvt=%d velecef=%d posecef=%d",
				ErrEpochMismatch, pvt.ITOW, vel.ITOW, posTOW)
		}
	}

	sol := &NavSol{
		ITOW:   pvt.ITOW,
		FTOW:   pvt.Nano,
		Week:   opts.Week,
		GPSFix: pvt.FixType,
		Flags:  SolutionFlags(pvt.Flags, pvt.Valid),
		EcefVX: vel.EcefVX,
		EcefVY: vel.EcefVY,
		EcefVZ: vel.EcefVZ,
		SAcc:   vel.SAcc,
		PDOP:   pvt.PDOP,
		NumSV:  pvt.NumSV,
	}

	if opts.DeriveWeek {
		if week, ok := WeekFromPVT(pvt); ok {
			sol.Week = week
		}
	}

	if pos != nil {
		sol.EcefX = pos.EcefX
		sol.EcefY = pos.EcefY
		sol.EcefZ = pos.EcefZ
		sol.PAcc = pos.PAcc
	}

	return sol, nil
}

// SolutionFlags maps NAV-PVT flags and valid bits onto NAV-SOL flags:
//
//	PVT flags gnssFixOK -> gpsFixOK
//	PVT flags diffSoln  -> diffSoln
//	PVT valid validTime -> WKNSET | TOWSET
//
// All other NAV-SOL bits stay clear.
func SolutionFlags(pvtFlags, pvtValid uint8) uint8 {
	var flags uint8
	if pvtFlags&PVTFlagGNSSFixOK != 0 {
		flags |= SolFlagGPSFixOK
	}
	if pvtFlags&PVTFlagDiffSoln != 0 {
		flags |= SolFlagDiffSoln
	}
	if pvtValid&PVTValidTime != 0 {
		flags |= SolFlagWKNSet | SolFlagTOWSet
	}
	return flags
}

// GPSWeek returns the GPS week containing the UTC instant t
func GPSWeek(t time.Time) int16 {
	gps := t.UTC().Add(LeapSeconds * time.Second)
	return int16(gps.Sub(gpsEpoch) / weekLength)
}

// WeekFromPVT derives the GPS week from the NAV-PVT calendar fields.
// It reports false unless both the date and the time are flagged valid.
func WeekFromPVT(pvt *NavPVT) (int16, bool) {
	if pvt.Valid&(PVTValidDate|PVTValidTime) != PVTValidDate|PVTValidTime {
		return 0, false
	}
	if pvt.Month < 1 || pvt.Month > 12 || pvt.Day < 1 || pvt.Day > 31 {
		return 0, false
	}
	t := time.Date(int(pvt.Year), time.Month(pvt.Month), int(pvt.Day),
		int(pvt.Hour), int(pvt.Min), int(pvt.Sec), 0, time.UTC)
	if t.Before(gpsEpoch) {
		return 0, false
	}
	return GPSWeek(t), true
}
