package ui

import (
	"fmt"
	"strings"

	"github.com/muurk/ubxrelay/internal/protocol"
)

// FixTypeName returns the receiver's name for a NAV-PVT fixType or a
// NAV-SOL gpsFix value.
func FixTypeName(fix uint8) string {
	switch fix {
	case protocol.FixNone:
		return "no fix"
	case protocol.FixDeadReckoning:
		return "dead reckoning only"
	case protocol.Fix2D:
		return "2D-fix"
	case protocol.Fix3D:
		return "3D-fix"
	case protocol.FixGNSSDR:
		return "GNSS + dead reckoning"
	case protocol.FixTimeOnly:
		return "time only fix"
	default:
		return fmt.Sprintf("reserved (%d)", fix)
	}
}

// CarrierSolutionName decodes the carrSoln field of NAV-PVT flags
func CarrierSolutionName(pvtFlags uint8) string {
	switch (pvtFlags & protocol.PVTFlagCarrSoln) >> 6 {
	case 1:
		return "float"
	case 2:
		return "fixed"
	case 3:
		return "reserved"
	default:
		return "none"
	}
}

type bitName struct {
	mask uint8
	name string
}

var (
	pvtValidBits = []bitName{
		{protocol.PVTValidDate, "validDate"},
		{protocol.PVTValidTime, "validTime"},
		{protocol.PVTFullyResolved, "fullyResolved"},
		{protocol.PVTValidMag, "validMag"},
	}
	pvtFlagBits = []bitName{
		{protocol.PVTFlagGNSSFixOK, "gnssFixOK"},
		{protocol.PVTFlagDiffSoln, "diffSoln"},
		{protocol.PVTFlagHeadVehValid, "headVehValid"},
	}
	timeUTCValidBits = []bitName{
		{protocol.TimeUTCValidTOW, "validTOW"},
		{protocol.TimeUTCValidWKN, "validWKN"},
		{protocol.TimeUTCValidUTC, "validUTC"},
	}
	solFlagBits = []bitName{
		{protocol.SolFlagGPSFixOK, "gpsFixOK"},
		{protocol.SolFlagDiffSoln, "diffSoln"},
		{protocol.SolFlagWKNSet, "wknSet"},
		{protocol.SolFlagTOWSet, "towSet"},
	}
)

func flagNames(v uint8, bits []bitName) []string {
	var names []string
	for _, b := range bits {
		if v&b.mask != 0 {
			names = append(names, b.name)
		}
	}
	return names
}

func joinFlags(names []string) string {
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}

// PVTValidNames lists the set NAV-PVT valid bits
func PVTValidNames(valid uint8) []string { return flagNames(valid, pvtValidBits) }

// PVTFlagNames lists the set NAV-PVT flags, including the carrier solution
// and power save state when present.
func PVTFlagNames(flags uint8) []string {
	names := flagNames(flags, pvtFlagBits)
	if psm := (flags & protocol.PVTFlagPSMState) >> 2; psm != 0 {
		names = append(names, fmt.Sprintf("psmState=%d", psm))
	}
	if carr := CarrierSolutionName(flags); carr != "none" {
		names = append(names, "carrSoln="+carr)
	}
	return names
}

// TimeUTCValidNames lists the set NAV-TIMEUTC valid bits
func TimeUTCValidNames(valid uint8) []string { return flagNames(valid, timeUTCValidBits) }

// SolFlagNames lists the set NAV-SOL flags
func SolFlagNames(flags uint8) []string { return flagNames(flags, solFlagBits) }

// FormatRecord renders msg as one line with scaled units:
// degrees for lat/lon, metres for heights, m/s for speeds.
func FormatRecord(msg protocol.Message) string {
	switch m := msg.(type) {
	case *protocol.NavPVT:
		return fmt.Sprintf("NAV-PVT     iTOW=%d %04d-%02d-%02d %02d:%02d:%02d %s numSV=%d lat=%.7f lon=%.7f hMSL=%.3fm hAcc=%.3fm gSpeed=%.3fm/s heading=%.5f pDOP=%.2f valid=%s flags=%s",
			m.ITOW, m.Year, m.Month, m.Day, m.Hour, m.Min, m.Sec,
			FixTypeName(m.FixType), m.NumSV,
			float64(m.Lat)*1e-7, float64(m.Lon)*1e-7,
			mm(m.HMSL), mmU(m.HAcc), mm(m.GSpeed),
			float64(m.HeadMot)*1e-5, float64(m.PDOP)*0.01,
			joinFlags(PVTValidNames(m.Valid)), joinFlags(PVTFlagNames(m.Flags)))
	case *protocol.NavPosECEF:
		return fmt.Sprintf("NAV-POSECEF iTOW=%d X=%.2fm Y=%.2fm Z=%.2fm pAcc=%.2fm",
			m.ITOW, cm(m.EcefX), cm(m.EcefY), cm(m.EcefZ), cmU(m.PAcc))
	case *protocol.NavVelECEF:
		return fmt.Sprintf("NAV-VELECEF iTOW=%d VX=%.2fm/s VY=%.2fm/s VZ=%.2fm/s sAcc=%.2fm/s",
			m.ITOW, cm(m.EcefVX), cm(m.EcefVY), cm(m.EcefVZ), cmU(m.SAcc))
	case *protocol.NavTimeUTC:
		return fmt.Sprintf("NAV-TIMEUTC iTOW=%d %04d-%02d-%02d %02d:%02d:%02d.%09d tAcc=%dns valid=%s",
			m.ITOW, m.Year, m.Month, m.Day, m.Hour, m.Min, m.Sec, nonNegative(m.Nano), m.TAcc,
			joinFlags(TimeUTCValidNames(m.Valid)))
	case *protocol.NavSol:
		return fmt.Sprintf("NAV-SOL     iTOW=%d week=%d %s numSV=%d X=%.2fm Y=%.2fm Z=%.2fm pAcc=%.2fm VX=%.2fm/s VY=%.2fm/s VZ=%.2fm/s pDOP=%.2f flags=%s",
			m.ITOW, m.Week, FixTypeName(m.GPSFix), m.NumSV,
			cm(m.EcefX), cm(m.EcefY), cm(m.EcefZ), cmU(m.PAcc),
			cm(m.EcefVX), cm(m.EcefVY), cm(m.EcefVZ),
			float64(m.PDOP)*0.01, joinFlags(SolFlagNames(m.Flags)))
	case nil:
		return "<nil>"
	default:
		return msg.String()
	}
}

func mm(v int32) float64   { return float64(v) / 1000 }
func mmU(v uint32) float64 { return float64(v) / 1000 }
func cm(v int32) float64   { return float64(v) / 100 }
func cmU(v uint32) float64 { return float64(v) / 100 }

func nonNegative(v int32) int32 {
	if v < 0 {
		return 0
	}
	return v
}
