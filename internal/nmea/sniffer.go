package nmea

import (
	"strings"
	"sync"

	gonmea "github.com/adrianmo/go-nmea"
	"go.uber.org/zap"

	"github.com/muurk/ubxrelay/internal/logging"
)

// Longest line accepted. NMEA 0183 allows 82 characters; proprietary
// sentences are sometimes longer.
const maxLineLength = 256

// Observer is told the type of every parsed sentence. metrics.Collector
// implements it.
type Observer interface {
	Sentence(sentenceType string)
}

type nopObserver struct{}

func (nopObserver) Sentence(string) {}

// Fix is the latest position reported over NMEA, combined from RMC and GGA
type Fix struct {
	Time       string  `json:"time"`
	Date       string  `json:"date,omitempty"`
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lon"`
	SpeedKnots float64 `json:"speed_knots"`
	CourseDeg  float64 `json:"course_deg"`
	Validity   string  `json:"validity,omitempty"`
	Quality    string  `json:"quality,omitempty"`
	Satellites int64   `json:"satellites"`
	HDOP       float64 `json:"hdop"`
	Altitude   float64 `json:"altitude"`
}

// Sniffer recovers NMEA sentences from the bytes the UBX codec discards.
// Receivers configured for both protocols interleave text sentences with
// binary frames; the relay drops them from the output, the Sniffer
// parses and counts them. It implements relay.DiscardObserver.
type Sniffer struct {
	observer Observer

	mu      sync.Mutex
	line    []byte
	counts  map[string]int
	errors  int
	fix     Fix
	haveFix bool
}

// NewSniffer creates a Sniffer. A nil observer is allowed.
func NewSniffer(observer Observer) *Sniffer {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Sniffer{
		observer: observer,
		line:     make([]byte, 0, maxLineLength),
		counts:   make(map[string]int),
	}
}

// Discarded implements relay.DiscardObserver
func (s *Sniffer) Discarded(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range data {
		switch {
		case b == '$' || b == '!':
			// Start of sentence; anything pending was truncated
			s.line = append(s.line[:0], b)
		case b == '\n' || b == '\r':
			if len(s.line) > 0 {
				s.parse(string(s.line))
				s.line = s.line[:0]
			}
		case b < 0x20 || b > 0x7E:
			// Binary data between sentences
			s.line = s.line[:0]
		case len(s.line) == 0:
			// Not inside a sentence
		case len(s.line) >= maxLineLength:
			s.line = s.line[:0]
		default:
			s.line = append(s.line, b)
		}
	}
}

// parse handles one complete line. s.mu must be held.
func (s *Sniffer) parse(line string) {
	line = strings.TrimSpace(line)
	sentence, err := gonmea.Parse(line)
	if err != nil {
		s.errors++
		logging.Debug("Ignoring malformed NMEA sentence",
			zap.String("line", line),
			zap.Error(err),
		)
		return
	}

	dataType := sentence.DataType()
	s.counts[dataType]++
	s.observer.Sentence(dataType)

	switch m := sentence.(type) {
	case gonmea.RMC:
		s.fix.Time = m.Time.String()
		s.fix.Date = m.Date.String()
		s.fix.Latitude = m.Latitude
		s.fix.Longitude = m.Longitude
		s.fix.SpeedKnots = m.Speed
		s.fix.CourseDeg = m.Course
		s.fix.Validity = m.Validity
		s.haveFix = true
	case gonmea.GGA:
		s.fix.Time = m.Time.String()
		s.fix.Latitude = m.Latitude
		s.fix.Longitude = m.Longitude
		s.fix.Quality = m.FixQuality
		s.fix.Satellites = m.NumSatellites
		s.fix.HDOP = m.HDOP
		s.fix.Altitude = m.Altitude
		s.haveFix = true
	}
}

// Counts returns the number of parsed sentences per type
func (s *Sniffer) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Errors returns the number of lines that looked like sentences but did
// not parse
func (s *Sniffer) Errors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors
}

// Fix returns the latest NMEA position, if any RMC or GGA was seen
func (s *Sniffer) Fix() (Fix, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fix, s.haveFix
}
