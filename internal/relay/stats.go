package relay

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Observer is notified of every event in the relay loop. It is the hook the
// Prometheus collector attaches to.
type Observer interface {
	BytesRead(n int)
	FrameExtracted(class, id byte, size int)
	BytesDiscarded(n int, checksumMismatch bool)
	DecodeFailed(class, id byte)
	FrameForwarded(class, id byte, size int)
	SolutionBuilt()
	SolutionSkipped(reason error)
}

// Stats is a snapshot of the relay counters
type Stats struct {
	BytesRead          uint64 `json:"bytes_read"`
	BytesWritten       uint64 `json:"bytes_written"`
	FramesExtracted    uint64 `json:"frames_extracted"`
	FramesForwarded    uint64 `json:"frames_forwarded"`
	FramesDropped      uint64 `json:"frames_dropped"`
	BytesDiscarded     uint64 `json:"bytes_discarded"`
	ChecksumMismatches uint64 `json:"checksum_mismatches"`
	DecodeErrors       uint64 `json:"decode_errors"`
	SolutionsBuilt     uint64 `json:"solutions_built"`
	SolutionsSkipped   uint64 `json:"solutions_skipped"`
}

// Fields returns the counters as zap fields for the shutdown log line
func (s Stats) Fields() []zap.Field {
	return []zap.Field{
		zap.Uint64("bytes_read", s.BytesRead),
		zap.Uint64("bytes_written", s.BytesWritten),
		zap.Uint64("frames_extracted", s.FramesExtracted),
		zap.Uint64("frames_forwarded", s.FramesForwarded),
		zap.Uint64("frames_dropped", s.FramesDropped),
		zap.Uint64("bytes_discarded", s.BytesDiscarded),
		zap.Uint64("checksum_mismatches", s.ChecksumMismatches),
		zap.Uint64("decode_errors", s.DecodeErrors),
		zap.Uint64("solutions_built", s.SolutionsBuilt),
		zap.Uint64("solutions_skipped", s.SolutionsSkipped),
	}
}

// counters are written by the relay goroutine and read by Stats from any
// goroutine (the monitor dashboard polls them).
type counters struct {
	bytesRead          atomic.Uint64
	bytesWritten       atomic.Uint64
	framesExtracted    atomic.Uint64
	framesForwarded    atomic.Uint64
	framesDropped      atomic.Uint64
	bytesDiscarded     atomic.Uint64
	checksumMismatches atomic.Uint64
	decodeErrors       atomic.Uint64
	solutionsBuilt     atomic.Uint64
	solutionsSkipped   atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		BytesRead:          c.bytesRead.Load(),
		BytesWritten:       c.bytesWritten.Load(),
		FramesExtracted:    c.framesExtracted.Load(),
		FramesForwarded:    c.framesForwarded.Load(),
		FramesDropped:      c.framesDropped.Load(),
		BytesDiscarded:     c.bytesDiscarded.Load(),
		ChecksumMismatches: c.checksumMismatches.Load(),
		DecodeErrors:       c.decodeErrors.Load(),
		SolutionsBuilt:     c.solutionsBuilt.Load(),
		SolutionsSkipped:   c.solutionsSkipped.Load(),
	}
}

type nopObserver struct{}

func (nopObserver) BytesRead(int)                  {}
func (nopObserver) FrameExtracted(byte, byte, int) {}
func (nopObserver) BytesDiscarded(int, bool)       {}
func (nopObserver) DecodeFailed(byte, byte)        {}
func (nopObserver) FrameForwarded(byte, byte, int) {}
func (nopObserver) SolutionBuilt()                 {}
func (nopObserver) SolutionSkipped(error)          {}
