package relay

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/muurk/ubxrelay/internal/logging"
	"github.com/muurk/ubxrelay/internal/protocol"
	"go.uber.org/zap"
)

// DecodeSummary counts what Decode found in a capture
type DecodeSummary struct {
	Frames         int `json:"frames"`
	Records        int `json:"records"`   // decoded NAV records, NAV-SOL included
	Solutions      int `json:"solutions"` // NAV-SOL frames
	Unknown        int `json:"unknown"`
	DecodeErrors   int `json:"decode_errors"`
	BytesDiscarded int `json:"bytes_discarded"`
}

// Decode reads a capture until io.EOF and shows every frame to sink:
// decoded records, NAV-SOL frames written by a relay and *UnknownMessage
// for anything else. Nothing is aggregated, synthesized or forwarded.
// discards, when non-nil, sees the bytes between frames.
func Decode(ctx context.Context, r io.Reader, sink RecordSink, discards DiscardObserver) (DecodeSummary, error) {
	var sum DecodeSummary
	if sink == nil {
		sink = nopSink{}
	}
	if discards == nil {
		discards = nopSink{}
	}

	chunk := make([]byte, DefaultReadSize)
	var buf []byte

	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		n, err := r.Read(chunk)
		buf = append(buf, chunk[:n]...)

		start := 0
	extract:
		for start < len(buf) {
			ex := protocol.TryExtract(buf[start:])
			switch ex.Status {
			case protocol.NeedMoreBytes:
				break extract
			case protocol.Discard:
				sum.BytesDiscarded += ex.Consumed
				discards.Discarded(buf[start : start+ex.Consumed])
			case protocol.FrameReady:
				sum.Frames++
				decodeFrame(ex.Frame, sink, &sum)
			}
			start += ex.Consumed
		}
		buf = append(buf[:0], buf[start:]...)

		if errors.Is(err, io.EOF) {
			if len(buf) > 0 {
				logging.Debug("Capture ends inside a frame", zap.Int("bytes", len(buf)))
			}
			return sum, nil
		}
		if err != nil {
			return sum, fmt.Errorf("read capture: %w", err)
		}
	}
}

func decodeFrame(f *protocol.Frame, sink RecordSink, sum *DecodeSummary) {
	var (
		msg protocol.Message
		err error
	)
	if f.Class == protocol.ClassNAV && f.ID == protocol.MsgIDNavSol {
		msg, err = protocol.ParseNavSol(f.Payload)
	} else {
		msg, err = f.ParseMessage()
	}

	if err != nil {
		sum.DecodeErrors++
		logging.Warn("Failed to decode message",
			zap.String("message", protocol.MessageName(f.Class, f.ID)),
			zap.Error(err),
		)
		return
	}

	switch msg.(type) {
	case *protocol.UnknownMessage:
		sum.Unknown++
	case *protocol.NavSol:
		sum.Solutions++
		sum.Records++
	default:
		sum.Records++
	}
	sink.Display(msg)
}
