package relay

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/muurk/ubxrelay/internal/logging"
	"github.com/muurk/ubxrelay/internal/protocol"
	"github.com/muurk/ubxrelay/internal/transport"
	"go.uber.org/zap"
)

// DefaultReadSize is the maximum number of bytes requested per read
const DefaultReadSize = 4096

// Options configures a Driver
type Options struct {
	Handler  protocol.HandlerOptions
	ReadSize int // bytes per read, DefaultReadSize when zero
}

// DefaultOptions returns the relay defaults: constant week, no epoch
// check, frames of other classes dropped.
func DefaultOptions() Options {
	return Options{
		Handler:  protocol.HandlerOptions{Solution: protocol.DefaultSolutionOptions()},
		ReadSize: DefaultReadSize,
	}
}

// Option customizes a Driver
type Option func(*Driver)

// WithRecordSink sets the sink that receives decoded records
func WithRecordSink(s RecordSink) Option {
	return func(d *Driver) {
		if s != nil {
			d.records = s
		}
	}
}

// WithDiscardObserver sets the observer that sees resynchronization garbage
func WithDiscardObserver(o DiscardObserver) Option {
	return func(d *Driver) {
		if o != nil {
			d.discards = o
		}
	}
}

// WithObserver sets the event observer (metrics)
func WithObserver(o Observer) Option {
	return func(d *Driver) {
		if o != nil {
			d.observer = o
		}
	}
}

// Driver owns one receiver stream: it reads bytes from the source, extracts
// frames, feeds them to the protocol handler and writes every forwarded
// frame and synthesized NAV-SOL to the sink. Each frame is written with a
// single Write call.
//
// A Driver is not safe for concurrent use except for Stats.
type Driver struct {
	src     io.Reader
	sink    io.Writer
	handler *protocol.Handler

	records  RecordSink
	discards DiscardObserver
	observer Observer

	// buf[start:] holds bytes not yet consumed by the frame codec
	buf      []byte
	start    int
	readSize int

	stats counters
}

// New creates a driver with an empty navigation state
func New(src io.Reader, sink io.Writer, opts Options, fns ...Option) *Driver {
	if opts.ReadSize <= 0 {
		opts.ReadSize = DefaultReadSize
	}

	d := &Driver{
		src:      src,
		sink:     sink,
		handler:  protocol.NewHandler(opts.Handler),
		records:  nopSink{},
		discards: nopSink{},
		observer: nopObserver{},
		readSize: opts.ReadSize,
	}
	for _, fn := range fns {
		fn(d)
	}
	return d
}

// State returns the navigation state maintained by the driver
func (d *Driver) State() *protocol.NavState {
	return d.handler.State()
}

// Stats returns a snapshot of the relay counters. Safe for concurrent use.
func (d *Driver) Stats() Stats {
	return d.stats.snapshot()
}

// Buffered returns the number of received bytes not yet consumed
func (d *Driver) Buffered() int {
	return len(d.buf) - d.start
}

// Run relays until the source reports io.EOF, ctx is cancelled or a fatal
// transport error occurs. Only transport errors are returned; bytes still
// buffered at termination are dropped.
func (d *Driver) Run(ctx context.Context) error {
	chunk := make([]byte, d.readSize)

	for {
		if ctx.Err() != nil {
			d.finish("cancelled")
			return nil
		}

		n, err := d.src.Read(chunk)
		if n > 0 {
			if ferr := d.Feed(chunk[:n]); ferr != nil {
				d.finish("write failed")
				return ferr
			}
		}

		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			d.finish("end of stream")
			return nil
		}
		if ctx.Err() != nil {
			// closing the source to unblock a read surfaces as an error
			d.finish("cancelled")
			return nil
		}
		if !transport.IsFatal(err) {
			logging.Debug("Transient read error", zap.Error(err))
			continue
		}

		d.finish("read failed")
		return fmt.Errorf("read from receiver: %w", err)
	}
}

func (d *Driver) finish(reason string) {
	if dropped := d.Buffered(); dropped > 0 {
		logging.Debug("Dropping buffered bytes", zap.Int("bytes", dropped))
	}
	d.buf = d.buf[:0]
	d.start = 0

	fields := append([]zap.Field{zap.String("reason", reason)}, d.Stats().Fields()...)
	logging.Info("Relay stopped", fields...)
}

// Feed appends data to the receive buffer and processes every complete
// frame in it. It returns an error only when writing to the sink fails.
func (d *Driver) Feed(data []byte) error {
	d.stats.bytesRead.Add(uint64(len(data)))
	d.observer.BytesRead(len(data))

	d.buf = append(d.buf, data...)
	err := d.drain()
	d.compact()
	return err
}

// drain runs the frame codec over the buffer until it needs more bytes
func (d *Driver) drain() error {
	for d.start < len(d.buf) {
		ex := protocol.TryExtract(d.buf[d.start:])

		switch ex.Status {
		case protocol.NeedMoreBytes:
			return nil

		case protocol.Discard:
			garbage := d.buf[d.start : d.start+ex.Consumed]
			d.start += ex.Consumed
			d.discarded(garbage, ex.ChecksumMismatch)

		case protocol.FrameReady:
			d.start += ex.Consumed
			if err := d.process(ex.Frame); err != nil {
				return err
			}
		}
	}
	return nil
}

// compact reclaims consumed space at the front of the buffer
func (d *Driver) compact() {
	switch {
	case d.start == len(d.buf):
		d.buf = d.buf[:0]
		d.start = 0
	case d.start > cap(d.buf)/2:
		n := copy(d.buf, d.buf[d.start:])
		d.buf = d.buf[:n]
		d.start = 0
	}
}

func (d *Driver) discarded(garbage []byte, mismatch bool) {
	d.stats.bytesDiscarded.Add(uint64(len(garbage)))
	if mismatch {
		d.stats.checksumMismatches.Add(1)
		logging.Debug("Checksum mismatch, resynchronizing")
	} else {
		logging.LogRawBytes("Discarded bytes", garbage)
	}
	d.observer.BytesDiscarded(len(garbage), mismatch)
	d.discards.Discarded(garbage)
}

// process handles one checksum-valid frame. The frame payload aliases the
// receive buffer and must not outlive this call.
func (d *Driver) process(f *protocol.Frame) error {
	name := protocol.MessageName(f.Class, f.ID)
	d.stats.framesExtracted.Add(1)
	d.observer.FrameExtracted(f.Class, f.ID, f.Size())
	logging.LogFrame("in", name, f.Size())

	res := d.handler.Handle(f)

	if res.DecodeErr != nil {
		d.stats.decodeErrors.Add(1)
		d.observer.DecodeFailed(f.Class, f.ID)
		logging.Warn("Failed to decode message",
			zap.String("message", name),
			zap.Int("payload_length", len(f.Payload)),
			zap.Error(res.DecodeErr),
		)
	}

	if res.Message != nil {
		d.records.Display(res.Message)
	}

	if res.Forward {
		out, err := protocol.Encode(f.Class, f.ID, f.Payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		if err := d.write(out); err != nil {
			return fmt.Errorf("forward %s: %w", name, err)
		}
		d.stats.framesForwarded.Add(1)
		d.observer.FrameForwarded(f.Class, f.ID, len(out))
		logging.LogFrame("out", name, len(out))
	} else {
		d.stats.framesDropped.Add(1)
	}

	switch {
	case res.Solution != nil:
		return d.sendSolution(res.Solution)
	case res.SolutionErr != nil:
		d.stats.solutionsSkipped.Add(1)
		d.observer.SolutionSkipped(res.SolutionErr)
		logging.Debug("NAV-SOL not synthesized", zap.Error(res.SolutionErr))
	}

	return nil
}

func (d *Driver) sendSolution(sol *protocol.NavSol) error {
	out, err := sol.Frame()
	if err != nil {
		return fmt.Errorf("encode NAV-SOL: %w", err)
	}
	if err := d.write(out); err != nil {
		return fmt.Errorf("send NAV-SOL: %w", err)
	}

	d.stats.solutionsBuilt.Add(1)
	d.observer.SolutionBuilt()
	d.observer.FrameForwarded(protocol.ClassNAV, protocol.MsgIDNavSol, len(out))
	logging.LogFrame("out", "NAV-SOL", len(out))

	d.records.Display(sol)
	return nil
}

func (d *Driver) write(frame []byte) error {
	n, err := d.sink.Write(frame)
	d.stats.bytesWritten.Add(uint64(n))
	if err != nil {
		return err
	}
	if n != len(frame) {
		return io.ErrShortWrite
	}
	return nil
}
