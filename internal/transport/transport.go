package transport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/muurk/ubxrelay/internal/logging"
	"go.uber.org/zap"
)

// Output kinds accepted by OpenOutput
const (
	OutputSame   = "same"   // write back to the input port
	OutputSerial = "serial" // a second serial port
	OutputFile   = "file"   // append to a capture file
	OutputStdout = "stdout"
	OutputNone   = "none"
)

// DefaultBaudRate is the u-blox factory default on UART1
const DefaultBaudRate = 38400

// SerialOptions describes a serial endpoint
type SerialOptions struct {
	Port string
	Baud int
	// ReadTimeout bounds each read. Zero blocks until at least one byte
	// arrives. The termios granularity is 100ms.
	ReadTimeout time.Duration
}

// OutputOptions describes where relayed frames are written
type OutputOptions struct {
	Kind string
	Path string // serial port or file path
	Baud int
}

// Endpoint is an opened serial port or file. Reads and writes return
// *TransportError on failure.
type Endpoint struct {
	path string
	rw   io.ReadWriteCloser

	// serial ports report an expired read timeout as (0, io.EOF)
	eofIsTimeout bool

	mu     sync.Mutex
	closed bool
}

func newEndpoint(path string, rw io.ReadWriteCloser, eofIsTimeout bool) *Endpoint {
	return &Endpoint{path: path, rw: rw, eofIsTimeout: eofIsTimeout}
}

// OpenSerial opens a serial port with 8N1 framing
func OpenSerial(opts SerialOptions) (*Endpoint, error) {
	if opts.Port == "" {
		return nil, NewConfigError(opts.Port, "serial port name is empty")
	}
	if opts.Baud <= 0 {
		opts.Baud = DefaultBaudRate
	}

	serialOpts := serial.OpenOptions{
		PortName:        opts.Port,
		BaudRate:        uint(opts.Baud),
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	}
	if t := interCharacterTimeout(opts.ReadTimeout); t > 0 {
		serialOpts.MinimumReadSize = 0
		serialOpts.InterCharacterTimeout = t
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return nil, Classify("open", opts.Port, err)
	}

	logging.Info("Serial port opened",
		zap.String("port", opts.Port),
		zap.Int("baud", opts.Baud),
		zap.Duration("read_timeout", opts.ReadTimeout),
	)

	return newEndpoint(opts.Port, port, true), nil
}

// interCharacterTimeout converts d to the millisecond value go-serial
// expects: a multiple of 100, at least 100 when d is positive.
func interCharacterTimeout(d time.Duration) uint {
	if d <= 0 {
		return 0
	}
	ms := uint(d / time.Millisecond)
	ms = (ms + 99) / 100 * 100
	if ms > 25500 {
		ms = 25500
	}
	return ms
}

// OpenFile opens a capture file for reading. End of file ends the stream.
func OpenFile(path string) (*Endpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Classify("open", path, err)
	}
	logging.Info("Capture file opened", zap.String("path", path))
	return newEndpoint(path, f, false), nil
}

// CreateFile opens path for appending relayed frames, creating it if needed
func CreateFile(path string) (*Endpoint, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, Classify("open", path, err)
	}
	return newEndpoint(path, f, false), nil
}

// Path returns the device node or file path
func (e *Endpoint) Path() string {
	return e.path
}

// Read reads up to len(p) bytes. On a serial port an expired read timeout
// returns (0, nil) so callers can poll for cancellation.
func (e *Endpoint) Read(p []byte) (int, error) {
	n, err := e.rw.Read(p)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, io.EOF) {
		if e.eofIsTimeout && !e.isClosed() {
			return n, nil
		}
		return n, io.EOF
	}
	if e.isClosed() {
		return n, &TransportError{Type: ErrTypeClosed, Op: "read", Path: e.path, Err: err, Fatal: true}
	}
	return n, Classify("read", e.path, err)
}

// Write writes p in full
func (e *Endpoint) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := e.rw.Write(p[written:])
		written += n
		if err != nil {
			return written, Classify("write", e.path, err)
		}
		if n == 0 {
			return written, Classify("write", e.path, io.ErrShortWrite)
		}
	}
	return written, nil
}

// Close closes the endpoint. Closing twice is a no-op.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if err := e.rw.Close(); err != nil {
		return Classify("close", e.path, err)
	}
	return nil
}

func (e *Endpoint) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// OpenOutput opens the sink for relayed frames. For OutputSame the input
// endpoint is returned and the caller must not close it twice.
func OpenOutput(opts OutputOptions, input *Endpoint) (io.WriteCloser, error) {
	switch opts.Kind {
	case OutputSame, "":
		if input == nil {
			return nil, NewConfigError("", "output \"same\" requires an input endpoint")
		}
		return input, nil
	case OutputSerial:
		return OpenSerial(SerialOptions{Port: opts.Path, Baud: opts.Baud})
	case OutputFile:
		if opts.Path == "" {
			return nil, NewConfigError("", "output file path is empty")
		}
		return CreateFile(opts.Path)
	case OutputStdout:
		return nopCloser{os.Stdout}, nil
	case OutputNone:
		return nopCloser{io.Discard}, nil
	default:
		return nil, NewConfigError(opts.Path, fmt.Sprintf("unknown output kind %q", opts.Kind))
	}
}
