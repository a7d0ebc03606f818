package relay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/muurk/ubxrelay/internal/logging"
	"github.com/muurk/ubxrelay/internal/protocol"
	"go.uber.org/zap"
)

// RecordSink receives every decoded record and every synthesized NAV-SOL.
// Display is called from the relay goroutine and must not block for long.
type RecordSink interface {
	Display(msg protocol.Message)
}

// DiscardObserver is shown the bytes the frame codec throws away while
// resynchronizing. The slice is only valid for the duration of the call.
type DiscardObserver interface {
	Discarded(data []byte)
}

// RecordSinkFunc adapts a function to RecordSink
type RecordSinkFunc func(msg protocol.Message)

// Display calls f(msg)
func (f RecordSinkFunc) Display(msg protocol.Message) { f(msg) }

// MultiSink fans records out to several sinks in order
type MultiSink []RecordSink

// Display forwards msg to every non-nil sink
func (m MultiSink) Display(msg protocol.Message) {
	for _, s := range m {
		if s != nil {
			s.Display(msg)
		}
	}
}

type nopSink struct{}

func (nopSink) Display(protocol.Message) {}
func (nopSink) Discarded([]byte)         {}

// RecordEntry is one line of a record capture file
type RecordEntry struct {
	Timestamp time.Time        `json:"timestamp"`
	Sequence  int              `json:"seq"`
	Message   string           `json:"message"`
	Class     byte             `json:"class"`
	ID        byte             `json:"id"`
	ITOW      uint32           `json:"iTOW"`
	Record    protocol.Message `json:"record"`
}

// JSONLSink appends decoded records to a JSON Lines file, one object per
// record, for offline analysis of a session.
type JSONLSink struct {
	mu   sync.Mutex
	f    *os.File
	enc  *json.Encoder
	seq  int
	path string
	now  func() time.Time
}

// NewJSONLSink creates dir if needed and opens a capture file named after
// the current time inside it.
func NewJSONLSink(dir string) (*JSONLSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("records-%s.jsonl", time.Now().Format("20060102-150405")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open record file: %w", err)
	}

	logging.Info("Recording decoded messages", zap.String("path", path))

	return &JSONLSink{
		f:    f,
		enc:  json.NewEncoder(f),
		path: path,
		now:  time.Now,
	}, nil
}

// Path returns the capture file path
func (s *JSONLSink) Path() string {
	return s.path
}

// Display appends msg to the capture file. Failures are logged, not returned.
func (s *JSONLSink) Display(msg protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	entry := RecordEntry{
		Timestamp: s.now(),
		Sequence:  s.seq,
		Message:   protocol.MessageName(msg.Class(), msg.ID()),
		Class:     msg.Class(),
		ID:        msg.ID(),
		ITOW:      msg.TimeOfWeek(),
		Record:    msg,
	}
	if err := s.enc.Encode(entry); err != nil {
		logging.Error("Failed to write record",
			zap.String("path", s.path),
			zap.Error(err),
		)
	}
}

// Close closes the capture file
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
