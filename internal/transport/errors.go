package transport

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of a transport failure
type ErrorType int

const (
	// ErrTypeNotFound indicates the device node or file does not exist
	ErrTypeNotFound ErrorType = iota
	// ErrTypePermission indicates the process may not open the device
	ErrTypePermission
	// ErrTypeBusy indicates another process holds the port
	ErrTypeBusy
	// ErrTypeDisconnected indicates the device went away while open
	ErrTypeDisconnected
	// ErrTypeTimeout indicates a read or write deadline expired
	ErrTypeTimeout
	// ErrTypeClosed indicates use of a closed endpoint
	ErrTypeClosed
	// ErrTypeConfig indicates invalid endpoint options
	ErrTypeConfig
	// ErrTypeUnknown indicates an unexpected I/O error
	ErrTypeUnknown
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNotFound:
		return "Not Found"
	case ErrTypePermission:
		return "Permission Denied"
	case ErrTypeBusy:
		return "Port Busy"
	case ErrTypeDisconnected:
		return "Disconnected"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeClosed:
		return "Closed"
	case ErrTypeConfig:
		return "Configuration Error"
	case ErrTypeUnknown:
		return "I/O Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// TransportError describes a failure opening, reading or writing an endpoint
type TransportError struct {
	Type  ErrorType // Category of error
	Op    string    // "open", "read", "write", "close"
	Path  string    // Device node or file path
	Err   error     // Underlying error (if any)
	Fatal bool      // Whether the relay loop must stop
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s (caused by: %v)", e.Op, e.Path, e.Type, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Type)
}

// Unwrap returns the underlying error for error chain inspection
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Classify wraps an I/O error from op on path into a *TransportError.
// It returns nil for a nil error and passes existing TransportErrors through.
func Classify(op, path string, err error) *TransportError {
	if err == nil {
		return nil
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	switch {
	case os.IsTimeout(err):
		return &TransportError{Type: ErrTypeTimeout, Op: op, Path: path, Err: err}
	case errors.Is(err, fs.ErrNotExist):
		return &TransportError{Type: ErrTypeNotFound, Op: op, Path: path, Err: err, Fatal: true}
	case errors.Is(err, fs.ErrPermission):
		return &TransportError{Type: ErrTypePermission, Op: op, Path: path, Err: err, Fatal: true}
	case errors.Is(err, fs.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return &TransportError{Type: ErrTypeClosed, Op: op, Path: path, Err: err, Fatal: true}
	case errors.Is(err, syscall.EBUSY):
		return &TransportError{Type: ErrTypeBusy, Op: op, Path: path, Err: err, Fatal: true}
	case errors.Is(err, syscall.EIO), errors.Is(err, syscall.ENXIO), errors.Is(err, syscall.ENODEV):
		return &TransportError{Type: ErrTypeDisconnected, Op: op, Path: path, Err: err, Fatal: true}
	}

	return &TransportError{Type: ErrTypeUnknown, Op: op, Path: path, Err: err, Fatal: true}
}

// NewConfigError creates a configuration error for an endpoint
func NewConfigError(path, message string) *TransportError {
	return &TransportError{
		Type:  ErrTypeConfig,
		Op:    "open",
		Path:  path,
		Err:   errors.New(message),
		Fatal: true,
	}
}

// IsFatal reports whether err must end the relay loop. Errors that are not
// TransportErrors are treated as fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Fatal
	}
	return true
}

// GetTroubleshootingHint returns user-facing advice for a transport error
func GetTroubleshootingHint(err error) string {
	var te *TransportError
	if !errors.As(err, &te) {
		return "An unexpected error occurred. Please try again."
	}

	switch te.Type {
	case ErrTypeNotFound:
		return strings.Join([]string{
			"The receiver port does not exist.",
			"Troubleshooting:",
			"  • Check the cable and that the receiver is powered",
			"  • List candidate ports: ls /dev/ttyACM* /dev/ttyUSB*",
			"  • Pass the right port with --port",
		}, "\n")
	case ErrTypePermission:
		return strings.Join([]string{
			"Permission denied opening " + te.Path + ".",
			"Troubleshooting:",
			"  • Add your user to the dialout group and log in again",
			"  • Or run with sufficient privileges",
		}, "\n")
	case ErrTypeBusy:
		return "Another program holds " + te.Path + ". Stop it (gpsd, ModemManager) and retry."
	case ErrTypeDisconnected:
		return "The receiver disappeared while the relay was running. Reconnect it and restart."
	case ErrTypeConfig:
		return "The endpoint options are invalid. Check the error message for details."
	default:
		return "An I/O error occurred. Please check the error message for details."
	}
}
