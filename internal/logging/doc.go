// Package logging provides structured logging for the UBX relay.
//
// This package wraps a package-level zap logger with convenience functions
// for the logging patterns used throughout the relay.
//
// # Log Levels
//
//   - Debug: frame-by-frame traffic, discarded bytes with hex dumps
//   - Info: endpoints opened, clients connected, shutdown statistics
//   - Warn: decode failures, dropped clients, publish failures
//   - Error: transport failures
//
// # Configuration
//
// The level comes from the --log-level flag, the config file or the
// UBXRELAY_LOG_LEVEL environment variable, in that order. With no level the
// console logger is a no-op, so CLI output stays clean:
//
//	if err := logging.InitializeWithFile(level, logging.FileOptions{
//	    Path:      "/var/log/ubxrelay.log",
//	    MaxSizeMB: 25,
//	}); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// Console output is written to stderr. The optional log file receives JSON
// records and is rotated by lumberjack.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
