// Package ui provides terminal output for the ubxrelay CLI.
//
// It uses Lipgloss for styling and Bubble Tea for the live dashboard.
//
// # Components
//
//   - Header: command banner showing the operation and its parameters
//   - Result: success, failure, or warning box with troubleshooting tips
//   - Printer: serialized writer for headers, results, and record lines
//   - Monitor: full-screen dashboard of the latest fix, the last
//     synthesized NAV-SOL, and the relay counters
//
// Printer and Monitor both implement relay.RecordSink, so either can be
// attached to a relay.Driver with relay.WithRecordSink.
//
// # Logging Integration
//
// Relay output may be written to stdout, so zap logs go to stderr or a log
// file. Styled output is meant for humans and carries no information that
// is not also logged.
package ui
