// Package relay drives one receiver stream through the UBX protocol engine.
//
// A Driver is the only component that performs I/O. It reads from a byte
// source into an index-tracked buffer, hands the buffer to the frame codec,
// feeds extracted frames to the protocol handler and writes forwarded
// frames and synthesized NAV-SOL messages to a byte sink:
//
//	src -> TryExtract -> Handler -> sink
//	                        |
//	                        +-> RecordSink.Display
//
// Only transport failures end Run with an error. Checksum mismatches,
// truncated payloads and missing prerequisites for NAV-SOL are logged,
// counted and otherwise ignored.
//
// Side channels are attached with options: WithRecordSink for decoded
// records (console printer, MQTT, JSONL capture), WithDiscardObserver for
// bytes dropped during resynchronization (NMEA sniffing) and WithObserver
// for metrics.
package relay
