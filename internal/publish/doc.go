// Package publish sends decoded records to an MQTT broker.
//
// Each record becomes one JSON message on <prefix>/<message>:
//
//	ubxrelay/nav-pvt
//	ubxrelay/nav-posecef
//	ubxrelay/nav-velecef
//	ubxrelay/nav-timeutc
//	ubxrelay/nav-sol
//
// The payload has the same shape as a line of a JSONL record capture.
package publish
