// Package nmea recovers NMEA 0183 sentences from a mixed UBX/NMEA stream.
package nmea
