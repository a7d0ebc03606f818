package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Relay represents a ubxrelay instance found on the network
type Relay struct {
	// Instance is the advertised instance name (e.g., "ubxrelay-rover")
	Instance string

	// Hostname is the mDNS hostname (e.g., "rover.local.")
	Hostname string

	// IP is the address to connect to, IPv4 preferred
	IP string

	// Port is the HTTP port serving /ubx, /metrics and /status
	Port int

	// Metadata contains the TXT record data
	// Common fields: "version=v1.2.0", "path=/ubx", "input=/dev/ttyACM0"
	Metadata map[string]string

	// DiscoveredAt is when the relay was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the relay
func (r *Relay) String() string {
	return fmt.Sprintf("ubxrelay %s (%s) at %s", r.Instance, r.Hostname, r.hostPort())
}

// BaseURL returns the HTTP base URL for the relay
func (r *Relay) BaseURL() string {
	return "http://" + r.hostPort()
}

// StreamURL returns the websocket URL of the relayed UBX stream
func (r *Relay) StreamURL() string {
	path := r.GetMetadata(TxtPath)
	if path == "" {
		path = DefaultStreamPath
	}
	return "ws://" + r.hostPort() + path
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (r *Relay) GetMetadata(key string) string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata[key]
}

func (r *Relay) hostPort() string {
	return net.JoinHostPort(r.IP, strconv.Itoa(r.Port))
}
