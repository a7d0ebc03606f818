package discovery

import (
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name         string
		entry        *zeroconf.ServiceEntry
		wantNil      bool
		wantInstance string
		wantIP       string
		wantPort     int
	}{
		{
			name: "relay with IPv4",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "ubxrelay-rover"},
				HostName:      "rover.local.",
				Port:          8090,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.4.16")},
				Text:          []string{"path=/ubx", "version=v1.2.0"},
			},
			wantInstance: "ubxrelay-rover",
			wantIP:       "192.168.4.16",
			wantPort:     8090,
		},
		{
			name: "escaped instance name",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: `base\ station`},
				HostName:      "base.local.",
				Port:          8090,
				AddrIPv4:      []net.IP{net.ParseIP("10.0.0.5")},
			},
			wantInstance: "base station",
			wantIP:       "10.0.0.5",
			wantPort:     8090,
		},
		{
			name: "IPv6 only relay",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "v6"},
				HostName:      "v6.local.",
				Port:          9000,
				AddrIPv6:      []net.IP{net.ParseIP("fe80::1")},
			},
			wantInstance: "v6",
			wantIP:       "fe80::1",
			wantPort:     9000,
		},
		{
			name: "both families (should prefer IPv4)",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "dual"},
				HostName:      "dual.local.",
				Port:          8090,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.50")},
				AddrIPv6:      []net.IP{net.ParseIP("fe80::2")},
			},
			wantInstance: "dual",
			wantIP:       "192.168.1.50",
			wantPort:     8090,
		},
		{
			name: "no IP address",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "ghost"},
				Port:          8090,
			},
			wantNil: true,
		},
		{
			name: "no port",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "noport"},
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.1")},
			},
			wantNil: true,
		},
		{
			name: "no instance",
			entry: &zeroconf.ServiceEntry{
				Port:     8090,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.1")},
			},
			wantNil: true,
		},
		{
			name:    "nil entry",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay := parseServiceEntry(tt.entry)

			if tt.wantNil {
				if relay != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", relay)
				}
				return
			}
			if relay == nil {
				t.Fatal("parseServiceEntry() = nil, want relay")
			}

			if relay.Instance != tt.wantInstance {
				t.Errorf("relay.Instance = %v, want %v", relay.Instance, tt.wantInstance)
			}
			if relay.IP != tt.wantIP {
				t.Errorf("relay.IP = %v, want %v", relay.IP, tt.wantIP)
			}
			if relay.Port != tt.wantPort {
				t.Errorf("relay.Port = %v, want %v", relay.Port, tt.wantPort)
			}
			if relay.Hostname != tt.entry.HostName {
				t.Errorf("relay.Hostname = %v, want %v", relay.Hostname, tt.entry.HostName)
			}
			if time.Since(relay.DiscoveredAt) > time.Second {
				t.Errorf("relay.DiscoveredAt is not recent: %v", relay.DiscoveredAt)
			}
		})
	}
}

func TestTXTRoundTrip(t *testing.T) {
	metadata := map[string]string{
		TxtVersion: "v1.2.0",
		TxtPath:    "/ubx",
		TxtInput:   "/dev/ttyACM0",
	}

	txt := encodeTXT(metadata)
	want := []string{"input=/dev/ttyACM0", "path=/ubx", "version=v1.2.0"}
	if !reflect.DeepEqual(txt, want) {
		t.Errorf("encodeTXT() = %v, want %v", txt, want)
	}
	if got := decodeTXT(txt); !reflect.DeepEqual(got, metadata) {
		t.Errorf("decodeTXT() = %v, want %v", got, metadata)
	}
}

func TestDecodeTXT(t *testing.T) {
	got := decodeTXT([]string{"path=/ubx", "flag", "expr=a=b", "=orphan"})
	want := map[string]string{
		"path": "/ubx",
		"flag": "", // Key without value
		"expr": "a=b",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("decodeTXT() = %v, want %v", got, want)
	}
}

func TestSortRelays(t *testing.T) {
	found := map[string]*Relay{
		"rover": {Instance: "rover"},
		"base":  {Instance: "base"},
		"mast":  {Instance: "mast"},
	}
	relays := sortRelays(found)
	var names []string
	for _, r := range relays {
		names = append(names, r.Instance)
	}
	if !reflect.DeepEqual(names, []string{"base", "mast", "rover"}) {
		t.Errorf("sortRelays() order = %v", names)
	}
}

func TestAdvertiseValidation(t *testing.T) {
	tests := []struct {
		name     string
		instance string
		port     int
	}{
		{"empty instance", "", 8090},
		{"zero port", "rover", 0},
		{"port out of range", "rover", 70000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Advertise(tt.instance, tt.port, nil); err == nil {
				t.Error("Advertise() error = nil, want error")
			}
		})
	}

	// Shutdown is safe on a nil advertiser
	var a *Advertiser
	a.Shutdown()
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()

	if scanner == nil {
		t.Fatal("NewScanner() = nil, want scanner")
	}
	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("scanner.Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}
