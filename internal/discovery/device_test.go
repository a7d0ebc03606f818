package discovery

import "testing"

func TestRelay_String(t *testing.T) {
	relay := &Relay{
		Instance: "ubxrelay-rover",
		Hostname: "rover.local.",
		IP:       "192.168.4.16",
		Port:     8090,
	}

	expected := "ubxrelay ubxrelay-rover (rover.local.) at 192.168.4.16:8090"
	if relay.String() != expected {
		t.Errorf("Relay.String() = %v, want %v", relay.String(), expected)
	}
}

func TestRelay_URLs(t *testing.T) {
	tests := []struct {
		name       string
		relay      *Relay
		wantBase   string
		wantStream string
	}{
		{
			name:       "default stream path",
			relay:      &Relay{IP: "192.168.4.16", Port: 8090},
			wantBase:   "http://192.168.4.16:8090",
			wantStream: "ws://192.168.4.16:8090/ubx",
		},
		{
			name: "advertised stream path",
			relay: &Relay{
				IP:       "10.0.0.5",
				Port:     9000,
				Metadata: map[string]string{TxtPath: "/stream"},
			},
			wantBase:   "http://10.0.0.5:9000",
			wantStream: "ws://10.0.0.5:9000/stream",
		},
		{
			name:       "IPv6",
			relay:      &Relay{IP: "fe80::1", Port: 8090},
			wantBase:   "http://[fe80::1]:8090",
			wantStream: "ws://[fe80::1]:8090/ubx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.relay.BaseURL(); got != tt.wantBase {
				t.Errorf("Relay.BaseURL() = %v, want %v", got, tt.wantBase)
			}
			if got := tt.relay.StreamURL(); got != tt.wantStream {
				t.Errorf("Relay.StreamURL() = %v, want %v", got, tt.wantStream)
			}
		})
	}
}

func TestRelay_GetMetadata(t *testing.T) {
	relay := &Relay{
		Metadata: map[string]string{
			TxtPath:    "/ubx",
			TxtVersion: "v1.2.0",
		},
	}

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{"existing key", TxtPath, "/ubx"},
		{"another existing key", TxtVersion, "v1.2.0"},
		{"non-existent key", "missing", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := relay.GetMetadata(tt.key); got != tt.expected {
				t.Errorf("Relay.GetMetadata(%v) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}

	var empty Relay
	if got := empty.GetMetadata("anything"); got != "" {
		t.Errorf("Relay.GetMetadata() with nil map = %v, want empty string", got)
	}
}
