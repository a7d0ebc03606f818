// Package discovery advertises and finds relays on the local network.
//
// A running relay registers itself as a "_ubxrelay._tcp" mDNS service on
// the port of its HTTP server. TXT records carry the stream path, the
// relay version and the input it reads from, so a client can connect to
// the websocket stream without further configuration.
//
// # Usage Example
//
//	relays, err := discovery.NewScanner().Scan(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, r := range relays {
//	    fmt.Println(r.Instance, r.StreamURL())
//	}
//
// # Network Requirements
//
//   - Requires multicast support on the network interface
//   - Relays must be on the same local network segment
//   - Firewall must allow mDNS (UDP port 5353)
package discovery
