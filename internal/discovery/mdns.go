package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/ubxrelay/internal/logging"
)

const (
	// ServiceType is the mDNS service type relays advertise
	ServiceType = "_ubxrelay._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for relay discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultStreamPath is assumed when a relay does not publish "path"
	DefaultStreamPath = "/ubx"
)

// TXT record keys
const (
	TxtVersion = "version"
	TxtPath    = "path"
	TxtInput   = "input"
)

// Advertiser publishes the relay's HTTP endpoint over mDNS
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers instance on port. Metadata is published as TXT
// records; call Shutdown to withdraw the announcement.
func Advertise(instance string, port int, metadata map[string]string) (*Advertiser, error) {
	if instance == "" {
		return nil, errors.New("mdns: instance name is required")
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("mdns: invalid port %d", port)
	}

	txt := encodeTXT(metadata)
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logging.Info("Advertising relay over mDNS",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
		zap.Strings("txt", txt),
	)

	return &Advertiser{server: server}, nil
}

// Shutdown withdraws the announcement
func (a *Advertiser) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
}

// Scanner handles mDNS relay discovery
type Scanner struct {
	// Timeout is the maximum time to wait for relay discovery
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan discovers relays until the timeout or ctx expires. Relays are
// returned sorted by instance name.
func (s *Scanner) Scan(ctx context.Context) ([]*Relay, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	var mu sync.Mutex
	found := make(map[string]*Relay)
	drain := make(chan struct{})
	entries := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(drain)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if relay := parseServiceEntry(entry); relay != nil {
					mu.Lock()
					found[relay.Instance] = relay
					mu.Unlock()
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	<-drain

	mu.Lock()
	defer mu.Unlock()
	return sortRelays(found), nil
}

// FindRelay waits for the relay advertising instance
func (s *Scanner) FindRelay(ctx context.Context, instance string) (*Relay, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	relayChan := make(chan *Relay, 1)

	go func() {
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if relay := parseServiceEntry(entry); relay != nil && relay.Instance == instance {
					relayChan <- relay
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Lookup(ctx, instance, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to look up mDNS service: %w", err)
	}

	select {
	case relay := <-relayChan:
		return relay, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("relay %q not found within %s", instance, s.Timeout)
	}
}

// parseServiceEntry converts a zeroconf service entry to a Relay.
// Returns nil if the entry has no usable address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Relay {
	if entry == nil || entry.Instance == "" || entry.Port == 0 {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	return &Relay{
		Instance:     unescapeInstance(entry.Instance),
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Metadata:     decodeTXT(entry.Text),
		DiscoveredAt: time.Now(),
	}
}

// encodeTXT renders metadata as key=value records in key order
func encodeTXT(metadata map[string]string) []string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	txt := make([]string, 0, len(keys))
	for _, k := range keys {
		txt = append(txt, k+"="+metadata[k])
	}
	return txt
}

func decodeTXT(txt []string) map[string]string {
	metadata := make(map[string]string, len(txt))
	for _, record := range txt {
		// TXT records are in "key=value" format
		key, value, _ := strings.Cut(record, "=")
		if key != "" {
			metadata[key] = value
		}
	}
	return metadata
}

// zeroconf escapes spaces and dots in instance names
func unescapeInstance(s string) string {
	return strings.ReplaceAll(s, `\`, "")
}

func sortRelays(found map[string]*Relay) []*Relay {
	relays := make([]*Relay, 0, len(found))
	for _, r := range found {
		relays = append(relays, r)
	}
	sort.Slice(relays, func(i, j int) bool { return relays[i].Instance < relays[j].Instance })
	return relays
}
