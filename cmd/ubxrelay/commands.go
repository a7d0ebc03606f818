package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/ubxrelay/internal/config"
	"github.com/muurk/ubxrelay/internal/discovery"
	"github.com/muurk/ubxrelay/internal/nmea"
	"github.com/muurk/ubxrelay/internal/protocol"
	"github.com/muurk/ubxrelay/internal/relay"
	"github.com/muurk/ubxrelay/internal/transport"
	"github.com/muurk/ubxrelay/internal/ui"
)

func init() {
	addRelayFlags(runCmd)
	addRelayFlags(monitorCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(configCmd)
}

// Relay flags shared by run and monitor. Only flags set on the command
// line override the configuration file.
var relayFlags struct {
	port        string
	baud        int
	readTimeout time.Duration
	file        string
	output      string
	outputPath  string
	outputBaud  int
	week        int
	deriveWeek  bool
	sameEpoch   bool
	forwardAll  bool
	ws          bool
	wsAddr      string
	wsBuffer    int
	cert        string
	key         string
	metrics     bool
	mqttBroker  string
	mqttTopic   string
	mdns        bool
	mdnsName    string
	recordsDir  string
	quiet       bool
}

func addRelayFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&relayFlags.port, "port", "p", "", "Receiver serial port (e.g., /dev/ttyACM0)")
	f.IntVarP(&relayFlags.baud, "baud", "b", transport.DefaultBaudRate, "Receiver baud rate")
	f.DurationVar(&relayFlags.readTimeout, "read-timeout", time.Second, "Serial read timeout (0 blocks)")
	f.StringVar(&relayFlags.file, "file", "", "Replay a capture file instead of a serial port")
	f.StringVarP(&relayFlags.output, "output", "o", config.OutputSame, "Output (same, serial, file, stdout, none)")
	f.StringVar(&relayFlags.outputPath, "output-path", "", "Serial port or file for --output serial|file")
	f.IntVar(&relayFlags.outputBaud, "output-baud", 0, "Output serial baud rate (default: input baud)")
	f.IntVar(&relayFlags.week, "week", int(protocol.DefaultWeek), "GPS week written into NAV-SOL")
	f.BoolVar(&relayFlags.deriveWeek, "derive-week", false, "Derive the NAV-SOL week from the NAV-PVT date when valid")
	f.BoolVar(&relayFlags.sameEpoch, "same-epoch", false, "Only synthesize NAV-SOL from records of the same iTOW")
	f.BoolVar(&relayFlags.forwardAll, "forward-all", false, "Forward frames of every class, not only NAV")
	f.BoolVar(&relayFlags.ws, "ws", false, "Serve the relayed stream to websocket clients")
	f.StringVar(&relayFlags.wsAddr, "ws-addr", "", "Websocket listen address (e.g., :8090)")
	f.IntVar(&relayFlags.wsBuffer, "ws-buffer", 0, "Frames queued per websocket client")
	f.StringVar(&relayFlags.cert, "cert", "", "TLS certificate for the websocket listener")
	f.StringVar(&relayFlags.key, "key", "", "TLS private key for the websocket listener")
	f.BoolVar(&relayFlags.metrics, "metrics", false, "Serve Prometheus metrics on /metrics")
	f.StringVar(&relayFlags.mqttBroker, "mqtt-broker", "", "Publish records to this MQTT broker (e.g., tcp://localhost:1883)")
	f.StringVar(&relayFlags.mqttTopic, "mqtt-topic", "", "MQTT topic prefix")
	f.BoolVar(&relayFlags.mdns, "mdns", false, "Advertise the websocket listener over mDNS")
	f.StringVar(&relayFlags.mdnsName, "mdns-instance", "", "mDNS instance name (default: hostname)")
	f.StringVar(&relayFlags.recordsDir, "records-dir", "", "Append decoded records as JSON lines to a file in this directory")
	f.BoolVarP(&relayFlags.quiet, "quiet", "q", false, "Do not print decoded records")
}

// applyRelayFlags copies explicitly set flags into cfg and validates it
func applyRelayFlags(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	if changed("port") {
		cfg.Input.Port = relayFlags.port
		cfg.Input.File = ""
	}
	if changed("baud") {
		cfg.Input.Baud = relayFlags.baud
	}
	if changed("read-timeout") {
		cfg.Input.ReadTimeout = relayFlags.readTimeout
	}
	if changed("file") {
		cfg.Input.File = relayFlags.file
		if !changed("output") && cfg.Output.Kind == config.OutputSame {
			cfg.Output.Kind = config.OutputNone
		}
	}
	if changed("output") {
		cfg.Output.Kind = relayFlags.output
	}
	if changed("output-path") {
		cfg.Output.Path = relayFlags.outputPath
	}
	if changed("output-baud") {
		cfg.Output.Baud = relayFlags.outputBaud
	}
	if changed("week") {
		cfg.Solution.Week = relayFlags.week
	}
	if changed("derive-week") {
		cfg.Solution.DeriveWeek = relayFlags.deriveWeek
	}
	if changed("same-epoch") {
		cfg.Solution.RequireSameEpoch = relayFlags.sameEpoch
	}
	if changed("forward-all") {
		cfg.Forward.OtherClasses = relayFlags.forwardAll
	}
	if changed("ws") {
		cfg.WebSocket.Enabled = relayFlags.ws
	}
	if changed("ws-addr") {
		cfg.WebSocket.Addr = relayFlags.wsAddr
		cfg.WebSocket.Enabled = true
	}
	if changed("ws-buffer") {
		cfg.WebSocket.ClientBuffer = relayFlags.wsBuffer
	}
	if changed("cert") {
		cfg.WebSocket.Cert = relayFlags.cert
	}
	if changed("key") {
		cfg.WebSocket.Key = relayFlags.key
	}
	if changed("metrics") {
		cfg.Metrics.Enabled = relayFlags.metrics
		cfg.WebSocket.Enabled = cfg.WebSocket.Enabled || relayFlags.metrics
	}
	if changed("mqtt-broker") {
		cfg.MQTT.Broker = relayFlags.mqttBroker
		cfg.MQTT.Enabled = relayFlags.mqttBroker != ""
	}
	if changed("mqtt-topic") {
		cfg.MQTT.TopicPrefix = relayFlags.mqttTopic
	}
	if changed("mdns") {
		cfg.MDNS.Enabled = relayFlags.mdns
		cfg.WebSocket.Enabled = cfg.WebSocket.Enabled || relayFlags.mdns
	}
	if changed("mdns-instance") {
		cfg.MDNS.Instance = relayFlags.mdnsName
	}
	if changed("records-dir") {
		cfg.Display.RecordsDir = relayFlags.recordsDir
	}
	if changed("quiet") {
		cfg.Display.Console = !relayFlags.quiet
	}

	return cfg.Validate()
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newConsole returns the printer for human output. It moves to stderr when
// relayed frames are written to stdout.
func newConsole(cfg *config.Config) *ui.Printer {
	if cfg.Output.Kind == config.OutputStdout {
		return ui.NewPrinter(os.Stderr)
	}
	return ui.NewPrinter(os.Stdout)
}

func headerParams(p *pipeline) []ui.Param {
	params := []ui.Param{
		{Key: "Input", Value: p.inputName()},
		{Key: "Output", Value: p.outputName()},
	}
	week := fmt.Sprintf("%d", p.cfg.Solution.Week)
	if p.cfg.Solution.DeriveWeek {
		week += " (derived when valid)"
	}
	params = append(params, ui.Param{Key: "NAV-SOL week", Value: week})
	if p.srv != nil {
		params = append(params, ui.Param{Key: "Websocket", Value: p.srv.Addr().String() + "/ubx"})
	}
	if p.mqtt != nil {
		params = append(params, ui.Param{Key: "MQTT", Value: p.cfg.MQTT.Broker})
	}
	if p.jsonl != nil {
		params = append(params, ui.Param{Key: "Records", Value: p.jsonl.Path()})
	}
	return params
}

func statsDetails(st relay.Stats) []ui.Param {
	return []ui.Param{
		{Key: "Bytes read", Value: fmt.Sprintf("%d", st.BytesRead)},
		{Key: "Frames", Value: fmt.Sprintf("%d extracted, %d forwarded", st.FramesExtracted, st.FramesForwarded)},
		{Key: "NAV-SOL", Value: fmt.Sprintf("%d synthesized, %d skipped", st.SolutionsBuilt, st.SolutionsSkipped)},
		{Key: "Discarded", Value: fmt.Sprintf("%d bytes (%d checksum errors)", st.BytesDiscarded, st.ChecksumMismatches)},
	}
}

// runCmd relays the receiver stream
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Relay the receiver stream",
	Long: `Relay the UBX stream of a receiver.

Every checksum-valid NAV frame is retransmitted on the output, followed by a
synthesized NAV-SOL after each NAV-VELECEF. Decoded records are printed one
per line unless --quiet is set.

By default frames are written back to the port they were read from.`,
	Example: `  # Relay /dev/ttyACM0 back onto itself
  ubxrelay run --port /dev/ttyACM0

  # Relay to a second receiver port and to websocket clients
  ubxrelay run --port /dev/ttyACM0 --output serial --output-path /dev/ttyUSB0 --ws-addr :8090

  # Replay a capture, writing the relayed stream to a file
  ubxrelay run --file capture.ubx --output file --output-path relayed.ubx

  # Pipe the relayed stream to another program
  ubxrelay run --port /dev/ttyACM0 --output stdout --quiet | str2str -in -`,
	Args: cobra.NoArgs,
	RunE: runRelay,
}

func runRelay(cmd *cobra.Command, args []string) error {
	if err := applyRelayFlags(cmd, cfg); err != nil {
		return err
	}

	console := newConsole(cfg)
	var display relay.RecordSink
	if cfg.Display.Console {
		display = console
	}

	p, err := openPipeline(cfg, display)
	if err != nil {
		console.PrintResult(ui.NewFailureResult("Cannot start relay", err, troubleshooting(err)...))
		return err
	}
	defer p.Close()

	console.PrintHeader(ui.NewHeader("UBX Relay", "ubxrelay run", headerParams(p)...))

	ctx, stop := signalContext()
	defer stop()

	err = p.Run(ctx)
	st := p.driver.Stats()
	if err != nil {
		console.PrintResult(ui.NewFailureResult("Relay failed", err, troubleshooting(err)...))
		return err
	}

	console.PrintResult(ui.NewSuccessResult("Relay stopped", statsDetails(st)...))
	return nil
}

// monitorCmd relays with a live dashboard
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Relay with a live dashboard",
	Long: `Relay the receiver stream like 'run' and show a full-screen dashboard of
the latest fix, the last synthesized NAV-SOL and the relay counters.

Press q to quit, c to clear the latest records.`,
	Example: `  ubxrelay monitor --port /dev/ttyACM0
  ubxrelay monitor --file capture.ubx`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if err := applyRelayFlags(cmd, cfg); err != nil {
		return err
	}
	if cfg.Output.Kind == config.OutputStdout {
		return errors.New("monitor draws on stdout; choose another --output")
	}
	if !ui.IsTerminal(os.Stdout) {
		return errors.New("monitor needs a terminal; use 'ubxrelay run' instead")
	}

	var mon *ui.Monitor
	p, err := openPipeline(cfg, relay.RecordSinkFunc(func(msg protocol.Message) {
		mon.Display(msg)
	}))
	if err != nil {
		ui.NewPrinter(os.Stdout).PrintResult(ui.NewFailureResult("Cannot start relay", err, troubleshooting(err)...))
		return err
	}
	defer p.Close()

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	monCfg := ui.MonitorConfig{
		Input:  p.inputName(),
		Output: p.outputName(),
		Stats:  p.driver.Stats,
		OnQuit: cancel,
	}
	if p.hub != nil {
		monCfg.Clients = p.clients
	}
	mon = ui.NewMonitor(monCfg, os.Stdout)

	relayErr := make(chan error, 1)
	go func() {
		err := p.Run(ctx)
		mon.Stopped(err)
		relayErr <- err
	}()

	// a signal stops the relay and closes the dashboard
	go func() {
		<-ctx.Done()
		mon.Quit()
	}()

	if err := mon.Run(); err != nil {
		cancel()
		<-relayErr
		return fmt.Errorf("dashboard error: %w", err)
	}

	cancel()
	return <-relayErr
}

// Decode command flags
var (
	decodeAll   bool
	decodeQuiet bool
)

// decodeCmd prints the records of a capture file
var decodeCmd = &cobra.Command{
	Use:   "decode <capture>",
	Short: "Decode a UBX capture file",
	Long: `Print every record found in a capture file.

Captures of relay output include the synthesized NAV-SOL messages, which
are decoded as well. NMEA sentences interleaved with the binary stream are
counted in the summary.`,
	Example: `  ubxrelay decode capture.ubx
  ubxrelay decode relayed.ubx --all`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().BoolVar(&decodeAll, "all", false, "Also print frames that are not decoded")
	decodeCmd.Flags().BoolVarP(&decodeQuiet, "quiet", "q", false, "Only print the summary")
}

func runDecode(cmd *cobra.Command, args []string) error {
	console := ui.NewPrinter(os.Stdout)

	in, err := transport.OpenFile(args[0])
	if err != nil {
		console.PrintResult(ui.NewFailureResult("Cannot open capture", err, troubleshooting(err)...))
		return err
	}
	defer in.Close()

	console.PrintHeader(ui.NewHeader("UBX Decode", "ubxrelay decode", ui.Param{Key: "Capture", Value: args[0]}))

	sink := relay.RecordSinkFunc(func(msg protocol.Message) {
		if decodeQuiet {
			return
		}
		if _, unknown := msg.(*protocol.UnknownMessage); unknown && !decodeAll {
			return
		}
		console.Display(msg)
	})
	sniffer := nmea.NewSniffer(nil)

	ctx, stop := signalContext()
	defer stop()

	sum, err := relay.Decode(ctx, in, sink, sniffer)
	if err != nil {
		console.PrintResult(ui.NewFailureResult("Decode failed", err))
		return err
	}

	result := ui.NewSuccessResult("Capture decoded",
		ui.Param{Key: "Frames", Value: fmt.Sprintf("%d", sum.Frames)},
		ui.Param{Key: "Records", Value: fmt.Sprintf("%d (%d NAV-SOL)", sum.Records, sum.Solutions)},
		ui.Param{Key: "Not decoded", Value: fmt.Sprintf("%d", sum.Unknown)},
		ui.Param{Key: "Decode errors", Value: fmt.Sprintf("%d", sum.DecodeErrors)},
		ui.Param{Key: "Discarded", Value: fmt.Sprintf("%d bytes", sum.BytesDiscarded)},
	)
	if counts := sniffer.Counts(); len(counts) > 0 {
		result.AddDetail("NMEA", formatCounts(counts))
	}
	if sum.Frames == 0 {
		result = ui.NewWarningResult("No UBX frames found", result.Details...)
	}
	console.Newline()
	console.PrintResult(result)
	return nil
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}

// Discover command flags
var (
	discoverTimeout  time.Duration
	discoverInstance string
)

// discoverCmd browses for relays on the LAN
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find relays advertised on the network",
	Long: `Browse the local network for relays started with --mdns and print their
websocket stream URLs.`,
	Example: `  # Scan for 5 seconds (default)
  ubxrelay discover

  # Look up one relay by instance name
  ubxrelay discover --instance rover`,
	Args: cobra.NoArgs,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", discovery.DefaultScanTimeout, "Scan timeout")
	discoverCmd.Flags().StringVar(&discoverInstance, "instance", "", "Only look for this instance")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	console := ui.NewPrinter(os.Stdout)
	console.PrintHeader(ui.NewHeader("Relay Discovery", "ubxrelay discover",
		ui.Param{Key: "Service", Value: discovery.ServiceType},
		ui.Param{Key: "Timeout", Value: discoverTimeout.String()},
	))

	ctx, stop := signalContext()
	defer stop()

	scanner := discovery.NewScanner()
	scanner.Timeout = discoverTimeout

	var relays []*discovery.Relay
	if discoverInstance != "" {
		r, err := scanner.FindRelay(ctx, discoverInstance)
		if err != nil {
			console.PrintResult(ui.NewFailureResult("Relay not found", err,
				"Check the relay runs with --mdns",
				"Try increasing --timeout",
			))
			return err
		}
		relays = append(relays, r)
	} else {
		found, err := scanner.Scan(ctx)
		if err != nil {
			console.PrintResult(ui.NewFailureResult("Discovery failed", err))
			return err
		}
		relays = found
	}

	if len(relays) == 0 {
		console.PrintResult(ui.NewFailureResult("No relays found", nil,
			"Start a relay with: ubxrelay run --mdns",
			"Multicast traffic may be blocked between subnets",
			"Try increasing --timeout for slower networks",
		))
		return nil
	}

	for i, r := range relays {
		console.Println(fmt.Sprintf("%d. %s", i+1, r))
		console.Println("   Stream:  " + r.StreamURL())
		console.Println("   Status:  " + r.BaseURL() + "/status")
		if v := r.GetMetadata(discovery.TxtVersion); v != "" {
			console.Println("   Version: " + v)
		}
		if in := r.GetMetadata(discovery.TxtInput); in != "" {
			console.Println("   Input:   " + in)
		}
		console.Newline()
	}
	return nil
}

// configCmd groups configuration file commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	// The file may not exist or be invalid yet
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Args:              cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.CreateDefaultConfig(configPath, configForce)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		path := configPath
		if path == "" {
			path, _ = config.GetConfigPath()
		}
		fmt.Printf("# %s\n%s", path, data)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
