package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/ubxrelay/internal/config"
	"github.com/muurk/ubxrelay/internal/discovery"
	"github.com/muurk/ubxrelay/internal/logging"
	"github.com/muurk/ubxrelay/internal/metrics"
	"github.com/muurk/ubxrelay/internal/nmea"
	"github.com/muurk/ubxrelay/internal/protocol"
	"github.com/muurk/ubxrelay/internal/publish"
	"github.com/muurk/ubxrelay/internal/relay"
	"github.com/muurk/ubxrelay/internal/server"
	"github.com/muurk/ubxrelay/internal/transport"
	"github.com/muurk/ubxrelay/internal/version"
)

// pipeline is one relay session: the receiver endpoints, the driver and
// every side channel enabled in the configuration.
type pipeline struct {
	cfg *config.Config

	input      *transport.Endpoint
	output     io.WriteCloser
	ownsOutput bool

	collector *metrics.Collector
	sniffer   *nmea.Sniffer
	hub       *server.Hub
	srv       *server.Server
	mqtt      *publish.MQTTSink
	jsonl     *relay.JSONLSink
	adv       *discovery.Advertiser

	driver *relay.Driver
}

// stage names the part of the pipeline that failed to open
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// openPipeline opens the endpoints and side channels described by cfg.
// display receives decoded records in addition to the configured sinks.
// On error everything opened so far is closed.
func openPipeline(cfg *config.Config, display relay.RecordSink) (p *pipeline, err error) {
	p = &pipeline{
		cfg:       cfg,
		collector: metrics.NewCollector(),
	}
	defer func() {
		if err != nil {
			p.Close()
			p = nil
		}
	}()

	p.sniffer = nmea.NewSniffer(p.collector)

	if cfg.Input.File != "" {
		p.input, err = transport.OpenFile(cfg.Input.File)
	} else {
		p.input, err = transport.OpenSerial(transport.SerialOptions{
			Port:        cfg.Input.Port,
			Baud:        cfg.Input.Baud,
			ReadTimeout: cfg.Input.ReadTimeout,
		})
	}
	if err != nil {
		return p, &stageError{"input", err}
	}

	outBaud := cfg.Output.Baud
	if outBaud == 0 {
		outBaud = cfg.Input.Baud
	}
	p.output, err = transport.OpenOutput(transport.OutputOptions{
		Kind: cfg.Output.Kind,
		Path: cfg.Output.Path,
		Baud: outBaud,
	}, p.input)
	if err != nil {
		return p, &stageError{"output", err}
	}
	p.ownsOutput = cfg.Output.Kind != config.OutputSame && cfg.Output.Kind != ""

	sink := io.Writer(p.output)
	if cfg.WebSocket.Enabled {
		p.hub = server.NewHub(cfg.WebSocket.ClientBuffer, p.collector)
		sink = io.MultiWriter(p.output, p.hub)

		opts := []server.Option{server.WithStatus(p.status)}
		if cfg.Metrics.Enabled {
			opts = append(opts, server.WithMetrics(p.collector.Handler()))
		}
		p.srv, err = server.New(server.Config{
			Addr:     cfg.WebSocket.Addr,
			CertPath: cfg.WebSocket.Cert,
			KeyPath:  cfg.WebSocket.Key,
		}, p.hub, opts...)
		if err != nil {
			return p, &stageError{"websocket", err}
		}
		if err = p.srv.Listen(); err != nil {
			return p, &stageError{"websocket", err}
		}
	}

	records := relay.MultiSink{display}

	if cfg.MQTT.Enabled {
		p.mqtt, err = publish.Connect(publish.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    os.Getenv(config.MQTTPasswordEnvVar),
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
			Retain:      cfg.MQTT.Retain,
		}, p.collector)
		if err != nil {
			return p, &stageError{"mqtt", err}
		}
		records = append(records, p.mqtt)
	}

	if cfg.Display.RecordsDir != "" {
		p.jsonl, err = relay.NewJSONLSink(cfg.Display.RecordsDir)
		if err != nil {
			return p, &stageError{"records", err}
		}
		records = append(records, p.jsonl)
	}

	if cfg.MDNS.Enabled && p.srv != nil {
		instance := cfg.MDNS.Instance
		if instance == "" {
			instance, _ = os.Hostname()
		}
		p.adv, err = discovery.Advertise(instance, p.srv.Port(), map[string]string{
			discovery.TxtVersion: version.Version,
			discovery.TxtPath:    server.PathStream,
			discovery.TxtInput:   p.input.Path(),
		})
		if err != nil {
			return p, &stageError{"mdns", err}
		}
	}

	p.driver = relay.New(p.input, sink, driverOptions(cfg),
		relay.WithRecordSink(records),
		relay.WithDiscardObserver(p.sniffer),
		relay.WithObserver(p.collector),
	)
	return p, nil
}

func driverOptions(cfg *config.Config) relay.Options {
	opts := relay.DefaultOptions()
	opts.Handler.Solution = protocol.SolutionOptions{
		Week:             int16(cfg.Solution.Week),
		DeriveWeek:       cfg.Solution.DeriveWeek,
		RequireSameEpoch: cfg.Solution.RequireSameEpoch,
	}
	opts.Handler.ForwardOtherClasses = cfg.Forward.OtherClasses
	return opts
}

// relayStatus is the relay section of /status
type relayStatus struct {
	Input     string         `json:"input"`
	Output    string         `json:"output"`
	Stats     relay.Stats    `json:"stats"`
	Sentences map[string]int `json:"nmea_sentences,omitempty"`
	Fix       *nmea.Fix      `json:"nmea_fix,omitempty"`
}

func (p *pipeline) status() any {
	st := relayStatus{
		Input:     p.input.Path(),
		Output:    p.outputName(),
		Stats:     p.driver.Stats(),
		Sentences: p.sniffer.Counts(),
	}
	if fix, ok := p.sniffer.Fix(); ok {
		st.Fix = &fix
	}
	return st
}

func (p *pipeline) inputName() string {
	if p.cfg.Input.File != "" {
		return p.cfg.Input.File
	}
	return fmt.Sprintf("%s @ %d", p.cfg.Input.Port, p.cfg.Input.Baud)
}

func (p *pipeline) outputName() string {
	switch p.cfg.Output.Kind {
	case config.OutputSame, "":
		return "same port"
	case config.OutputSerial, config.OutputFile:
		return p.cfg.Output.Kind + " " + p.cfg.Output.Path
	default:
		return p.cfg.Output.Kind
	}
}

// clients returns the number of websocket subscribers
func (p *pipeline) clients() int {
	if p.hub == nil {
		return 0
	}
	return p.hub.Clients()
}

// Run relays until ctx is cancelled or the input ends or fails. The HTTP
// server, when enabled, runs alongside and stops with the relay.
func (p *pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	srvErr := make(chan error, 1)
	if p.srv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.srv.Start(ctx); err != nil {
				srvErr <- err
				cancel()
			}
		}()
	}

	// the driver only notices cancellation between reads
	stop := context.AfterFunc(ctx, func() {
		if p.cfg.Input.ReadTimeout == 0 || p.cfg.Input.File != "" {
			_ = p.input.Close()
		}
	})
	defer stop()

	err := p.driver.Run(ctx)
	cancel()
	wg.Wait()

	if err != nil {
		return err
	}
	select {
	case err := <-srvErr:
		return err
	default:
		return nil
	}
}

// Close releases everything the pipeline opened, in reverse order
func (p *pipeline) Close() {
	p.adv.Shutdown()
	if p.hub != nil {
		p.hub.Close()
	}
	if p.mqtt != nil {
		if err := p.mqtt.Close(); err != nil {
			logging.Warn("Failed to close MQTT publisher", zap.Error(err))
		}
	}
	if p.jsonl != nil {
		if err := p.jsonl.Close(); err != nil {
			logging.Warn("Failed to close record file", zap.Error(err))
		}
	}
	if p.ownsOutput && p.output != nil {
		if err := p.output.Close(); err != nil {
			logging.Warn("Failed to close output", zap.Error(err))
		}
	}
	if p.input != nil {
		if err := p.input.Close(); err != nil {
			logging.Debug("Failed to close input", zap.Error(err))
		}
	}
}

// troubleshooting turns a pipeline error into tips for a failure box
func troubleshooting(err error) []string {
	var te *transport.TransportError
	if errors.As(err, &te) {
		var tips []string
		for _, line := range strings.Split(transport.GetTroubleshootingHint(err), "\n") {
			line = strings.TrimSpace(line)
			line = strings.TrimSpace(strings.TrimPrefix(line, "•"))
			if line == "" || line == "Troubleshooting:" {
				continue
			}
			tips = append(tips, line)
		}
		return tips
	}

	var se *stageError
	if errors.As(err, &se) {
		switch se.stage {
		case "websocket":
			return []string{
				"Check that " + cfgAddr() + " is free: ss -ltnp",
				"Pick another listen address with --ws-addr",
			}
		case "mqtt":
			return []string{
				"Check the broker address and that it is reachable",
				"Set " + config.MQTTPasswordEnvVar + " when the broker requires a password",
			}
		case "mdns":
			return []string{"Multicast may be blocked on this network; disable with --mdns=false"}
		}
	}
	return nil
}

func cfgAddr() string {
	if cfg == nil {
		return "the listen address"
	}
	return cfg.WebSocket.Addr
}
