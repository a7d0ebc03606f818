package config

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// CurrentVersion is the only configuration file version understood
const CurrentVersion = 1

// MQTTPasswordEnvVar supplies the broker password. Passwords are never
// written to the configuration file.
const MQTTPasswordEnvVar = "UBXRELAY_MQTT_PASSWORD"

// Output kinds, mirrored by the transport package
const (
	OutputSame   = "same"
	OutputSerial = "serial"
	OutputFile   = "file"
	OutputStdout = "stdout"
	OutputNone   = "none"
)

// Config represents the entire configuration file.
type Config struct {
	Version   int             `yaml:"version"`
	Input     InputConfig     `yaml:"input"`
	Output    OutputConfig    `yaml:"output"`
	Solution  SolutionConfig  `yaml:"solution"`
	Forward   ForwardConfig   `yaml:"forward"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	MDNS      MDNSConfig      `yaml:"mdns"`
	Logging   LoggingConfig   `yaml:"logging"`
	Display   DisplayConfig   `yaml:"display"`
}

// InputConfig selects the receiver stream. File, when set, replays a
// capture instead of opening Port.
type InputConfig struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	File        string        `yaml:"file,omitempty"`
}

// OutputConfig selects where relayed frames are written
type OutputConfig struct {
	Kind string `yaml:"kind"`           // same, serial, file, stdout, none
	Path string `yaml:"path,omitempty"` // serial port or capture file
	Baud int    `yaml:"baud,omitempty"` // serial only; input baud when zero
}

// SolutionConfig controls NAV-SOL synthesis
type SolutionConfig struct {
	Week             int  `yaml:"week"`
	DeriveWeek       bool `yaml:"derive_week"`
	RequireSameEpoch bool `yaml:"require_same_epoch"`
}

// ForwardConfig controls which frames are retransmitted
type ForwardConfig struct {
	OtherClasses bool `yaml:"other_classes"` // frames outside class 0x01
}

// WebSocketConfig configures the HTTP listener that fans the relay output
// out to websocket clients. It also serves /metrics and /status.
type WebSocketConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Addr         string `yaml:"addr"`
	Cert         string `yaml:"cert,omitempty"`
	Key          string `yaml:"key,omitempty"`
	ClientBuffer int    `yaml:"client_buffer"` // frames queued per client
}

// MQTTConfig configures record publishing
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // e.g., "tcp://localhost:1883"
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username,omitempty"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

// MetricsConfig enables the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MDNSConfig controls service advertisement
type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance,omitempty"` // hostname when empty
}

// LoggingConfig configures zap. An empty level keeps console logging
// silent unless UBXRELAY_LOG_LEVEL is set.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DisplayConfig controls the record sinks of the run command
type DisplayConfig struct {
	Console    bool   `yaml:"console"`               // print one line per record
	RecordsDir string `yaml:"records_dir,omitempty"` // JSON-lines record log
}

// Default returns a configuration that relays /dev/ttyACM0 back onto
// itself with every side channel disabled.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Input: InputConfig{
			Port:        "/dev/ttyACM0",
			Baud:        38400,
			ReadTimeout: time.Second,
		},
		Output:   OutputConfig{Kind: OutputSame},
		Solution: SolutionConfig{Week: 2035},
		WebSocket: WebSocketConfig{
			Addr:         ":8090",
			ClientBuffer: 256,
		},
		MQTT: MQTTConfig{
			ClientID:    "ubxrelay",
			TopicPrefix: "ubxrelay",
		},
		Logging: LoggingConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Display: DisplayConfig{Console: true},
	}
}

// Validate checks the configuration and returns every problem found,
// joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Version != CurrentVersion {
		errs = append(errs, fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion))
	}

	// Input
	switch {
	case c.Input.File == "" && c.Input.Port == "":
		errs = append(errs, errors.New("input: port or file is required"))
	case c.Input.File == "" && c.Input.Baud <= 0:
		errs = append(errs, fmt.Errorf("input: baud must be positive, got %d", c.Input.Baud))
	}
	if c.Input.ReadTimeout < 0 {
		errs = append(errs, fmt.Errorf("input: read_timeout must not be negative, got %s", c.Input.ReadTimeout))
	}

	// Output
	switch c.Output.Kind {
	case OutputSame, "":
		if c.Input.File != "" {
			errs = append(errs, errors.New("output: kind \"same\" requires a serial input"))
		}
	case OutputSerial, OutputFile:
		if c.Output.Path == "" {
			errs = append(errs, fmt.Errorf("output: kind %q requires a path", c.Output.Kind))
		}
	case OutputStdout, OutputNone:
	default:
		errs = append(errs, fmt.Errorf("output: unknown kind %q", c.Output.Kind))
	}
	if c.Output.Baud < 0 {
		errs = append(errs, fmt.Errorf("output: baud must not be negative, got %d", c.Output.Baud))
	}

	// Solution: week is written as a signed 16-bit field
	if c.Solution.Week < 0 || c.Solution.Week > 32767 {
		errs = append(errs, fmt.Errorf("solution: week must be 0-32767, got %d", c.Solution.Week))
	}

	// WebSocket
	if c.WebSocket.Enabled {
		if _, _, err := net.SplitHostPort(c.WebSocket.Addr); err != nil {
			errs = append(errs, fmt.Errorf("websocket: invalid addr %q: %w", c.WebSocket.Addr, err))
		}
	}
	if (c.WebSocket.Cert == "") != (c.WebSocket.Key == "") {
		errs = append(errs, errors.New("websocket: cert and key must be set together"))
	}
	if c.WebSocket.ClientBuffer < 0 {
		errs = append(errs, fmt.Errorf("websocket: client_buffer must not be negative, got %d", c.WebSocket.ClientBuffer))
	}
	if c.Metrics.Enabled && !c.WebSocket.Enabled {
		errs = append(errs, errors.New("metrics: requires websocket.enabled (served on the same listener)"))
	}
	if c.MDNS.Enabled && !c.WebSocket.Enabled {
		errs = append(errs, errors.New("mdns: requires websocket.enabled (advertises its port)"))
	}

	// MQTT
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt: broker is required"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt: qos must be 0-2, got %d", c.MQTT.QoS))
	}

	// Logging
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging: unknown level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}
