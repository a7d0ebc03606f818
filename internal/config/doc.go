// Package config provides configuration management for ubxrelay.
//
// The configuration is a YAML file describing the receiver input, where
// relayed frames go, how NAV-SOL messages are synthesized and which side
// channels (websocket fan-out, MQTT, Prometheus, mDNS) are enabled.
// Command-line flags override individual fields after loading.
//
// # Configuration File Location
//
// The default file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/ubxrelay/config.yaml or $HOME/.config/ubxrelay/config.yaml
//   - macOS: $HOME/.config/ubxrelay/config.yaml
//   - Windows: %LOCALAPPDATA%\ubxrelay\config.yaml
//
// # Security
//
// The MQTT broker password is never stored in the file. It is read from
// the UBXRELAY_MQTT_PASSWORD environment variable.
//
// # Usage Example
//
//	cfg, err := config.Load("") // default location, Default() if missing
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.Solution.DeriveWeek = true
//	if err := cfg.Save(""); err != nil {
//	    log.Fatal(err)
//	}
package config
