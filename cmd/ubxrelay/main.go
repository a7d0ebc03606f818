// Ubxrelay relays the UBX stream of a positioning receiver.
//
// It reads binary UBX frames from a serial port (or a capture file),
// verifies and decodes the NAV records, synthesizes a NAV-SOL message after
// every NAV-VELECEF and retransmits every frame on an output channel. The
// relayed stream can also be fanned out to websocket clients, decoded
// records published over MQTT, and counters exported to Prometheus.
//
// Usage:
//
//	ubxrelay [command] [flags]
//
// See 'ubxrelay --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/ubxrelay/internal/config"
	"github.com/muurk/ubxrelay/internal/logging"
	"github.com/muurk/ubxrelay/internal/version"
)

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	logLevel   string
	logFile    string
)

// cfg is loaded by the root PersistentPreRunE
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ubxrelay",
	Short: "UBX receiver stream relay",
	Long: `Relay the UBX stream of a positioning receiver.

Frames are reassembled and checksum-verified, the NAV-PVT, NAV-POSECEF,
NAV-VELECEF and NAV-TIMEUTC records are decoded, and a NAV-SOL message is
synthesized from the latest records every time a NAV-VELECEF arrives.
Every frame, plus the synthesized NAV-SOL, is written to the output.

Settings are read from the configuration file (see 'ubxrelay config show')
and can be overridden with flags.`,
	Version:           version.Version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default: $XDG_CONFIG_HOME/ubxrelay/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when unset")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this rotated file")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the configuration file and initializes logging. Flags
// of the invoked command are applied afterwards by the command itself.
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFile != "" {
		cfg.Logging.File = logFile
	}

	err = logging.InitializeWithFile(cfg.Logging.Level, logging.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return err
	}

	logging.Debug("Configuration loaded",
		zap.String("agent", version.UserAgent()),
		zap.String("command", cmd.Name()),
		zap.String("config", configPath),
	)
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// No configuration needed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ubxrelay %s\n", version.Full())
	},
}
