// cmd/root.go
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ColonelBlimp/bpmdetect/internal/config"
	"github.com/ColonelBlimp/bpmdetect/internal/logging"
	"github.com/ColonelBlimp/bpmdetect/internal/recovery"
)

var rootCmd = &cobra.Command{
	Use:   "bpmdetect",
	Short: "Real-time tempo (BPM) detector for live audio",
	Long: `A real-time tempo detector that listens to an audio input, estimates the
beats per minute with a wavelet filter bank and envelope autocorrelation, and
reports a stabilised tempo together with the beat offset in each window.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags (override config file)
	rootCmd.PersistentFlags().IntP("device", "d", -1, "audio device index (-1 for default)")
	rootCmd.PersistentFlags().IntP("rate", "r", 48000, "sample rate in Hz")
	rootCmd.PersistentFlags().IntP("window", "w", 131072, "analysis window in samples (power of 2)")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	rootCmd.AddCommand(listenCmd, devicesCmd)
}

// flagKeys maps persistent flags onto config keys
var flagKeys = map[string]string{
	"device": "device_index",
	"rate":   "sample_rate",
	"window": "window_size",
	"debug":  "debug",
}

// loadConfig binds flags and reads the config file before any subcommand runs
func loadConfig(cmd *cobra.Command, _ []string) error {
	for flag, key := range flagKeys {
		if err := viper.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	if err := config.Init(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// setup loads validated settings and the logger shared by all subcommands
func setup() (*config.Settings, *logrus.Logger, error) {
	settings, err := config.Get()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(settings.LoggingOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("logging: %w", err)
	}
	recovery.SetLogger(logger)
	return settings, logger, nil
}
