// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ColonelBlimp/bpmdetect/internal/audio"
	"github.com/ColonelBlimp/bpmdetect/internal/dsp"
	"github.com/ColonelBlimp/bpmdetect/internal/logging"
)

const (
	AppName       = "bpmdetect"
	ConfigType    = "yaml"
	DefaultConfig = `# BPM Detect Configuration

# Audio device settings
device_index: -1        # -1 for default device (use 'bpmdetect devices' to list)
sample_rate: 48000      # Audio sample rate in Hz
channels: 2             # Capture channels, folded to one magnitude stream
buffer_size: 1024       # Frames per capture callback

# Analysis
window_size: 131072     # Samples per analysed window (power of 2), ~2.7s at 48kHz
ring_size: 262144       # Samples kept from the live stream (>= window_size)
hop_interval: 1s        # How often the latest window is analysed

# Tempo estimation
min_bpm: 40             # Slowest tempo considered (raised automatically if the window is too short)
max_bpm: 220            # Fastest tempo considered
strict_bounds: false    # Fail instead of raising min_bpm when the window is too short
median_window: 5s       # Per-window estimates older than this are dropped from the median
peak_tiebreak: first    # Equal correlation peaks: first (faster tempo) or last (slower tempo)
detrend: true           # Compensate the shrinking overlap of long correlation lags

# Output
log_format: text        # text or json
debug: false            # Enable debug output
`
)

// Settings holds all application configuration
type Settings struct {
	// Audio device settings
	DeviceIndex int `mapstructure:"device_index"`
	SampleRate  int `mapstructure:"sample_rate"`
	Channels    int `mapstructure:"channels"`
	BufferSize  int `mapstructure:"buffer_size"`

	// Analysis
	WindowSize  int           `mapstructure:"window_size"`
	RingSize    int           `mapstructure:"ring_size"`
	HopInterval time.Duration `mapstructure:"hop_interval"`

	// Tempo estimation
	MinBPM       float64       `mapstructure:"min_bpm"`
	MaxBPM       float64       `mapstructure:"max_bpm"`
	StrictBounds bool          `mapstructure:"strict_bounds"`
	MedianWindow time.Duration `mapstructure:"median_window"`
	PeakTieBreak string        `mapstructure:"peak_tiebreak"`
	Detrend      bool          `mapstructure:"detrend"`

	// Output
	LogFormat string `mapstructure:"log_format"`
	Debug     bool   `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/bpmdetect/
func Init() error {
	// Set defaults
	viper.SetDefault("device_index", -1)
	viper.SetDefault("sample_rate", 48000)
	viper.SetDefault("channels", 2)
	viper.SetDefault("buffer_size", 1024)
	viper.SetDefault("window_size", 131072)
	viper.SetDefault("ring_size", 262144)
	viper.SetDefault("hop_interval", time.Second)
	viper.SetDefault("min_bpm", dsp.DefaultMinBPM)
	viper.SetDefault("max_bpm", dsp.DefaultMaxBPM)
	viper.SetDefault("strict_bounds", false)
	viper.SetDefault("median_window", dsp.DefaultMedianWindow)
	viper.SetDefault("peak_tiebreak", dsp.PeakFirst.String())
	viper.SetDefault("detrend", true)
	viper.SetDefault("log_format", logging.FormatText)
	viper.SetDefault("debug", false)

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	// Read config file - if not found, create default in XDG config dir
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("read config: %w", err)
		}
		if err = ensureConfigExists(filepath.Join(configDir, AppName)); err != nil {
			return err
		}
		if err = viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	// Audio device settings
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", s.SampleRate))
	}
	if s.Channels < 1 || s.Channels > 8 {
		errs = append(errs, fmt.Errorf("channels must be between 1 and 8, got %d", s.Channels))
	}
	if s.BufferSize < 64 || s.BufferSize > 8192 || !isPowerOfTwo(s.BufferSize) {
		errs = append(errs, fmt.Errorf("buffer_size must be a power of 2 between 64 and 8192, got %d", s.BufferSize))
	}

	// Analysis
	if s.WindowSize < 1024 || s.WindowSize > 1<<20 || !isPowerOfTwo(s.WindowSize) {
		errs = append(errs, fmt.Errorf("window_size must be a power of 2 between 1024 and 1048576, got %d", s.WindowSize))
	}
	if s.RingSize < s.WindowSize {
		errs = append(errs, fmt.Errorf("ring_size (%d) must be at least window_size (%d)", s.RingSize, s.WindowSize))
	}
	if s.HopInterval < 10*time.Millisecond || s.HopInterval > time.Minute {
		errs = append(errs, fmt.Errorf("hop_interval must be between 10ms and 1m, got %v", s.HopInterval))
	}

	// Tempo estimation
	if s.MinBPM <= 0 || s.MaxBPM <= s.MinBPM {
		errs = append(errs, fmt.Errorf("min_bpm and max_bpm must satisfy 0 < min_bpm < max_bpm, got %v and %v", s.MinBPM, s.MaxBPM))
	}
	if s.MaxBPM > 1000 {
		errs = append(errs, fmt.Errorf("max_bpm must be at most 1000, got %v", s.MaxBPM))
	}
	if s.MedianWindow < time.Second || s.MedianWindow > 10*time.Minute {
		errs = append(errs, fmt.Errorf("median_window must be between 1s and 10m, got %v", s.MedianWindow))
	}
	if _, err := dsp.ParsePeakTieBreak(s.PeakTieBreak); err != nil {
		errs = append(errs, fmt.Errorf("peak_tiebreak must be first or last, got %q", s.PeakTieBreak))
	}

	// Output
	if s.LogFormat != logging.FormatText && s.LogFormat != logging.FormatJSON {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", s.LogFormat))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// DetectorConfig maps the tempo settings onto the detector configuration
func (s *Settings) DetectorConfig() (dsp.DetectorConfig, error) {
	tieBreak, err := dsp.ParsePeakTieBreak(s.PeakTieBreak)
	if err != nil {
		return dsp.DetectorConfig{}, err
	}

	cfg := dsp.DefaultDetectorConfig(s.SampleRate, s.WindowSize)
	cfg.MinBPM = s.MinBPM
	cfg.MaxBPM = s.MaxBPM
	cfg.StrictBounds = s.StrictBounds
	cfg.MedianWindow = s.MedianWindow
	cfg.HopInterval = s.HopInterval
	cfg.TieBreak = tieBreak
	cfg.Detrend = s.Detrend
	return cfg, nil
}

// AudioConfig maps the device settings onto the capture configuration
func (s *Settings) AudioConfig() audio.Config {
	return audio.Config{
		DeviceIndex: s.DeviceIndex,
		SampleRate:  uint32(s.SampleRate),
		Channels:    uint32(s.Channels),
		BufferSize:  uint32(s.BufferSize),
	}
}

// LoggingOptions maps the output settings onto logger options
func (s *Settings) LoggingOptions() logging.Options {
	return logging.Options{
		Format: s.LogFormat,
		Debug:  s.Debug,
	}
}
