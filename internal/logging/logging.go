// internal/logging/logging.go
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Supported log formats (from config: log_format)
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options controls logger construction
type Options struct {
	// Format is FormatText or FormatJSON; empty selects text
	Format string
	// Debug lowers the level to Debug
	Debug bool
	// Output defaults to stderr so stdout stays free for results
	Output io.Writer
	// Component is attached to every entry when set
	Component string
}

// New builds a logger for the application
func New(opts Options) (*logrus.Logger, error) {
	logger := logrus.New()

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)

	// Report nano timestamps
	switch opts.Format {
	case "", FormatText:
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339Nano,
			FullTimestamp:   true,
		})
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	if opts.Debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	if opts.Component != "" {
		logger.AddHook(componentHook(opts.Component))
	}
	return logger, nil
}

// componentHook tags every entry with the emitting component
type componentHook string

func (h componentHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h componentHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["component"]; !ok {
		entry.Data["component"] = string(h)
	}
	return nil
}
