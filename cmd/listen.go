// cmd/listen.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/bpmdetect/internal/analyzer"
	"github.com/ColonelBlimp/bpmdetect/internal/audio"
	"github.com/ColonelBlimp/bpmdetect/internal/config"
	"github.com/ColonelBlimp/bpmdetect/internal/dsp"
	"github.com/ColonelBlimp/bpmdetect/internal/logging"
	"github.com/ColonelBlimp/bpmdetect/internal/recovery"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Detect the tempo of the live audio input",
	Long: `Capture audio from the configured device and print the stabilised tempo
and beat offset after every analysed window. Stop with Ctrl+C.`,
	RunE: runListen,
}

func init() {
	listenCmd.Flags().BoolP("spectrum", "s", false, "draw the tempo spectrum after each window")
	listenCmd.Flags().BoolP("notes", "n", false, "draw the audio spectrum by musical note after each window")
}

func runListen(cmd *cobra.Command, _ []string) error {
	settings, logger, err := setup()
	if err != nil {
		return err
	}

	var observer dsp.Observer
	if show, _ := cmd.Flags().GetBool("spectrum"); show {
		observer = newSpectrumView(cmd.OutOrStdout(), spectrumWidth)
	}

	det, err := newDetector(settings, observer, logger)
	if err != nil {
		return err
	}
	defer det.Close()

	ring, err := audio.NewRingBuffer(settings.RingSize)
	if err != nil {
		return fmt.Errorf("ring buffer: %w", err)
	}

	capture := audio.New(settings.AudioConfig())
	capture.SetCallback(ring.Write)
	if err := capture.Init(); err != nil {
		return err
	}
	defer capture.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := capture.Start(ctx); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"device":      settings.DeviceIndex,
		"sample_rate": settings.SampleRate,
		"channels":    settings.Channels,
		"ring":        ring.Cap(),
	}).Info("capture started")

	onUpdate := printUpdate(cmd.OutOrStdout())
	if show, _ := cmd.Flags().GetBool("notes"); show {
		spectrum, err := dsp.NewNoteSpectrum(notesSize, settings.SampleRate)
		if err != nil {
			return fmt.Errorf("note spectrum: %w", err)
		}
		view := newNotesView(cmd.OutOrStdout(), spectrum, spectrumWidth)
		fmt.Fprintln(cmd.OutOrStdout(), view.Legend())
		onUpdate = notesUpdate(onUpdate, ring, view, settings.WindowSize, logger)
	}

	logOpts := settings.LoggingOptions()
	logOpts.Component = "analyzer"
	analyzerLog, err := logging.New(logOpts)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	runner, err := analyzer.New(ring, det, settings.HopInterval, analyzerLog, onUpdate)
	if err != nil {
		return err
	}
	return runAnalyzer(ctx, func() {
		stop()
		_ = capture.Close()
	}, runner)
}

// runAnalyzer runs the loop on its own goroutine. A panic there is reported
// and cleanup runs before the process exits.
func runAnalyzer(ctx context.Context, cleanup func(), runner *analyzer.Runner) error {
	errCh := make(chan error, 1)
	go func() {
		defer recovery.HandlePanicFunc(cleanup)
		errCh <- runner.Run(ctx)
	}()
	return <-errCh
}

// newDetector builds the tempo detector from settings and logs its effective range
func newDetector(settings *config.Settings, observer dsp.Observer, logger *logrus.Logger) (*dsp.Detector, error) {
	detCfg, err := settings.DetectorConfig()
	if err != nil {
		return nil, err
	}

	det, err := dsp.NewDetector(detCfg, observer)
	if err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}

	lowest, highest := det.TempoRange()
	minIndex, maxIndex := det.Bounds()
	entry := logger.WithFields(logrus.Fields{
		"window":  detCfg.WindowSize,
		"levels":  det.Levels(),
		"lags":    fmt.Sprintf("[%d, %d)", minIndex, maxIndex),
		"lowest":  lowest,
		"highest": highest,
	})
	if float64(lowest) > detCfg.MinBPM+1 {
		entry.Warn("window too short for min_bpm, lowest tempo raised")
	} else {
		entry.Debug("detector ready")
	}
	return det, nil
}

// printUpdate writes one line per analysed window
func printUpdate(w io.Writer) analyzer.UpdateCallback {
	return func(u analyzer.Update) {
		res := u.Result
		if !res.Valid {
			fmt.Fprintf(w, "%6.1f BPM  (no peak)\n", res.BPM)
			return
		}
		fmt.Fprintf(w, "%6.1f BPM  (window %6.1f, beat at +%d)\n", res.BPM, res.RawBPM, res.Shift)
	}
}
