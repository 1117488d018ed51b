// internal/analyzer/runner.go
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ColonelBlimp/bpmdetect/internal/audio"
	"github.com/ColonelBlimp/bpmdetect/internal/dsp"
)

var (
	// ErrInvalidHopInterval indicates the analysis interval must be positive
	ErrInvalidHopInterval = errors.New("hop interval must be positive")
	// ErrNoSource indicates a runner was created without a sample source
	ErrNoSource = errors.New("analyzer needs a sample source and a processor")
)

// Source provides the most recent samples of a stream.
// *audio.RingBuffer satisfies it.
type Source interface {
	ReadLatest(dst []float32) (uint64, error)
	Written() uint64
}

// Processor analyses one fixed-size window. *dsp.Detector satisfies it.
type Processor interface {
	ProcessInto(dst *dsp.Result, window []float32) error
	Config() dsp.DetectorConfig
}

// Update is handed to the callback after every analysed window
type Update struct {
	// Position is the absolute stream position of the window's first sample
	Position uint64
	// Result is reused between updates; Clone it to keep it
	Result *dsp.Result
	// Elapsed is the wall time spent in the detector
	Elapsed time.Duration
}

// UpdateCallback receives results on the analyzer goroutine
type UpdateCallback func(Update)

// Runner periodically pulls the latest window from a Source and runs it
// through a Processor. It owns the Processor: nothing else may call it
// while Run is active.
type Runner struct {
	source   Source
	proc     Processor
	hop      time.Duration
	log      *logrus.Logger
	callback UpdateCallback

	window  []float32
	result  dsp.Result
	lastEnd uint64

	processed atomic.Uint64
	skipped   atomic.Uint64
}

// New creates a runner. The window length follows the processor's configuration.
func New(src Source, proc Processor, hop time.Duration, log *logrus.Logger, cb UpdateCallback) (*Runner, error) {
	if src == nil || proc == nil {
		return nil, ErrNoSource
	}
	if hop <= 0 {
		return nil, ErrInvalidHopInterval
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Runner{
		source:   src,
		proc:     proc,
		hop:      hop,
		log:      log,
		callback: cb,
		window:   make([]float32, proc.Config().WindowSize),
	}, nil
}

// Run analyses a window every hop interval until ctx is cancelled.
// Cancellation returns nil; a processing failure stops the loop and is returned.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.hop)
	defer ticker.Stop()

	r.log.WithFields(logrus.Fields{
		"window": len(r.window),
		"hop":    r.hop,
	}).Info("analyzer started")

	for {
		select {
		case <-ctx.Done():
			r.log.WithFields(logrus.Fields{
				"processed": r.processed.Load(),
				"skipped":   r.skipped.Load(),
			}).Info("analyzer stopped")
			return nil
		case <-ticker.C:
			if err := r.Step(); err != nil {
				return err
			}
		}
	}
}

// Step analyses the latest window once. It is a no-op when the source has
// not filled a window yet or has received no samples since the last step.
func (r *Runner) Step() error {
	end := r.source.Written()
	if end == r.lastEnd {
		r.skipped.Add(1)
		return nil
	}

	pos, err := r.source.ReadLatest(r.window)
	if errors.Is(err, audio.ErrInsufficientData) {
		r.skipped.Add(1)
		r.log.WithFields(logrus.Fields{
			"have": end,
			"need": len(r.window),
		}).Debug("waiting for samples")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read window: %w", err)
	}

	start := time.Now()
	if err := r.proc.ProcessInto(&r.result, r.window); err != nil {
		return fmt.Errorf("process window at %d: %w", pos, err)
	}
	elapsed := time.Since(start)

	r.lastEnd = pos + uint64(len(r.window))
	r.processed.Add(1)

	entry := r.log.WithFields(logrus.Fields{
		"position": pos,
		"bpm":      r.result.BPM,
		"raw_bpm":  r.result.RawBPM,
		"shift":    r.result.Shift,
		"elapsed":  elapsed,
	})
	if r.result.Valid {
		entry.Debug("window analysed")
	} else {
		entry.Warn("no tempo peak in window")
	}

	if r.callback != nil {
		r.callback(Update{Position: pos, Result: &r.result, Elapsed: elapsed})
	}
	return nil
}

// Processed returns the number of windows analysed
func (r *Runner) Processed() uint64 {
	return r.processed.Load()
}

// Skipped returns the number of ticks that found no new window
func (r *Runner) Skipped() uint64 {
	return r.skipped.Load()
}
