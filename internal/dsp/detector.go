// internal/dsp/detector.go
package dsp

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tphakala/simd/f32"
)

// Tempo analysis constants
const (
	// MaxLevels is the number of wavelet decomposition levels used for envelope extraction
	MaxLevels = 4
	// DefaultMinBPM is the default lowest tempo considered
	DefaultMinBPM = 40.0
	// DefaultMaxBPM is the default highest tempo considered
	DefaultMaxBPM = 220.0
	// SecondsPerMinute converts between per-second sample rates and beats per minute
	SecondsPerMinute = 60.0

	// minMagnitude is the smallest normal float32, used as a floor before
	// normalising the spectrum so an all-zero window never divides by zero
	minMagnitude = 0x1p-126
)

var (
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrInvalidWindowSize indicates the window size must be a power of two
	ErrInvalidWindowSize = errors.New("window size must be a power of two of at least 16 samples")
	// ErrInvalidTempoRange indicates min/max BPM must be positive with min < max
	ErrInvalidTempoRange = errors.New("tempo range must satisfy 0 < min_bpm < max_bpm")
	// ErrEmptyTempoRange indicates the tempo range maps to no usable correlation lags
	ErrEmptyTempoRange = errors.New("tempo range maps to an empty lag range for this sample rate and window size")
	// ErrWindowLength indicates a window of the wrong length was supplied
	ErrWindowLength = errors.New("window length does not match the configured window size")
)

// PeakTieBreak selects which lag wins when several share the peak value.
type PeakTieBreak int

const (
	// PeakFirst picks the smallest lag, i.e. the fastest tempo
	PeakFirst PeakTieBreak = iota
	// PeakLast picks the largest lag, i.e. the slowest tempo
	PeakLast
)

// String returns the config-file spelling of the tie-break policy
func (p PeakTieBreak) String() string {
	switch p {
	case PeakFirst:
		return "first"
	case PeakLast:
		return "last"
	default:
		return fmt.Sprintf("PeakTieBreak(%d)", int(p))
	}
}

// ParsePeakTieBreak parses "first" or "last"
func ParsePeakTieBreak(s string) (PeakTieBreak, error) {
	switch s {
	case "first", "":
		return PeakFirst, nil
	case "last":
		return PeakLast, nil
	default:
		return PeakFirst, fmt.Errorf("unknown peak tie-break %q", s)
	}
}

// Observer receives visualisation data from a Detector.
// Both methods are called synchronously from the processing goroutine and
// must not retain the slices past the call.
type Observer interface {
	// OnInit is called once from NewDetector with the fixed frequency axis
	OnInit(axis []float32)
	// OnResult is called once per processed window
	OnResult(spectrum []float32, bpm float32)
}

// DetectorConfig holds configuration for the tempo detector.
// Zero values for the optional fields select the defaults.
type DetectorConfig struct {
	// SampleRate is the audio sample rate in Hz (from config: sample_rate)
	SampleRate int
	// WindowSize is the number of samples per analysed window (from config: window_size)
	WindowSize int
	// MinBPM is the lowest tempo considered (from config: min_bpm)
	MinBPM float64
	// MaxBPM is the highest tempo considered (from config: max_bpm)
	MaxBPM float64
	// StrictBounds rejects a MinBPM that needs longer lags than one window
	// provides, instead of raising the lowest tempo to fit (from config: strict_bounds)
	StrictBounds bool
	// MedianWindow is how long per-window estimates are kept (from config: median_window)
	MedianWindow time.Duration
	// HopInterval is the expected spacing of processed windows (from config:
	// hop_interval). When set, the sliding median is sized up front to hold
	// MedianWindow/HopInterval estimates.
	HopInterval time.Duration
	// TieBreak selects between equal correlation peaks (from config: peak_tiebreak)
	TieBreak PeakTieBreak
	// Detrend divides each lag by (WindowSize - lag) before peak picking (from config: detrend)
	Detrend bool
	// Clock supplies timestamps for the sliding median; time.Now when nil
	Clock func() time.Time
}

// DefaultDetectorConfig returns the configuration used by the application
// for the given stream parameters.
func DefaultDetectorConfig(sampleRate, windowSize int) DetectorConfig {
	return DetectorConfig{
		SampleRate:   sampleRate,
		WindowSize:   windowSize,
		MinBPM:       DefaultMinBPM,
		MaxBPM:       DefaultMaxBPM,
		MedianWindow: DefaultMedianWindow,
		TieBreak:     PeakFirst,
		Detrend:      true,
	}
}

// Result is the outcome of one processed window.
type Result struct {
	// BPM is the stabilised tempo (sliding median)
	BPM float32
	// RawBPM is this window's own estimate, 0 when Valid is false
	RawBPM float32
	// Shift is the sample offset of the beat grid within the window
	Shift int
	// Spectrum is the peak-normalised correlation over the tempo range,
	// aligned with Detector.FrequencyAxis
	Spectrum []float32
	// Valid is false when no peak was found; BPM then repeats the last value
	Valid bool
}

// Clone returns a deep copy of r
func (r Result) Clone() Result {
	r.Spectrum = append([]float32(nil), r.Spectrum...)
	return r
}

// Detector estimates the tempo of successive audio windows using a wavelet
// filter bank, envelope autocorrelation and a sliding median.
// All scratch state is reused between calls; a Detector must only be used
// from one goroutine at a time.
type Detector struct {
	config   DetectorConfig
	observer Observer
	now      func() time.Time

	levels   int
	maxPace  int
	corrSize int
	envLen   int // corrSize / 2
	minute   float32
	minIndex int
	maxIndex int

	wavelet  *Wavelet
	envCorr  *Correlator
	combCorr *Correlator
	median   *SlidingMedian

	envelope []float32 // dCSum
	band     []float32 // undersampled sub-band
	spectrum []float32
	axis     []float32
	comb     []float32

	lastBPM float32
	closed  bool
}

// NewDetector creates a tempo detector. The observer may be nil.
func NewDetector(cfg DetectorConfig, observer Observer) (*Detector, error) {
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if cfg.WindowSize < 1<<MaxLevels || cfg.WindowSize&(cfg.WindowSize-1) != 0 {
		return nil, ErrInvalidWindowSize
	}
	if cfg.MinBPM <= 0 || cfg.MaxBPM <= cfg.MinBPM {
		return nil, ErrInvalidTempoRange
	}
	if cfg.MedianWindow <= 0 {
		cfg.MedianWindow = DefaultMedianWindow
	}

	wavelet, err := NewWavelet(cfg.WindowSize, MaxLevels)
	if err != nil {
		return nil, fmt.Errorf("create wavelet: %w", err)
	}

	levels := wavelet.Levels()
	maxPace := 1 << (levels - 1)
	corrSize := cfg.WindowSize / maxPace
	envLen := corrSize / 2
	minute := float32(cfg.SampleRate) * SecondsPerMinute / float32(maxPace)

	minIndex := int(minute / float32(cfg.MaxBPM))
	maxIndex := int(minute / float32(cfg.MinBPM))
	if maxIndex > envLen {
		if cfg.StrictBounds {
			return nil, fmt.Errorf("%w: min_bpm %.1f needs lag %d, window provides %d",
				ErrEmptyTempoRange, cfg.MinBPM, maxIndex, envLen)
		}
		maxIndex = envLen
	}
	if minIndex <= 0 || minIndex >= maxIndex {
		return nil, fmt.Errorf("%w: lags [%d, %d) at %d Hz with %d-sample windows",
			ErrEmptyTempoRange, minIndex, maxIndex, cfg.SampleRate, cfg.WindowSize)
	}

	envCorr, err := NewCorrelator(envLen)
	if err != nil {
		return nil, fmt.Errorf("create envelope correlator: %w", err)
	}
	combCorr, err := NewCorrelator(cfg.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("create comb correlator: %w", err)
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	median := NewSlidingMedian(cfg.MedianWindow)
	if cfg.HopInterval > 0 {
		// One slot for the newest estimate, one for tick jitter
		median.Grow(int(cfg.MedianWindow/cfg.HopInterval) + 2)
	}

	d := &Detector{
		config:   cfg,
		observer: observer,
		now:      now,
		levels:   levels,
		maxPace:  maxPace,
		corrSize: corrSize,
		envLen:   envLen,
		minute:   minute,
		minIndex: minIndex,
		maxIndex: maxIndex,
		wavelet:  wavelet,
		envCorr:  envCorr,
		combCorr: combCorr,
		median:   median,
		envelope: make([]float32, envLen),
		band:     make([]float32, envLen),
		spectrum: make([]float32, maxIndex-minIndex),
		axis:     make([]float32, maxIndex-minIndex),
		comb:     make([]float32, cfg.WindowSize),
	}
	d.buildAxis()

	if observer != nil {
		observer.OnInit(d.axis)
	}
	return d, nil
}

// buildAxis warps lag positions so tempo reads linearly on screen
func (d *Detector) buildAxis() {
	nom := 1 / (1/float32(d.minIndex) - 1/float32(d.maxIndex))
	start := nom / float32(d.maxIndex)
	for i := d.minIndex; i < d.maxIndex; i++ {
		d.axis[i-d.minIndex] = nom/float32(i) - start
	}
}

// Process analyses one window and returns a result the caller owns.
func (d *Detector) Process(window []float32) (Result, error) {
	var res Result
	if err := d.ProcessInto(&res, window); err != nil {
		return Result{}, err
	}
	return res, nil
}

// ProcessInto analyses one window and writes the outcome into dst. The
// spectrum slice of dst is reused when it has enough capacity, so repeated
// calls with the same dst do not allocate.
func (d *Detector) ProcessInto(dst *Result, window []float32) error {
	if d.closed {
		return ErrClosed
	}
	if len(window) != d.wavelet.Size() {
		return fmt.Errorf("%w: got %d, want %d", ErrWindowLength, len(window), d.wavelet.Size())
	}

	d.extractEnvelope(window)

	if err := d.envCorr.Autocorrelate(d.envelope); err != nil {
		return fmt.Errorf("autocorrelate envelope: %w", err)
	}

	peak := d.detectPeak(d.envelope)
	dst.Spectrum = append(dst.Spectrum[:0], d.spectrum...)

	if peak < 0 {
		dst.Valid = false
		dst.RawBPM = 0
		dst.BPM = d.lastBPM
		dst.Shift = 0
		d.notify(dst)
		return nil
	}

	raw := d.TempoAt(peak)
	d.lastBPM = d.median.Offer(raw, d.now())

	shift, err := d.phase(window, d.lastBPM)
	if err != nil {
		return fmt.Errorf("comb correlation: %w", err)
	}

	dst.Valid = true
	dst.RawBPM = raw
	dst.BPM = d.lastBPM
	dst.Shift = shift
	d.notify(dst)
	return nil
}

func (d *Detector) notify(res *Result) {
	if d.observer != nil {
		d.observer.OnResult(res.Spectrum, res.BPM)
	}
}

// extractEnvelope sums the rectified, mean-removed envelopes of every
// detail band plus the deepest approximation into d.envelope.
func (d *Detector) extractEnvelope(window []float32) {
	levels := d.wavelet.Decompose(window)
	clear(d.envelope)

	pace := d.maxPace
	for i := range levels {
		undersample(levels[i].Detail, pace, d.band)
		d.recombine(d.band)
		pace >>= 1
	}

	// Deepest approximation is already envLen long
	undersample(levels[len(levels)-1].Approx, 1, d.band)
	d.recombine(d.band)
}

// undersample keeps every pace-th sample of src, filling dst
func undersample(src []float32, pace int, dst []float32) {
	for i, j := 0, 0; i < len(dst) && j < len(src); i, j = i+1, j+pace {
		dst[i] = src[j]
	}
}

// recombine rectifies band in place, removes its mean and adds it to the envelope
func (d *Detector) recombine(band []float32) {
	for i, v := range band {
		if v < 0 {
			band[i] = -v
		}
	}
	mean := f32.Sum(band) / float32(len(band))
	for i, v := range band {
		d.envelope[i] += v - mean
	}
}

// detectPeak scans [minIndex, maxIndex) of the correlation, fills the
// normalised spectrum and returns the lag holding the largest signed value,
// or -1 if the range is empty.
func (d *Detector) detectPeak(corr []float32) int {
	lo, hi := d.minIndex, d.maxIndex
	if lo >= hi || hi > len(corr) {
		return -1
	}

	if d.config.Detrend {
		// Long lags overlap fewer samples; lift them back up
		for i := lo; i < hi; i++ {
			corr[i] /= float32(d.config.WindowSize - i)
		}
	}

	peakAbs := float32(minMagnitude)
	peak := float32(math.Inf(-1))
	for i := lo; i < hi; i++ {
		v := corr[i]
		peakAbs = max(peakAbs, abs32(v))
		peak = max(peak, v)
	}

	f32.Scale(d.spectrum, corr[lo:hi], 1/peakAbs)

	if d.config.TieBreak == PeakLast {
		for i := hi - 1; i >= lo; i-- {
			if corr[i] == peak {
				return i
			}
		}
		return -1
	}
	for i := lo; i < hi; i++ {
		if corr[i] == peak {
			return i
		}
	}
	return -1
}

// phase builds a pulse train at bpm and returns the lag that best aligns
// it with the raw window. Any beat of the grid may be matched.
func (d *Detector) phase(window []float32, bpm float32) (int, error) {
	clear(d.comb)
	step := float64(bpm) / (float64(d.config.SampleRate) * SecondsPerMinute)
	accum := 1.0
	for i := range d.comb {
		if accum >= 1 {
			d.comb[i] = 1
			accum--
		}
		accum += step
	}
	return d.combCorr.Correlate(window, d.comb)
}

// FrequencyAxis returns a copy of the warped tempo axis matching Result.Spectrum
func (d *Detector) FrequencyAxis() []float32 {
	return append([]float32(nil), d.axis...)
}

// Bounds returns the correlation lag range [minIndex, maxIndex) searched for peaks
func (d *Detector) Bounds() (minIndex, maxIndex int) {
	return d.minIndex, d.maxIndex
}

// TempoRange returns the slowest and fastest tempo the detector can report
func (d *Detector) TempoRange() (lowest, highest float32) {
	return d.TempoAt(d.maxIndex - 1), d.TempoAt(d.minIndex)
}

// TempoAt converts a correlation lag into beats per minute
func (d *Detector) TempoAt(lag int) float32 {
	return d.minute / float32(lag)
}

// Levels returns the number of wavelet levels in use
func (d *Detector) Levels() int {
	return d.levels
}

// Config returns the configuration the detector was built with
func (d *Detector) Config() DetectorConfig {
	return d.config
}

// Reset clears the sliding median and the last reported tempo
func (d *Detector) Reset() {
	d.median.Reset()
	d.lastBPM = 0
}

// Close releases the transform resources. The detector cannot be used afterwards.
func (d *Detector) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	err := errors.Join(d.envCorr.Close(), d.combCorr.Close())
	d.envelope, d.band, d.comb = nil, nil, nil
	return err
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
