// internal/dsp/notes.go
package dsp

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Note range of the live spectrum, as semitone numbers where C0 is 0 and
// A4 (440 Hz) is 57
const (
	LowestNote  = 36  // C3
	HighestNote = 108 // C9
	referenceA4 = 440.0
	noteA4      = 57
)

var (
	// ErrInvalidSpectrumSize indicates the note spectrum size must be a power of two
	ErrInvalidSpectrumSize = errors.New("spectrum size must be a power of two >= 16")
	// ErrEmptyNoteRange indicates no FFT bin falls between LowestNote and HighestNote
	ErrEmptyNoteRange = errors.New("no spectrum bins within the note range")
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteFrequency returns the frequency in Hz of a semitone number
func NoteFrequency(note float64) float64 {
	return referenceA4 * math.Exp2((note-noteA4)/12)
}

// NoteName formats the nearest semitone as name and octave, e.g. "A4"
func NoteName(note float64) string {
	n := int(math.Round(note))
	octave := n / 12
	if n < 0 {
		octave = (n - 11) / 12
	}
	return fmt.Sprintf("%s%d", noteNames[((n%12)+12)%12], octave)
}

// NoteSpectrum computes the magnitude spectrum of the latest samples for
// the FFT bins that fall on musical notes between LowestNote and
// HighestNote. Buffers are allocated once; it is not safe for concurrent use.
type NoteSpectrum struct {
	size       int
	sampleRate int
	fft        *fourier.FFT
	scale      float64

	seq   []float64
	coeff []complex128
	notes []float64 // semitone number of every bin in range
	mags  []float32

	minBin int
	maxBin int
}

// NewNoteSpectrum creates a spectrum over windows of size samples
func NewNoteSpectrum(size, sampleRate int) (*NoteSpectrum, error) {
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if size < 16 || size&(size-1) != 0 {
		return nil, ErrInvalidSpectrumSize
	}

	spacing := float64(sampleRate) / float64(size)
	// One semitone below the range leaves a border on the low side
	minBin := int(math.Ceil(NoteFrequency(LowestNote-1) / spacing))
	maxBin := int(math.Ceil(NoteFrequency(HighestNote) / spacing))
	maxBin = min(maxBin, size/2+1)
	minBin = max(minBin, 1)
	if minBin >= maxBin {
		return nil, fmt.Errorf("%w: %d-point FFT at %d Hz", ErrEmptyNoteRange, size, sampleRate)
	}

	s := &NoteSpectrum{
		size:       size,
		sampleRate: sampleRate,
		fft:        fourier.NewFFT(size),
		scale:      2 / float64(size),
		seq:        make([]float64, size),
		coeff:      make([]complex128, size/2+1),
		notes:      make([]float64, maxBin-minBin),
		mags:       make([]float32, maxBin-minBin),
		minBin:     minBin,
		maxBin:     maxBin,
	}
	for k := minBin; k < maxBin; k++ {
		freq := float64(k) * spacing
		s.notes[k-minBin] = 12*math.Log2(freq/referenceA4) + noteA4
	}
	return s, nil
}

// Size returns the number of samples per analysed window
func (s *NoteSpectrum) Size() int {
	return s.size
}

// Bins returns the FFT bin range [minBin, maxBin) covered by Compute
func (s *NoteSpectrum) Bins() (minBin, maxBin int) {
	return s.minBin, s.maxBin
}

// Notes returns the semitone number of every bin in range
func (s *NoteSpectrum) Notes() []float32 {
	out := make([]float32, len(s.notes))
	for i, n := range s.notes {
		out[i] = float32(n)
	}
	return out
}

// Compute transforms samples and returns the amplitude of every bin in
// range, scaled so a full-scale sine centred on a bin reads 1. The result
// is overwritten by the next call.
func (s *NoteSpectrum) Compute(samples []float32) ([]float32, error) {
	if len(samples) != s.size {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrWindowLength, len(samples), s.size)
	}

	load(s.seq, samples)
	s.coeff = s.fft.Coefficients(s.coeff, s.seq)
	for k := s.minBin; k < s.maxBin; k++ {
		s.mags[k-s.minBin] = float32(cmplx.Abs(s.coeff[k]) * s.scale)
	}
	return s.mags, nil
}
