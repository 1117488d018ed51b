// internal/dsp/correlate.go
package dsp

import (
	"errors"
	"math/cmplx"

	"github.com/tphakala/simd/c128"
	"github.com/tphakala/simd/f64"
	"gonum.org/v1/gonum/dsp/fourier"
)

var (
	// ErrInvalidCorrelatorSize indicates the correlator length must be positive
	ErrInvalidCorrelatorSize = errors.New("correlator size must be positive")
	// ErrInvalidLength indicates an input does not match the correlator length
	ErrInvalidLength = errors.New("input length does not match correlator size")
	// ErrClosed indicates the resource was used after Close
	ErrClosed = errors.New("use of closed resource")
)

// Correlator computes auto- and cross-correlations of fixed-length real
// sequences in the frequency domain. Inputs are zero-padded to twice their
// length so the circular transform yields the linear correlation for
// non-negative lags.
//
// The FFT plan and all scratch buffers are sized once in NewCorrelator and
// reused; a Correlator is not safe for concurrent use.
type Correlator struct {
	n     int
	fft   *fourier.FFT
	scale float64

	bufX  []float64
	bufY  []float64
	specX []complex128
	specY []complex128
	prod  []complex128
}

// NewCorrelator creates a correlator for sequences of length n
func NewCorrelator(n int) (*Correlator, error) {
	if n <= 0 {
		return nil, ErrInvalidCorrelatorSize
	}

	size := 2 * n
	bins := size/2 + 1
	return &Correlator{
		n:     n,
		fft:   fourier.NewFFT(size),
		scale: 1.0 / float64(size),
		bufX:  make([]float64, size),
		bufY:  make([]float64, size),
		specX: make([]complex128, bins),
		specY: make([]complex128, bins),
		prod:  make([]complex128, bins),
	}, nil
}

// Autocorrelate replaces data with its autocorrelation for lags 0..n-1,
// scaled by 1/(2n).
func (c *Correlator) Autocorrelate(data []float32) error {
	if c.fft == nil {
		return ErrClosed
	}
	if len(data) != c.n {
		return ErrInvalidLength
	}

	load(c.bufX, data)
	c.specX = c.fft.Coefficients(c.specX, c.bufX)

	// X * conj(X) = |X|^2
	for i, v := range c.specX {
		re, im := real(v), imag(v)
		c.prod[i] = complex(re*re+im*im, 0)
	}

	c.inverse(data)
	return nil
}

// Correlate cross-correlates x against y and returns the lag in [0, n) with
// the highest correlation, i.e. the shift k for which x[i+k] best matches
// y[i]. On a tie the smallest lag wins. Neither input is modified.
func (c *Correlator) Correlate(x, y []float32) (int, error) {
	if c.fft == nil {
		return 0, ErrClosed
	}
	if len(x) != c.n || len(y) != c.n {
		return 0, ErrInvalidLength
	}

	load(c.bufX, x)
	load(c.bufY, y)
	c.specX = c.fft.Coefficients(c.specX, c.bufX)
	c.specY = c.fft.Coefficients(c.specY, c.bufY)

	for i, v := range c.specY {
		c.specY[i] = cmplx.Conj(v)
	}
	c128.Mul(c.prod, c.specX, c.specY)

	c.bufX = c.fft.Sequence(c.bufX, c.prod)

	best := 0
	for i := 1; i < c.n; i++ {
		if c.bufX[i] > c.bufX[best] {
			best = i
		}
	}
	return best, nil
}

// Close releases the FFT plan and scratch buffers. Further calls return ErrClosed.
func (c *Correlator) Close() error {
	c.fft = nil
	c.bufX, c.bufY = nil, nil
	c.specX, c.specY, c.prod = nil, nil, nil
	return nil
}

// inverse transforms prod back to the time domain and writes the first n
// scaled lags into dst.
func (c *Correlator) inverse(dst []float32) {
	c.bufX = c.fft.Sequence(c.bufX, c.prod)
	// gonum does not normalise the inverse transform
	f64.Scale(c.bufX, c.bufX, c.scale)
	for i := range dst {
		dst[i] = float32(c.bufX[i])
	}
}

// load copies src into the first half of buf and zeroes the rest
func load(buf []float64, src []float32) {
	for i, v := range src {
		buf[i] = float64(v)
	}
	clear(buf[len(src):])
}
