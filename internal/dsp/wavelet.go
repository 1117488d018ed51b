// internal/dsp/wavelet.go
package dsp

import (
	"errors"
	"math/bits"

	"github.com/tphakala/simd/f32"
)

// ErrInvalidWaveletSize indicates the wavelet input length must be a power of two >= 2
var ErrInvalidWaveletSize = errors.New("wavelet size must be a power of two and at least 2")

// filterTaps is the length of both analysis filters
const filterTaps = 8

// Analysis filter pair. The high-pass filter is the quadrature mirror of the
// low-pass one: reversed, with alternating signs.
var (
	scalingFilter = [filterTaps]float32{
		-0.010597401784997278, 0.032883011666982945, 0.030841381835986965, -0.18703481171888114,
		-0.02798376941698385, 0.6308807679295904, 0.7148465705525415, 0.23037781330885523,
	}
	waveletFilter = [filterTaps]float32{
		0.23037781330885523, -0.7148465705525415, 0.6308807679295904, 0.02798376941698385,
		-0.18703481171888114, -0.030841381835986965, 0.032883011666982945, 0.010597401784997278,
	}
)

// Level holds the output of one analysis stage.
type Level struct {
	// Approx is the low-pass (scaling) output, input to the next level
	Approx []float32
	// Detail is the high-pass (wavelet) output
	Detail []float32
}

// Wavelet is a multi-level two-channel analysis filter bank for power-of-two
// inputs. Level buffers are allocated once and overwritten on every call.
type Wavelet struct {
	size   int
	levels []Level
	tail   [filterTaps]float32 // gathers wrapped input at the end of a level
}

// NewWavelet creates a filter bank for inputs of the given size, decomposing
// at most maxLevel times and never past a single-sample output.
func NewWavelet(size, maxLevel int) (*Wavelet, error) {
	if size < 2 || size&(size-1) != 0 {
		return nil, ErrInvalidWaveletSize
	}

	levels := min(bits.Len(uint(size))-1, maxLevel)
	if levels < 1 {
		levels = 1
	}

	w := &Wavelet{
		size:   size,
		levels: make([]Level, levels),
	}
	half := size / 2
	for i := range w.levels {
		w.levels[i] = Level{
			Approx: make([]float32, half),
			Detail: make([]float32, half),
		}
		half /= 2
	}
	return w, nil
}

// Size returns the expected input length
func (w *Wavelet) Size() int {
	return w.size
}

// Levels returns the number of decomposition levels
func (w *Wavelet) Levels() int {
	return len(w.levels)
}

// Decompose runs every level over data, feeding each level's approximation
// into the next. The returned slice is owned by the Wavelet and is
// overwritten by the next call. data must have exactly Size() samples.
func (w *Wavelet) Decompose(data []float32) []Level {
	prev := data[:w.size]
	for i := range w.levels {
		w.analyze(prev, &w.levels[i])
		prev = w.levels[i].Approx
	}
	return w.levels
}

// analyze applies both filters to data, reading 8 consecutive samples from
// 2i with circular wrap-around.
func (w *Wavelet) analyze(data []float32, out *Level) {
	half := len(out.Approx)
	mask := len(data) - 1
	low := scalingFilter[:]
	high := waveletFilter[:]
	window := w.tail[:]

	for i := 0; i < half; i++ {
		start := i << 1
		if start+filterTaps <= len(data) {
			seg := data[start : start+filterTaps]
			out.Approx[i] = f32.DotProductUnsafe(seg, low)
			out.Detail[i] = f32.DotProductUnsafe(seg, high)
			continue
		}

		// Tail: wrap indices back to the start of the buffer
		for j := range window {
			window[j] = data[(start+j)&mask]
		}
		out.Approx[i] = f32.DotProductUnsafe(window, low)
		out.Detail[i] = f32.DotProductUnsafe(window, high)
	}
}
