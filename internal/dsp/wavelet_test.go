package dsp

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWavelet_InvalidSize(t *testing.T) {
	for _, size := range []int{0, 1, 3, 100, 1000} {
		_, err := NewWavelet(size, MaxLevels)
		assert.ErrorIs(t, err, ErrInvalidWaveletSize, "size %d", size)
	}
}

func TestWavelet_LevelLengths(t *testing.T) {
	tests := []struct {
		size       int
		wantLevels int
	}{
		{2, 1},
		{4, 2},
		{8, 3},
		{16, 4},
		{64, 4},
		{2048, 4},
		{131072, 4},
	}

	for _, tt := range tests {
		w, err := NewWavelet(tt.size, MaxLevels)
		require.NoError(t, err)
		require.Equal(t, tt.wantLevels, w.Levels(), "size %d", tt.size)

		levels := w.Decompose(make([]float32, tt.size))
		require.Len(t, levels, tt.wantLevels)
		for i, lvl := range levels {
			want := tt.size >> (i + 1)
			assert.Len(t, lvl.Approx, want, "size %d level %d approx", tt.size, i)
			assert.Len(t, lvl.Detail, want, "size %d level %d detail", tt.size, i)
		}
	}
}

func TestWavelet_ConstantInput(t *testing.T) {
	w, err := NewWavelet(256, MaxLevels)
	require.NoError(t, err)

	data := make([]float32, 256)
	for i := range data {
		data[i] = 1
	}

	levels := w.Decompose(data)
	// The high-pass filter has zero DC gain, the low-pass gain is sqrt(2)
	for _, v := range levels[0].Detail {
		assert.InDelta(t, 0, v, 1e-5)
	}
	for _, v := range levels[0].Approx {
		assert.InDelta(t, 1.41421356, v, 1e-4)
	}
}

// referenceAnalyze is a direct float64 rendition of one analysis stage
func referenceAnalyze(data []float32) (approx, detail []float64) {
	n := len(data)
	approx = make([]float64, n/2)
	detail = make([]float64, n/2)
	for i := range approx {
		for j := 0; j < filterTaps; j++ {
			v := float64(data[(2*i+j)%n])
			approx[i] += v * float64(scalingFilter[j])
			detail[i] += v * float64(waveletFilter[j])
		}
	}
	return approx, detail
}

func TestWavelet_MatchesReferenceWithWrap(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	data := make([]float32, 64)
	for i := range data {
		data[i] = rng.Float32()*2 - 1
	}

	w, err := NewWavelet(len(data), MaxLevels)
	require.NoError(t, err)
	levels := w.Decompose(data)

	input := data
	for li, lvl := range levels {
		approx, detail := referenceAnalyze(input)
		for i := range approx {
			assert.InDelta(t, approx[i], lvl.Approx[i], 1e-5, "level %d approx %d", li, i)
			assert.InDelta(t, detail[i], lvl.Detail[i], 1e-5, "level %d detail %d", li, i)
		}
		input = lvl.Approx
	}
}

func TestWavelet_ReusesBuffers(t *testing.T) {
	w, err := NewWavelet(32, MaxLevels)
	require.NoError(t, err)

	first := w.Decompose(make([]float32, 32))
	data := make([]float32, 32)
	data[5] = 1
	second := w.Decompose(data)

	assert.Same(t, &first[0].Approx[0], &second[0].Approx[0])
}
