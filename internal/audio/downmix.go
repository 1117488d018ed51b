// internal/audio/downmix.go
package audio

import "math"

// Downmix folds interleaved frames into one sample per frame, the Euclidean
// norm across channels (hypot for stereo). Mono input is copied through.
// dst must hold len(interleaved)/channels samples; the filled prefix is returned.
func Downmix(dst, interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		n := copy(dst, interleaved)
		return dst[:n]
	}

	frames := min(len(interleaved)/channels, len(dst))
	if channels == 2 {
		for i := 0; i < frames; i++ {
			l := float64(interleaved[2*i])
			r := float64(interleaved[2*i+1])
			dst[i] = float32(math.Hypot(l, r))
		}
		return dst[:frames]
	}

	for i := 0; i < frames; i++ {
		var sum float64
		for _, v := range interleaved[i*channels : (i+1)*channels] {
			sum += float64(v) * float64(v)
		}
		dst[i] = float32(math.Sqrt(sum))
	}
	return dst[:frames]
}
