// internal/audio/ring.go
package audio

import (
	"errors"
	"sync"
)

var (
	// ErrInvalidRingSize indicates the ring capacity must be positive
	ErrInvalidRingSize = errors.New("ring buffer size must be positive")
	// ErrInsufficientData indicates fewer samples have been written than requested
	ErrInsufficientData = errors.New("not enough samples in ring buffer")
	// ErrOverrun indicates the requested samples were already overwritten
	ErrOverrun = errors.New("ring buffer position already overwritten")
)

// RingBuffer keeps the most recent samples of a stream. The writer never
// blocks: once full, the oldest samples are overwritten. Positions are
// absolute sample counts since creation (or the last Reset).
type RingBuffer struct {
	mu      sync.Mutex
	buf     []float32
	written uint64
}

// NewRingBuffer creates a ring holding size samples
func NewRingBuffer(size int) (*RingBuffer, error) {
	if size <= 0 {
		return nil, ErrInvalidRingSize
	}
	return &RingBuffer{buf: make([]float32, size)}, nil
}

// Cap returns the number of samples the ring retains
func (r *RingBuffer) Cap() int {
	return len(r.buf)
}

// Written returns the total number of samples written
func (r *RingBuffer) Written() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Len returns the number of valid samples currently held
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(min(r.written, uint64(len(r.buf))))
}

// Write appends samples, overwriting the oldest when full. It matches the
// capture SampleCallback signature and may be called from the audio thread.
func (r *RingBuffer) Write(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := len(r.buf)
	if len(samples) >= size {
		// Only the tail survives
		r.written += uint64(len(samples) - size)
		samples = samples[len(samples)-size:]
	}

	start := int(r.written % uint64(size))
	n := copy(r.buf[start:], samples)
	copy(r.buf, samples[n:])
	r.written += uint64(len(samples))
}

// ReadLatest fills dst with the most recent len(dst) samples, oldest first,
// and returns the absolute position of dst[0].
func (r *RingBuffer) ReadLatest(dst []float32) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if uint64(len(dst)) > r.written {
		return 0, ErrInsufficientData
	}
	pos := r.written - uint64(len(dst))
	if err := r.readAt(dst, pos); err != nil {
		return 0, err
	}
	return pos, nil
}

// ReadAt fills dst with the samples starting at absolute position pos
func (r *RingBuffer) ReadAt(dst []float32, pos uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readAt(dst, pos)
}

func (r *RingBuffer) readAt(dst []float32, pos uint64) error {
	size := uint64(len(r.buf))
	end := pos + uint64(len(dst))
	if end > r.written {
		return ErrInsufficientData
	}
	if r.written > size && pos < r.written-size {
		return ErrOverrun
	}

	start := int(pos % size)
	n := copy(dst, r.buf[start:])
	copy(dst[n:], r.buf)
	return nil
}

// Reset discards all samples
func (r *RingBuffer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.buf)
	r.written = 0
}
