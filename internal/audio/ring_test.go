package audio

import (
	"errors"
	"sync"
	"testing"
)

func seq(from, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(from + i)
	}
	return out
}

func equalSamples(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewRingBuffer_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		if _, err := NewRingBuffer(size); !errors.Is(err, ErrInvalidRingSize) {
			t.Errorf("NewRingBuffer(%d) error = %v, want ErrInvalidRingSize", size, err)
		}
	}
}

func TestRingBuffer_ReadLatest(t *testing.T) {
	tests := []struct {
		name    string
		writes  []int // chunk sizes, values continue across chunks
		read    int
		wantPos uint64
		wantErr error
	}{
		{"exact fill", []int{8}, 8, 0, nil},
		{"partial read", []int{5}, 3, 2, nil},
		{"wrap around", []int{5, 6}, 8, 3, nil},
		{"many small writes", []int{3, 3, 3, 3, 3}, 4, 11, nil},
		{"oversized write keeps tail", []int{20}, 8, 12, nil},
		{"not enough data", []int{4}, 5, 0, ErrInsufficientData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRingBuffer(8)
			if err != nil {
				t.Fatalf("NewRingBuffer() error = %v", err)
			}

			next := 0
			for _, n := range tt.writes {
				r.Write(seq(next, n))
				next += n
			}

			dst := make([]float32, tt.read)
			pos, err := r.ReadLatest(dst)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReadLatest() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if pos != tt.wantPos {
				t.Errorf("ReadLatest() pos = %d, want %d", pos, tt.wantPos)
			}
			if want := seq(next-tt.read, tt.read); !equalSamples(dst, want) {
				t.Errorf("ReadLatest() = %v, want %v", dst, want)
			}
		})
	}
}

func TestRingBuffer_ReadAt(t *testing.T) {
	r, err := NewRingBuffer(8)
	if err != nil {
		t.Fatalf("NewRingBuffer() error = %v", err)
	}
	r.Write(seq(0, 12))

	dst := make([]float32, 4)
	if err := r.ReadAt(dst, 6); err != nil {
		t.Fatalf("ReadAt(6) error = %v", err)
	}
	if want := seq(6, 4); !equalSamples(dst, want) {
		t.Errorf("ReadAt(6) = %v, want %v", dst, want)
	}

	if err := r.ReadAt(dst, 3); !errors.Is(err, ErrOverrun) {
		t.Errorf("ReadAt(3) error = %v, want ErrOverrun", err)
	}
	if err := r.ReadAt(dst, 10); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("ReadAt(10) error = %v, want ErrInsufficientData", err)
	}
	if err := r.ReadAt(make([]float32, 9), 3); !errors.Is(err, ErrOverrun) {
		t.Errorf("ReadAt larger than ring error = %v, want ErrOverrun", err)
	}
}

func TestRingBuffer_LenAndReset(t *testing.T) {
	r, err := NewRingBuffer(4)
	if err != nil {
		t.Fatalf("NewRingBuffer() error = %v", err)
	}

	r.Write(seq(0, 3))
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
	r.Write(seq(3, 3))
	if r.Len() != 4 || r.Cap() != 4 {
		t.Errorf("Len(), Cap() = %d, %d, want 4, 4", r.Len(), r.Cap())
	}
	if r.Written() != 6 {
		t.Errorf("Written() = %d, want 6", r.Written())
	}

	r.Reset()
	if r.Len() != 0 || r.Written() != 0 {
		t.Errorf("after Reset Len(), Written() = %d, %d, want 0, 0", r.Len(), r.Written())
	}
}

func TestRingBuffer_ConcurrentWriteRead(t *testing.T) {
	r, err := NewRingBuffer(1024)
	if err != nil {
		t.Fatalf("NewRingBuffer() error = %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			r.Write(seq(i*100, 100))
		}
	}()
	go func() {
		defer wg.Done()
		dst := make([]float32, 256)
		for i := 0; i < 1000; i++ {
			pos, err := r.ReadLatest(dst)
			if err != nil {
				continue
			}
			// Each window must be one contiguous run
			if want := seq(int(pos), len(dst)); !equalSamples(dst, want) {
				t.Errorf("torn read at %d", pos)
				return
			}
		}
	}()
	wg.Wait()
}

func BenchmarkRingBuffer_Write(b *testing.B) {
	r, _ := NewRingBuffer(1 << 17)
	chunk := make([]float32, 1024)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		r.Write(chunk)
	}
}
