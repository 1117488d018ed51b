// internal/audio/capture.go
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gen2brain/malgo"
)

var (
	ErrNotInitialized = errors.New("audio capture not initialized")
	ErrAlreadyRunning = errors.New("audio capture already running")
	ErrNotRunning     = errors.New("audio capture not running")
	ErrClosed         = errors.New("audio capture closed")
)

// Config holds audio capture configuration
type Config struct {
	DeviceIndex int    // -1 for default device
	SampleRate  uint32 // e.g., 48000
	Channels    uint32 // 1 for mono, 2 for stereo
	BufferSize  uint32 // frames per callback
}

// DefaultConfig returns sensible defaults for tempo analysis of line-in or loopback audio
func DefaultConfig() Config {
	return Config{
		DeviceIndex: -1,
		SampleRate:  48000,
		Channels:    2,
		BufferSize:  1024,
	}
}

// SampleCallback is called directly from the audio thread with mono samples.
// Must be non-blocking and fast, and must not retain the slice.
type SampleCallback func(samples []float32)

// Capture handles real-time audio sampling from a capture device. Each
// period of interleaved frames is folded to one mono magnitude stream
// before it reaches the callback.
type Capture struct {
	config    Config
	ctx       *malgo.AllocatedContext
	device    *malgo.Device
	mu        sync.Mutex
	running   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	callbackPtr atomic.Pointer[SampleCallback]

	// done is closed when the device started by the current Start stops
	done chan struct{}

	// Audio-thread scratch, only touched from the data callback
	raw  []float32
	mono []float32
}

// New creates a new audio capture instance
func New(cfg Config) *Capture {
	return &Capture{config: cfg}
}

// Config returns the capture configuration
func (c *Capture) Config() Config {
	return c.config
}

// SetCallback sets the receiver of mono samples. Safe to call while running.
func (c *Capture) SetCallback(cb SampleCallback) {
	if cb == nil {
		c.callbackPtr.Store(nil)
		return
	}
	c.callbackPtr.Store(&cb)
}

// Init initializes the audio backend
func (c *Capture) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	c.ctx = ctx

	return nil
}

// ListDevices returns available capture devices
func (c *Capture) ListDevices() ([]malgo.DeviceInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listDevices()
}

func (c *Capture) listDevices() ([]malgo.DeviceInfo, error) {
	if c.ctx == nil {
		return nil, ErrNotInitialized
	}

	infos, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	return infos, nil
}

// Start begins audio capture. Capture stops when ctx is cancelled.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	if c.running.Load() {
		return ErrAlreadyRunning
	}
	if c.ctx == nil {
		return ErrNotInitialized
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.SampleRate = c.config.SampleRate
	deviceConfig.PeriodSizeInFrames = c.config.BufferSize
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = c.config.Channels

	// Select specific device if requested
	if c.config.DeviceIndex >= 0 {
		devices, err := c.listDevices()
		if err != nil {
			return err
		}
		if c.config.DeviceIndex >= len(devices) {
			return fmt.Errorf("device index %d out of range (have %d devices)",
				c.config.DeviceIndex, len(devices))
		}
		deviceConfig.Capture.DeviceID = devices[c.config.DeviceIndex].ID.Pointer()
	}

	channels := int(c.config.Channels)
	c.raw = make([]float32, int(c.config.BufferSize)*channels)
	c.mono = make([]float32, c.config.BufferSize)

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(_, inputSamples []byte, frameCount uint32) {
			c.onFrames(inputSamples, int(frameCount), channels)
		},
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		return fmt.Errorf("init device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start device: %w", err)
	}

	c.device = device
	c.running.Store(true)

	done := make(chan struct{})
	c.done = done
	go c.stopOnCancel(ctx, done)

	return nil
}

// stopOnCancel stops the device of one Start call when ctx ends. It returns
// without touching the device once that device was stopped some other way.
func (c *Capture) stopOnCancel(ctx context.Context, done <-chan struct{}) {
	select {
	case <-ctx.Done():
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.done == done {
			c.stopDevice()
		}
	case <-done:
	}
}

// onFrames runs on the audio thread
func (c *Capture) onFrames(input []byte, frameCount, channels int) {
	if len(input) == 0 || c.closed.Load() {
		return
	}
	cbp := c.callbackPtr.Load()
	if cbp == nil {
		return
	}

	interleaved := bytesAsFloat32(input)
	if interleaved == nil {
		// Unaligned buffer, decode into scratch
		c.raw = growFloat32(c.raw, len(input)/4)
		interleaved = decodeFloat32(c.raw, input)
	}
	if n := frameCount * channels; n < len(interleaved) {
		interleaved = interleaved[:n]
	}

	c.mono = growFloat32(c.mono, len(interleaved)/max(channels, 1))
	mono := Downmix(c.mono, interleaved, channels)
	(*cbp)(mono)
}

// Stop stops audio capture
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.Load() {
		return ErrNotRunning
	}

	c.stopDevice()
	return nil
}

func (c *Capture) stopDevice() {
	if c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	c.running.Store(false)
}

// Close releases all audio resources. Safe to call more than once.
func (c *Capture) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.running.Load() {
			c.stopDevice()
		}

		if c.ctx != nil {
			if uerr := c.ctx.Uninit(); uerr != nil {
				err = fmt.Errorf("uninit context: %w", uerr)
			}
			c.ctx.Free()
			c.ctx = nil
		}
	})
	return err
}

// IsRunning returns true if capture is active
func (c *Capture) IsRunning() bool {
	return c.running.Load()
}

// bytesAsFloat32 reinterprets little-endian float32 bytes without copying.
// Returns nil when data holds no whole sample or is not 4-byte aligned.
func bytesAsFloat32(data []byte) []float32 {
	n := len(data) / 4
	if n == 0 {
		return nil
	}
	ptr := unsafe.Pointer(unsafe.SliceData(data))
	if uintptr(ptr)%unsafe.Alignof(float32(0)) != 0 {
		return nil
	}
	return unsafe.Slice((*float32)(ptr), n)
}

// decodeFloat32 decodes little-endian float32 samples into dst
func decodeFloat32(dst []float32, data []byte) []float32 {
	n := min(len(dst), len(data)/4)
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return dst[:n]
}

// growFloat32 returns buf resliced to n, reallocating only when it is too small
func growFloat32(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}
