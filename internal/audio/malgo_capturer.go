package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// ErrOverflow is reported on Errors when the recognizer falls behind
var ErrOverflow = errors.New("sample buffer overflow, dropping frames")

// MalgoCapturer implements Capturer on top of miniaudio
type MalgoCapturer struct {
	config       CaptureConfig
	device       *malgo.Device
	malgoContext *malgo.AllocatedContext
	samples      chan AudioSample
	errors       chan error

	mu       sync.RWMutex
	running  bool
	started  bool
	stopOnce sync.Once
	stopErr  error
	stopChan chan struct{}
}

// NewMalgoCapturer creates a capturer; no device is opened until Start
func NewMalgoCapturer(config CaptureConfig) (*MalgoCapturer, error) {
	if config.BitDepth != 0 && config.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d", config.BitDepth)
	}
	size := config.SampleBufferSize
	if size <= 0 {
		size = DefaultConfig().SampleBufferSize
	}
	return &MalgoCapturer{
		config:   config,
		samples:  make(chan AudioSample, size),
		errors:   make(chan error, 10),
		stopChan: make(chan struct{}),
	}, nil
}

// Start opens the capture device and begins delivering samples
func (m *MalgoCapturer) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("capturer already used")
	}
	m.started = true

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = m.config.Channels
	deviceConfig.SampleRate = m.config.SampleRate
	deviceConfig.PeriodSizeInFrames = m.config.BufferFrames

	if m.config.DeviceID != "" {
		infos, err := malgoCtx.Devices(malgo.Capture)
		if err != nil {
			freeContext(malgoCtx)
			return fmt.Errorf("failed to enumerate devices: %w", err)
		}
		idx, err := matchDevice(infos, m.config.DeviceID)
		if err != nil {
			freeContext(malgoCtx)
			return err
		}
		deviceConfig.Capture.DeviceID = infos[idx].ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frames uint32) {
			data := make([]byte, len(input))
			copy(data, input)
			select {
			case <-m.stopChan:
				return
			default:
			}
			select {
			case m.samples <- AudioSample{Data: data, Timestamp: time.Now(), Frames: frames}:
			default:
				select {
				case m.errors <- ErrOverflow:
				default:
				}
			}
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		freeContext(malgoCtx)
		return fmt.Errorf("failed to initialize device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		freeContext(malgoCtx)
		return fmt.Errorf("failed to start device: %w", err)
	}

	m.malgoContext = malgoCtx
	m.device = device
	m.running = true

	go func() {
		select {
		case <-ctx.Done():
			_ = m.Stop()
		case <-m.stopChan:
		}
	}()
	return nil
}

// Stop closes the device and both channels. Safe to call more than once.
func (m *MalgoCapturer) Stop() error {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		close(m.stopChan)
		if m.device != nil {
			if err := m.device.Stop(); err != nil {
				m.stopErr = fmt.Errorf("failed to stop device: %w", err)
			}
			// Uninit waits for the data callback to return
			m.device.Uninit()
			m.device = nil
		}
		if m.malgoContext != nil {
			freeContext(m.malgoContext)
			m.malgoContext = nil
		}
		m.running = false
		close(m.samples)
		close(m.errors)
	})
	return m.stopErr
}

// Samples returns the channel of captured periods
func (m *MalgoCapturer) Samples() <-chan AudioSample {
	return m.samples
}

// Errors returns the channel of capture errors
func (m *MalgoCapturer) Errors() <-chan error {
	return m.errors
}

// IsRunning returns true while the device is open
func (m *MalgoCapturer) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func freeContext(c *malgo.AllocatedContext) {
	_ = c.Uninit()
	c.Free()
}
