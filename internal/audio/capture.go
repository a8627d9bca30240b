package audio

import (
	"context"
	"time"
)

// CaptureConfig holds configuration for microphone capture
type CaptureConfig struct {
	// SampleRate in Hz. Vosk models expect 16000.
	SampleRate uint32

	// Channels is 1 for mono
	Channels uint32

	// BitDepth of each sample; only 16 is delivered as S16 PCM
	BitDepth uint32

	// BufferFrames is the device period in frames (480 = 30ms at 16kHz)
	BufferFrames uint32

	// SampleBufferSize is how many periods may queue up while the recognizer
	// is busy before frames are dropped
	SampleBufferSize int

	// DeviceID selects a capture device ("capture-N" or a name fragment).
	// Empty uses the system default.
	DeviceID string
}

// DefaultConfig returns the capture settings used for continuous listening
func DefaultConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:       16000,
		Channels:         1,
		BitDepth:         16,
		BufferFrames:     480,
		SampleBufferSize: 50,
	}
}

// ConfigForModelSize sizes the sample buffer for slower, larger models.
// size is the catalogue size string of a model, e.g. "40M" or "1.8G".
func ConfigForModelSize(size string) CaptureConfig {
	cfg := DefaultConfig()
	switch {
	case len(size) > 0 && size[len(size)-1] == 'G':
		cfg.SampleBufferSize = 300
	case len(size) > 3:
		// three digit megabytes
		cfg.SampleBufferSize = 150
	}
	return cfg
}

// FrameDuration is the wall time covered by one device period
func (c CaptureConfig) FrameDuration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(c.BufferFrames) * time.Second / time.Duration(c.SampleRate)
}

// AudioSample is one period of captured PCM
type AudioSample struct {
	Data      []byte
	Timestamp time.Time
	Frames    uint32
}

// Capturer delivers microphone audio. A Capturer runs once: after Stop both
// channels are closed and a new Capturer is needed to listen again.
type Capturer interface {
	Start(ctx context.Context) error
	Stop() error
	Samples() <-chan AudioSample
	Errors() <-chan error
	IsRunning() bool
}

// CapturerFactory builds a fresh Capturer for every listening run
type CapturerFactory func() (Capturer, error)

// NewCapturer creates a malgo capturer with the given configuration
func NewCapturer(config CaptureConfig) (Capturer, error) {
	return NewMalgoCapturer(config)
}

// Factory returns a CapturerFactory producing malgo capturers for config
func Factory(config CaptureConfig) CapturerFactory {
	return func() (Capturer, error) {
		return NewCapturer(config)
	}
}
