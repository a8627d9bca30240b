package stt

import "context"

// Result is one recognition result from an Engine
type Result struct {
	// Text is the recognized text
	Text string

	// Partial is true while the engine is still refining the current phrase
	Partial bool

	// Confidence is the average word confidence (0.0 to 1.0) of final results
	Confidence float64
}

// Config holds configuration for the STT engine
type Config struct {
	// ModelPath is the path to the model directory
	ModelPath string

	// SampleRate is the audio sample rate in Hz
	SampleRate int

	// MaxAlternatives is the maximum number of alternative results to return
	MaxAlternatives int
}

// Engine turns 16-bit PCM audio into text
type Engine interface {
	// Initialize loads the model described by config
	Initialize(config Config) error

	// ProcessAudio feeds audio and returns the current partial or final result
	ProcessAudio(ctx context.Context, audioData []byte) (*Result, error)

	// FinalResult flushes pending audio and resets the recognizer
	FinalResult() (*Result, error)

	// Reset drops any partially recognized phrase
	Reset() error

	// Close releases resources
	Close() error

	// IsInitialized returns true if the engine is initialized
	IsInitialized() bool
}

// DefaultConfig returns a default STT configuration
func DefaultConfig(modelPath string) Config {
	return Config{
		ModelPath:       modelPath,
		SampleRate:      16000,
		MaxAlternatives: 0,
	}
}
