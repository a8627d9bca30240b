package audio

import "math"

// VADConfig holds configuration for the energy voice activity detector
type VADConfig struct {
	// EnergyThreshold is the RMS level above which a frame counts as speech.
	// Typical values: 0.001 to 0.1 (lower = more sensitive)
	EnergyThreshold float64

	// SilenceFrames of quiet before speech is considered over
	SilenceFrames int

	// SpeechFrames of signal before speech is considered started
	SpeechFrames int
}

// DefaultVADConfig returns 90ms to start speech and 1s of silence to end it
// at 30ms frames
func DefaultVADConfig() VADConfig {
	return VADConfig{
		EnergyThreshold: 0.01,
		SilenceFrames:   33,
		SpeechFrames:    3,
	}
}

// VAD tracks speech and silence over successive frames
type VAD struct {
	config       VADConfig
	silenceCount int
	speechCount  int
	speaking     bool
}

// VADState is the outcome of one frame
type VADState struct {
	Speaking bool
	Started  bool
	Ended    bool
	Energy   float64
}

// NewVAD creates a new voice activity detector
func NewVAD(config VADConfig) *VAD {
	return &VAD{config: config}
}

// Process feeds one frame of 16-bit little-endian PCM
func (v *VAD) Process(frame []byte) VADState {
	energy := Energy(frame)
	st := VADState{Energy: energy}

	if energy > v.config.EnergyThreshold {
		v.speechCount++
		v.silenceCount = 0
		if !v.speaking && v.speechCount >= v.config.SpeechFrames {
			v.speaking = true
			st.Started = true
		}
	} else {
		v.silenceCount++
		v.speechCount = 0
		if v.speaking && v.silenceCount >= v.config.SilenceFrames {
			v.speaking = false
			st.Ended = true
		}
	}

	st.Speaking = v.speaking
	return st
}

// IsSpeaking returns whether speech is currently active
func (v *VAD) IsSpeaking() bool {
	return v.speaking
}

// Reset clears the detector
func (v *VAD) Reset() {
	v.silenceCount = 0
	v.speechCount = 0
	v.speaking = false
}

// Energy is the RMS of a 16-bit little-endian PCM buffer in [0, 1]
func Energy(data []byte) float64 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(uint16(data[2*i])|uint16(data[2*i+1])<<8)) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
