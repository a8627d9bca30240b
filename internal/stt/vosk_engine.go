package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"
)

// VoskEngine implements Engine using a Vosk model
type VoskEngine struct {
	model       *vosk.VoskModel
	recognizer  *vosk.VoskRecognizer
	config      Config
	mu          sync.Mutex
	initialized bool
}

type voskResult struct {
	Text   string `json:"text"`
	Result []struct {
		Conf float64 `json:"conf"`
		Word string  `json:"word"`
	} `json:"result,omitempty"`
	Partial string `json:"partial,omitempty"`
}

// NewVoskEngine creates an uninitialized Vosk engine
func NewVoskEngine() *VoskEngine {
	return &VoskEngine{}
}

// Initialize loads the model and creates the recognizer
func (v *VoskEngine) Initialize(config Config) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.initialized {
		return fmt.Errorf("engine already initialized")
	}

	vosk.SetLogLevel(-1)

	model, err := vosk.NewModel(config.ModelPath)
	if err != nil {
		return fmt.Errorf("failed to load model from %s: %w", config.ModelPath, err)
	}
	if model == nil {
		return fmt.Errorf("failed to load model from %s: model returned nil", config.ModelPath)
	}

	recognizer, err := vosk.NewRecognizer(model, float64(config.SampleRate))
	if err != nil {
		model.Free()
		return fmt.Errorf("failed to create recognizer: %w", err)
	}
	if config.MaxAlternatives > 0 {
		recognizer.SetMaxAlternatives(config.MaxAlternatives)
	}
	// word results carry the confidence scores
	recognizer.SetWords(1)

	v.model = model
	v.recognizer = recognizer
	v.config = config
	v.initialized = true
	return nil
}

// ProcessAudio feeds one chunk of PCM into the recognizer
func (v *VoskEngine) ProcessAudio(ctx context.Context, audioData []byte) (*Result, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.initialized {
		return nil, fmt.Errorf("engine not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if v.recognizer.AcceptWaveform(audioData) > 0 {
		res, err := decodeVosk(v.recognizer.Result())
		if err != nil {
			return nil, fmt.Errorf("failed to parse result: %w", err)
		}
		return &Result{Text: res.Text, Confidence: averageConfidence(res)}, nil
	}

	res, err := decodeVosk(v.recognizer.PartialResult())
	if err != nil {
		return nil, fmt.Errorf("failed to parse partial result: %w", err)
	}
	return &Result{Text: res.Partial, Partial: true}, nil
}

// FinalResult returns the pending phrase; Vosk resets itself afterwards
func (v *VoskEngine) FinalResult() (*Result, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.initialized {
		return nil, fmt.Errorf("engine not initialized")
	}

	res, err := decodeVosk(v.recognizer.FinalResult())
	if err != nil {
		return nil, fmt.Errorf("failed to parse final result: %w", err)
	}
	return &Result{Text: res.Text, Confidence: averageConfidence(res)}, nil
}

// Reset drops the current phrase
func (v *VoskEngine) Reset() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.initialized {
		return fmt.Errorf("engine not initialized")
	}
	v.recognizer.Reset()
	return nil
}

// Close frees the recognizer and the model
func (v *VoskEngine) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.initialized {
		return nil
	}
	if v.recognizer != nil {
		v.recognizer.Free()
		v.recognizer = nil
	}
	if v.model != nil {
		v.model.Free()
		v.model = nil
	}
	v.initialized = false
	return nil
}

// IsInitialized returns true if the engine is initialized
func (v *VoskEngine) IsInitialized() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.initialized
}

func decodeVosk(raw string) (voskResult, error) {
	var res voskResult
	err := json.Unmarshal([]byte(raw), &res)
	return res, err
}

func averageConfidence(res voskResult) float64 {
	if len(res.Result) == 0 {
		return 0.0
	}
	var sum float64
	for _, w := range res.Result {
		sum += w.Conf
	}
	return sum / float64(len(res.Result))
}
