package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/emmett/hark/internal/audio"
)

// SessionConfig configures a ContinuousSession
type SessionConfig struct {
	// Language requested for recognition
	Language string

	// ModelLanguage is the language of the loaded model
	ModelLanguage string

	// InterimResults delivers partial results as well as final ones
	InterimResults bool

	// NoSpeechTimeout ends a run after this long without detected speech.
	// Zero disables it.
	NoSpeechTimeout time.Duration

	VAD audio.VADConfig
}

// ContinuousSession runs an Engine over microphone audio until stopped. The
// same session is started again after every end; each run opens a fresh
// capturer. Events from all runs share one channel.
type ContinuousSession struct {
	engine      Engine
	newCapturer audio.CapturerFactory
	config      SessionConfig
	events      chan Event

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	closed  chan struct{}
	once    sync.Once
}

// NewContinuousSession creates a stopped session. engine must be initialized.
func NewContinuousSession(engine Engine, newCapturer audio.CapturerFactory, config SessionConfig) *ContinuousSession {
	return &ContinuousSession{
		engine:      engine,
		newCapturer: newCapturer,
		config:      config,
		events:      make(chan Event, 32),
		closed:      make(chan struct{}),
	}
}

// Events returns the channel of results, errors and ends
func (s *ContinuousSession) Events() <-chan Event {
	return s.events
}

// Language returns the configured recognition language
func (s *ContinuousSession) Language() string {
	return s.config.Language
}

// Start opens a capturer and begins recognition
func (s *ContinuousSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closed:
		return errors.New("session closed")
	default:
	}
	if s.running {
		return ErrAlreadyStarted
	}
	if !LanguageMatches(s.config.Language, s.config.ModelLanguage) {
		return &EngineError{Category: CategoryLanguageNotSupported,
			Detail: fmt.Sprintf("model speaks %s, %s requested", s.config.ModelLanguage, s.config.Language)}
	}
	if !s.engine.IsInitialized() {
		return &EngineError{Category: CategoryServiceNotAllowed, Detail: "engine not initialized"}
	}

	capturer, err := s.newCapturer()
	if err != nil {
		return &EngineError{Category: CategoryAudioCapture, Detail: "open capturer", Err: err}
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := capturer.Start(runCtx); err != nil {
		cancel()
		return &EngineError{Category: CategoryAudioCapture, Detail: "start capture", Err: err}
	}

	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx, capturer, s.done)
	return nil
}

// Stop asks the current run to finish. The run flushes its last result and
// then delivers an end event. Stop on an idle session does nothing.
func (s *ContinuousSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && s.cancel != nil {
		s.cancel()
	}
	return nil
}

// Close stops the session for good and waits for the current run to exit
func (s *ContinuousSession) Close() error {
	s.once.Do(func() { close(s.closed) })

	s.mu.Lock()
	done := s.done
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

func (s *ContinuousSession) run(ctx context.Context, capturer audio.Capturer, done chan struct{}) {
	defer close(done)

	vad := audio.NewVAD(s.config.VAD)
	var silence *time.Timer
	var noSpeech <-chan time.Time
	if s.config.NoSpeechTimeout > 0 {
		silence = time.NewTimer(s.config.NoSpeechTimeout)
		defer silence.Stop()
		noSpeech = silence.C
	}

	samples, captureErrs := capturer.Samples(), capturer.Errors()
	flush := true

loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case <-noSpeech:
			s.emit(Event{Kind: EventError, Err: &EngineError{Category: CategoryNoSpeech, Detail: "no speech detected"}})
			break loop

		case err, ok := <-captureErrs:
			if !ok {
				captureErrs = nil
				continue
			}
			if errors.Is(err, audio.ErrOverflow) {
				continue
			}
			s.emit(Event{Kind: EventError, Err: &EngineError{Category: CategoryAudioCapture, Err: err}})

		case sample, ok := <-samples:
			if !ok {
				break loop
			}

			if silence != nil {
				st := vad.Process(sample.Data)
				switch {
				case st.Started:
					silence.Stop()
					noSpeech = nil
				case st.Ended:
					silence.Reset(s.config.NoSpeechTimeout)
					noSpeech = silence.C
				}
			}

			res, err := s.engine.ProcessAudio(ctx, sample.Data)
			if err != nil {
				if ctx.Err() != nil {
					break loop
				}
				s.emit(Event{Kind: EventError, Err: &EngineError{Category: CategoryAborted, Detail: "processing audio", Err: err}})
				flush = false
				break loop
			}
			s.deliver(res)
		}
	}

	if err := capturer.Stop(); err != nil {
		s.emit(Event{Kind: EventError, Err: &EngineError{Category: CategoryAudioCapture, Detail: "stop capture", Err: err}})
	}

	if flush {
		if res, err := s.engine.FinalResult(); err == nil {
			s.deliver(res)
		}
	} else {
		_ = s.engine.Reset()
	}

	s.mu.Lock()
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	s.emit(Event{Kind: EventEnd})
}

// LanguageMatches compares the primary subtags of two language tags, so
// "en-US" matches "en-GB". An empty tag matches anything.
func LanguageMatches(a, b string) bool {
	if a == "" || b == "" {
		return true
	}
	primary := func(s string) string {
		s, _, _ = strings.Cut(strings.ReplaceAll(s, "_", "-"), "-")
		return strings.ToLower(s)
	}
	return primary(a) == primary(b)
}

func (s *ContinuousSession) deliver(res *Result) {
	if res == nil {
		return
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return
	}
	if res.Partial && !s.config.InterimResults {
		return
	}
	s.emit(Event{Kind: EventResult, Result: Result{Text: text, Partial: res.Partial, Confidence: res.Confidence}})
}

func (s *ContinuousSession) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}
