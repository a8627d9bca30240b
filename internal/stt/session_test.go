package stt

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmett/hark/internal/audio"
)

type fakeEngine struct {
	mu         sync.Mutex
	results    []*Result
	processErr error
	final      *Result
	processed  int
	resets     int
}

func (f *fakeEngine) Initialize(Config) error { return nil }

func (f *fakeEngine) ProcessAudio(ctx context.Context, _ []byte) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed++
	if f.processErr != nil {
		return nil, f.processErr
	}
	if len(f.results) == 0 {
		return &Result{Partial: true}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}

func (f *fakeEngine) FinalResult() (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.final
	f.final = nil
	if r == nil {
		r = &Result{}
	}
	return r, nil
}

func (f *fakeEngine) Reset() error {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Close() error        { return nil }
func (f *fakeEngine) IsInitialized() bool { return true }

type fakeCapturer struct {
	samples  chan audio.AudioSample
	errs     chan error
	startErr error
	once     sync.Once
	running  bool
}

func newFakeCapturer() *fakeCapturer {
	return &fakeCapturer{
		samples: make(chan audio.AudioSample, 16),
		errs:    make(chan error, 4),
	}
}

func (c *fakeCapturer) Start(context.Context) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.running = true
	return nil
}

func (c *fakeCapturer) Stop() error {
	c.once.Do(func() {
		c.running = false
		close(c.samples)
		close(c.errs)
	})
	return nil
}

func (c *fakeCapturer) Samples() <-chan audio.AudioSample { return c.samples }
func (c *fakeCapturer) Errors() <-chan error              { return c.errs }
func (c *fakeCapturer) IsRunning() bool                   { return c.running }

// capturers hands out fresh fake capturers and remembers them
type capturers struct {
	mu   sync.Mutex
	made []*fakeCapturer
	err  error
}

func (cs *capturers) factory() audio.CapturerFactory {
	return func() (audio.Capturer, error) {
		cs.mu.Lock()
		defer cs.mu.Unlock()
		if cs.err != nil {
			return nil, cs.err
		}
		c := newFakeCapturer()
		cs.made = append(cs.made, c)
		return c, nil
	}
}

func (cs *capturers) last() *fakeCapturer {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.made[len(cs.made)-1]
}

func loud() audio.AudioSample {
	buf := make([]byte, 960)
	for i := 0; i < len(buf); i += 2 {
		binary.LittleEndian.PutUint16(buf[i:], uint16(16384))
	}
	return audio.AudioSample{Data: buf, Frames: 480}
}

func next(t *testing.T, s *ContinuousSession) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
		return Event{}
	}
}

func TestSessionDeliversFinalResults(t *testing.T) {
	eng := &fakeEngine{results: []*Result{
		{Text: "please call", Partial: true},
		{Text: " please call the doctor now ", Confidence: 0.9},
	}}
	cs := &capturers{}
	s := NewContinuousSession(eng, cs.factory(), SessionConfig{})

	require.NoError(t, s.Start(context.Background()))
	c := cs.last()
	c.samples <- loud()
	c.samples <- loud()

	ev := next(t, s)
	require.Equal(t, EventResult, ev.Kind)
	assert.Equal(t, "please call the doctor now", ev.Result.Text)
	assert.False(t, ev.Result.Partial)

	require.NoError(t, s.Stop())
	assert.Equal(t, EventEnd, next(t, s).Kind)
}

func TestSessionInterimResults(t *testing.T) {
	eng := &fakeEngine{results: []*Result{{Text: "please", Partial: true}}}
	cs := &capturers{}
	s := NewContinuousSession(eng, cs.factory(), SessionConfig{InterimResults: true})

	require.NoError(t, s.Start(context.Background()))
	cs.last().samples <- loud()

	ev := next(t, s)
	require.Equal(t, EventResult, ev.Kind)
	assert.True(t, ev.Result.Partial)
	assert.Equal(t, "please", ev.Result.Text)
	require.NoError(t, s.Close())
}

func TestSessionFlushesOnStop(t *testing.T) {
	eng := &fakeEngine{final: &Result{Text: "fire in the hall"}}
	cs := &capturers{}
	s := NewContinuousSession(eng, cs.factory(), SessionConfig{})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())

	ev := next(t, s)
	require.Equal(t, EventResult, ev.Kind)
	assert.Equal(t, "fire in the hall", ev.Result.Text)
	assert.Equal(t, EventEnd, next(t, s).Kind)
}

func TestSessionEndsWhenCaptureCloses(t *testing.T) {
	cs := &capturers{}
	s := NewContinuousSession(&fakeEngine{}, cs.factory(), SessionConfig{})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, cs.last().Stop())
	assert.Equal(t, EventEnd, next(t, s).Kind)
}

func TestSessionAlreadyStarted(t *testing.T) {
	cs := &capturers{}
	s := NewContinuousSession(&fakeEngine{}, cs.factory(), SessionConfig{})

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
	require.NoError(t, s.Close())
}

func TestSessionRestartsWithFreshCapturer(t *testing.T) {
	cs := &capturers{}
	s := NewContinuousSession(&fakeEngine{}, cs.factory(), SessionConfig{})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.Equal(t, EventEnd, next(t, s).Kind)

	require.NoError(t, s.Start(context.Background()))
	cs.mu.Lock()
	assert.Len(t, cs.made, 2)
	cs.mu.Unlock()
	require.NoError(t, s.Close())
}

func TestSessionProcessingFailureAborts(t *testing.T) {
	eng := &fakeEngine{processErr: errors.New("decoder exploded")}
	cs := &capturers{}
	s := NewContinuousSession(eng, cs.factory(), SessionConfig{})

	require.NoError(t, s.Start(context.Background()))
	cs.last().samples <- loud()

	ev := next(t, s)
	require.Equal(t, EventError, ev.Kind)
	assert.Equal(t, CategoryAborted, ev.Err.Category)
	assert.True(t, ev.Err.IsTransient())
	assert.Equal(t, EventEnd, next(t, s).Kind)
	assert.Equal(t, 1, eng.resets)
}

func TestSessionNoSpeechTimeout(t *testing.T) {
	cs := &capturers{}
	s := NewContinuousSession(&fakeEngine{}, cs.factory(), SessionConfig{
		NoSpeechTimeout: 20 * time.Millisecond,
		VAD:             audio.DefaultVADConfig(),
	})

	require.NoError(t, s.Start(context.Background()))

	ev := next(t, s)
	require.Equal(t, EventError, ev.Kind)
	assert.Equal(t, CategoryNoSpeech, ev.Err.Category)
	assert.False(t, ev.Err.IsTransient())
	assert.Equal(t, EventEnd, next(t, s).Kind)
}

func TestSessionCaptureErrors(t *testing.T) {
	cs := &capturers{}
	s := NewContinuousSession(&fakeEngine{}, cs.factory(), SessionConfig{})

	require.NoError(t, s.Start(context.Background()))
	c := cs.last()
	c.errs <- audio.ErrOverflow
	c.errs <- errors.New("device unplugged")

	ev := next(t, s)
	require.Equal(t, EventError, ev.Kind)
	assert.Equal(t, CategoryAudioCapture, ev.Err.Category)
	assert.ErrorContains(t, ev.Err, "device unplugged")
	require.NoError(t, s.Close())
}

func TestSessionStartFailures(t *testing.T) {
	cs := &capturers{err: errors.New("no microphone")}
	s := NewContinuousSession(&fakeEngine{}, cs.factory(), SessionConfig{})

	err := s.Start(context.Background())
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CategoryAudioCapture, ee.Category)

	// a failed start leaves the session startable
	cs.err = nil
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Close())
}

func TestSessionStopWhenIdle(t *testing.T) {
	s := NewContinuousSession(&fakeEngine{}, (&capturers{}).factory(), SessionConfig{})
	assert.NoError(t, s.Stop())
	assert.NoError(t, s.Close())
	assert.Error(t, s.Start(context.Background()))
}

func TestEngineErrorFormatting(t *testing.T) {
	base := errors.New("boom")
	cases := []struct {
		err  *EngineError
		want string
	}{
		{&EngineError{Category: CategoryNetwork}, "network"},
		{&EngineError{Category: CategoryNetwork, Detail: "dns"}, "network: dns"},
		{&EngineError{Category: CategoryAborted, Err: base}, "aborted: boom"},
		{&EngineError{Category: CategoryAborted, Detail: "decode", Err: base}, "aborted: decode: boom"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.err.Error())
	}
	assert.ErrorIs(t, &EngineError{Category: CategoryAborted, Err: base}, base)
	assert.True(t, CategoryNetwork.Transient())
	assert.False(t, CategoryNotAllowed.Transient())
}

func TestSessionLanguageMismatch(t *testing.T) {
	s := NewContinuousSession(&fakeEngine{}, (&capturers{}).factory(), SessionConfig{Language: "fr-FR", ModelLanguage: "en-US"})
	err := s.Start(context.Background())
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CategoryLanguageNotSupported, ee.Category)
}

func TestLanguageMatches(t *testing.T) {
	assert.True(t, LanguageMatches("en-US", "en-GB"))
	assert.True(t, LanguageMatches("EN_us", "en"))
	assert.True(t, LanguageMatches("", "fr-FR"))
	assert.False(t, LanguageMatches("en-US", "fr-FR"))
}
