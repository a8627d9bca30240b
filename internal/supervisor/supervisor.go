// Package supervisor owns one continuous recognition session: it starts and
// stops it on command, restarts it when the engine ends on its own, retries
// transient engine errors and matches every final utterance against the
// current trigger words.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/emmett/hark/internal/stt"
	"github.com/emmett/hark/internal/trace"
	"github.com/emmett/hark/internal/trigger"
)

// ErrClosed is returned by commands sent after Run has returned
var ErrClosed = errors.New("supervisor closed")

// Config tunes the restart policy
type Config struct {
	// RestartBackoff is the wait before each restart attempt after the engine
	// ends on its own; entry i precedes attempt i+1, so a zero first entry
	// restarts immediately. Its length bounds consecutive failed attempts.
	RestartBackoff []time.Duration

	// TransientRetryDelay is the wait before restarting after a network or
	// aborted error
	TransientRetryDelay time.Duration

	// AfterFunc schedules f after d. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func())
}

// DefaultConfig retries immediately, then after 1s, then after 2s
func DefaultConfig() Config {
	return Config{
		RestartBackoff:      []time.Duration{0, time.Second, 2 * time.Second},
		TransientRetryDelay: time.Second,
	}
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdSetWords
	cmdStatus
)

type command struct {
	kind  commandKind
	words []string
	reply chan Status
}

type retryKind int

const (
	retryRestart retryKind = iota
	retryTransient
)

type retry struct {
	kind  retryKind
	epoch uint64
}

// Supervisor is the recognition state machine. All fields below the channels
// are owned by the Run goroutine.
type Supervisor struct {
	cfg     Config
	factory SessionFactory
	words   *trigger.Channel
	events  EventSink
	alerts  AlertSink
	log     zerolog.Logger

	cmds    chan command
	retries chan retry
	done    chan struct{}

	state         State
	session       Session
	sessionEvents <-chan stt.Event
	running       bool
	shouldRestart bool
	stopPending   bool
	failures      int
	epoch         uint64
	lastUtterance string
	sessionID     string
}

// New creates an idle supervisor. Call Run to process commands.
func New(cfg Config, factory SessionFactory, words *trigger.Channel, events EventSink, alerts AlertSink, log zerolog.Logger) *Supervisor {
	if len(cfg.RestartBackoff) == 0 {
		cfg.RestartBackoff = DefaultConfig().RestartBackoff
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	if words == nil {
		words = trigger.NewChannel()
	}
	if events == nil {
		events = EventSinkFunc(func(Event) {})
	}
	return &Supervisor{
		cfg:     cfg,
		factory: factory,
		words:   words,
		events:  events,
		alerts:  alerts,
		log:     log.With().Str("component", "supervisor").Logger(),
		cmds:    make(chan command, 16),
		retries: make(chan retry, 4),
		done:    make(chan struct{}),
		state:   StateIdle,
	}
}

// Words returns the trigger word channel read by the supervisor
func (s *Supervisor) Words() *trigger.Channel { return s.words }

// Start asks the supervisor to begin listening
func (s *Supervisor) Start(ctx context.Context) error {
	return s.send(ctx, command{kind: cmdStart})
}

// Stop asks the supervisor to stop listening. A stopped event follows once
// the engine has ended.
func (s *Supervisor) Stop(ctx context.Context) error {
	return s.send(ctx, command{kind: cmdStop})
}

// SetTriggerWords replaces the trigger words, in order with other commands
func (s *Supervisor) SetTriggerWords(ctx context.Context, words []string) error {
	return s.send(ctx, command{kind: cmdSetWords, words: words})
}

// Status returns the supervisor's state as seen by the Run goroutine
func (s *Supervisor) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if err := s.send(ctx, command{kind: cmdStatus, reply: reply}); err != nil {
		return Status{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-s.done:
		return Status{}, ErrClosed
	}
}

func (s *Supervisor) send(ctx context.Context, c command) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.cmds <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// Run processes commands, session events and retries one at a time until ctx
// is cancelled. The session is stopped on the way out.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()

		case c := <-s.cmds:
			s.handleCommand(ctx, c)

		case ev, ok := <-s.sessionEvents:
			if !ok {
				s.sessionEvents = nil
				continue
			}
			s.handleSessionEvent(ctx, ev)

		case r := <-s.retries:
			s.handleRetry(ctx, r)
		}
	}
}

func (s *Supervisor) handleCommand(ctx context.Context, c command) {
	switch c.kind {
	case cmdStart:
		s.start(ctx)
	case cmdStop:
		s.stop()
	case cmdSetWords:
		set := s.words.Replace(c.words)
		s.emit(Event{Type: EventLog, Message: fmt.Sprintf("trigger words updated: %d words", set.Len())})
	case cmdStatus:
		c.reply <- Status{
			State:         s.state,
			Running:       s.running,
			Failures:      s.failures,
			LastUtterance: s.lastUtterance,
			Words:         s.words.Snapshot().Len(),
			Session:       s.sessionID,
		}
	}
}

func (s *Supervisor) start(ctx context.Context) {
	if s.state == StateListening || s.state == StateRestarting {
		s.log.Debug().Str("state", string(s.state)).Msg("start ignored, already listening")
		return
	}

	if s.session == nil {
		sess, err := s.factory(ctx)
		if err != nil {
			s.state = StateFatal
			s.emitError(CategoryInitialization, fmt.Errorf("failed to initialize speech recognition: %w", err))
			return
		}
		s.session = sess
		s.sessionEvents = sess.Events()
	}

	s.shouldRestart = true
	s.failures = 0
	s.epoch++
	s.sessionID = uuid.NewString()

	// previous stop not confirmed yet; the end event restarts it
	if s.running {
		if s.stopPending {
			s.stopPending = false
			s.emit(Event{Type: EventStopped})
		}
		s.state = StateListening
		s.emit(Event{Type: EventStarted})
		return
	}

	if err := s.startSession(ctx); err != nil {
		s.shouldRestart = false
		s.state = StateFatal
		s.emitError(categoryOf(err, CategoryStart), fmt.Errorf("failed to start recognition: %w", err))
		return
	}
	s.state = StateListening
	s.emit(Event{Type: EventStarted})
}

func (s *Supervisor) stop() {
	// cleared before the engine is told, so a racing end event cannot restart
	s.shouldRestart = false
	s.epoch++
	s.state = StateStopped

	if !s.running {
		s.emit(Event{Type: EventStopped})
		return
	}

	s.stopPending = true
	if err := s.session.Stop(); err != nil {
		s.stopPending = false
		s.running = false
		s.emitError(CategoryStop, fmt.Errorf("failed to stop recognition: %w", err))
		s.emit(Event{Type: EventStopped})
	}
}

func (s *Supervisor) handleSessionEvent(ctx context.Context, ev stt.Event) {
	switch ev.Kind {
	case stt.EventResult:
		if ev.Result.Partial {
			return
		}
		s.utterance(ctx, trigger.Utterance{Text: ev.Result.Text, IsFinal: true})

	case stt.EventError:
		if ev.Err == nil {
			return
		}
		s.emitError(ev.Err.Category, ev.Err)
		if ev.Err.IsTransient() && s.shouldRestart && s.state == StateListening {
			s.schedule(s.cfg.TransientRetryDelay, retryTransient)
		}

	case stt.EventEnd:
		s.running = false
		if s.stopPending {
			s.stopPending = false
			s.emit(Event{Type: EventStopped})
		}
		if s.shouldRestart {
			s.state = StateRestarting
			if d := s.cfg.RestartBackoff[0]; d > 0 {
				s.schedule(d, retryRestart)
				return
			}
			s.restart(ctx)
		}
	}
}

func (s *Supervisor) utterance(ctx context.Context, u trigger.Utterance) {
	s.lastUtterance = u.Text
	s.emit(Event{Type: EventResult, Text: u.Text})

	ctx, span := trace.StartSpan(ctx, "supervisor.match", attribute.Int("words", s.words.Snapshot().Len()))
	defer span.End()

	ev, ok := trigger.Match(u, s.words.Snapshot())
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("word", ev.Word))
	s.emit(Event{Type: EventTrigger, Word: ev.Word, Text: ev.UtteranceText})

	if s.alerts == nil {
		return
	}
	if err := s.alerts.Notify(ctx, ev); err != nil {
		trace.RecordError(span, err)
		s.emitError(CategoryAlert, fmt.Errorf("failed to raise alert: %w", err))
	}
}

// restart makes one attempt to start the session again and schedules the
// next one on failure
func (s *Supervisor) restart(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "supervisor.restart", attribute.Int("attempt", s.failures+1))
	defer span.End()

	err := s.startSession(ctx)
	if err == nil {
		s.failures = 0
		s.state = StateListening
		s.emit(Event{Type: EventLog, Message: "recognition restarted"})
		return
	}
	trace.RecordError(span, err)

	s.failures++
	s.log.Warn().Err(err).Int("failures", s.failures).Msg("restart failed")
	if s.failures >= len(s.cfg.RestartBackoff) {
		s.shouldRestart = false
		s.state = StateFatal
		s.emitError(CategoryRestartExhausted,
			fmt.Errorf("failed to restart after %d attempts: %w", s.failures, err))
		return
	}

	delay := s.cfg.RestartBackoff[s.failures]
	s.emit(Event{Type: EventLog, Message: fmt.Sprintf("restart failed, retrying in %s", delay)})
	s.schedule(delay, retryRestart)
}

func (s *Supervisor) handleRetry(ctx context.Context, r retry) {
	if r.epoch != s.epoch || !s.shouldRestart || s.running {
		s.log.Debug().Uint64("epoch", r.epoch).Msg("retry skipped")
		return
	}
	switch r.kind {
	case retryRestart:
		s.restart(ctx)
	case retryTransient:
		s.retryTransient(ctx)
	}
}

// retryTransient makes one extra start attempt while a backoff restart is
// pending. It leaves the failure count and the backoff schedule alone unless
// it succeeds.
func (s *Supervisor) retryTransient(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "supervisor.transient_retry")
	defer span.End()

	if err := s.startSession(ctx); err != nil {
		trace.RecordError(span, err)
		s.log.Warn().Err(err).Int("failures", s.failures).Msg("transient retry failed")
		s.emit(Event{Type: EventLog, Message: "retry after transient error failed"})
		return
	}
	// the pending backoff attempt is no longer needed
	s.epoch++
	s.failures = 0
	s.state = StateListening
	s.emit(Event{Type: EventLog, Message: "recognition restarted"})
}

func (s *Supervisor) schedule(d time.Duration, kind retryKind) {
	r := retry{kind: kind, epoch: s.epoch}
	s.cfg.AfterFunc(d, func() {
		select {
		case s.retries <- r:
		case <-s.done:
		}
	})
}

func (s *Supervisor) startSession(ctx context.Context) error {
	err := s.session.Start(ctx)
	if err != nil && !errors.Is(err, stt.ErrAlreadyStarted) {
		return err
	}
	s.running = true
	return nil
}

func (s *Supervisor) shutdown() {
	s.shouldRestart = false
	s.epoch++
	if s.session == nil {
		return
	}
	if s.running {
		if err := s.session.Stop(); err != nil {
			s.log.Warn().Err(err).Msg("stop on shutdown failed")
		}
	}
	if c, ok := s.session.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close session failed")
		}
	}
}

func (s *Supervisor) emitError(category stt.Category, err error) {
	s.log.Error().Err(err).Str("category", string(category)).Msg("recognition error")
	s.emit(Event{Type: EventError, Category: string(category), Error: err.Error()})
}

func (s *Supervisor) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.Session == "" {
		ev.Session = s.sessionID
	}
	s.events.Emit(ev)
}

func categoryOf(err error, fallback stt.Category) stt.Category {
	var ee *stt.EngineError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return fallback
}
