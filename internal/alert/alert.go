// Package alert raises local alerts when a trigger word is heard
package alert

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"

	"github.com/emmett/hark/internal/trigger"
)

var (
	// ErrBusy is returned when alerts arrive faster than they can be shown
	ErrBusy = errors.New("alert queue full")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("alert sink closed")
)

// DefaultPattern is beep 200ms, pause 100ms, beep 200ms
var DefaultPattern = []int{200, 100, 200}

// Config configures a DesktopSink
type Config struct {
	Title   string
	Desktop bool
	Beep    bool
	// Pattern alternates beep and pause durations in milliseconds
	Pattern []int
}

// DefaultConfig shows a notification and plays the default pattern
func DefaultConfig() Config {
	return Config{
		Title:   "Speech Alert",
		Desktop: true,
		Beep:    true,
		Pattern: DefaultPattern,
	}
}

// DesktopSink shows a desktop notification and plays a beep pattern for
// every trigger. Alerts are played one after another on a worker goroutine.
type DesktopSink struct {
	cfg   Config
	log   zerolog.Logger
	queue chan trigger.Event

	notify func(title, message string) error
	beep   func(ms int) error
	sleep  func(time.Duration)

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewDesktopSink starts the alert worker
func NewDesktopSink(cfg Config, log zerolog.Logger) *DesktopSink {
	s := newDesktopSink(cfg, log)
	s.notify = func(title, message string) error { return beeep.Notify(title, message, "") }
	s.beep = func(ms int) error { return beeep.Beep(beeep.DefaultFreq, ms) }
	s.sleep = time.Sleep
	go s.run()
	return s
}

func newDesktopSink(cfg Config, log zerolog.Logger) *DesktopSink {
	if cfg.Title == "" {
		cfg.Title = DefaultConfig().Title
	}
	if len(cfg.Pattern) == 0 {
		cfg.Pattern = DefaultPattern
	}
	return &DesktopSink{
		cfg:   cfg,
		log:   log.With().Str("component", "alert").Logger(),
		queue: make(chan trigger.Event, 8),
		done:  make(chan struct{}),
	}
}

// Notify queues an alert for ev
func (s *DesktopSink) Notify(_ context.Context, ev trigger.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.queue <- ev:
		return nil
	default:
		return ErrBusy
	}
}

// Close drains queued alerts and stops the worker
func (s *DesktopSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	return nil
}

func (s *DesktopSink) run() {
	defer close(s.done)
	for ev := range s.queue {
		if err := s.play(ev); err != nil {
			s.log.Warn().Err(err).Str("word", ev.Word).Msg("alert failed")
		}
	}
}

func (s *DesktopSink) play(ev trigger.Event) error {
	var errs []error
	if s.cfg.Desktop {
		if err := s.notify(s.cfg.Title, ev.UtteranceText); err != nil {
			errs = append(errs, err)
		}
	}
	if s.cfg.Beep {
		for i, ms := range s.cfg.Pattern {
			if i%2 == 1 {
				s.sleep(time.Duration(ms) * time.Millisecond)
				continue
			}
			if err := s.beep(ms); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}

// LogSink records every trigger in the log
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a LogSink
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "alert").Logger()}
}

// Notify logs ev
func (l *LogSink) Notify(_ context.Context, ev trigger.Event) error {
	l.log.Info().Str("word", ev.Word).Str("text", ev.UtteranceText).Msg("trigger word heard")
	return nil
}

// Sink is what the supervisor calls on a trigger
type Sink interface {
	Notify(ctx context.Context, ev trigger.Event) error
}

// Multi notifies every sink and joins their errors
type Multi []Sink

// Notify calls every sink in order
func (m Multi) Notify(ctx context.Context, ev trigger.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
