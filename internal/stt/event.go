package stt

import (
	"errors"
	"fmt"
)

// ErrAlreadyStarted is returned by Start on a session that is still running
var ErrAlreadyStarted = errors.New("recognition already started")

// Category classifies recognition engine errors
type Category string

const (
	CategoryNetwork              Category = "network"
	CategoryAborted              Category = "aborted"
	CategoryNoSpeech             Category = "no-speech"
	CategoryAudioCapture         Category = "audio-capture"
	CategoryNotAllowed           Category = "not-allowed"
	CategoryServiceNotAllowed    Category = "service-not-allowed"
	CategoryLanguageNotSupported Category = "language-not-supported"
)

// Transient reports whether errors of this category are retried after a short delay
func (c Category) Transient() bool {
	return c == CategoryNetwork || c == CategoryAborted
}

// EngineError is an error raised by a running recognition session
type EngineError struct {
	Category Category
	Detail   string
	Err      error
}

func (e *EngineError) Error() string {
	switch {
	case e.Err != nil && e.Detail != "":
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Detail, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Category, e.Detail)
	}
	return string(e.Category)
}

func (e *EngineError) Unwrap() error { return e.Err }

// IsTransient reports whether the error should be retried transparently
func (e *EngineError) IsTransient() bool { return e.Category.Transient() }

// EventKind identifies what a session Event carries
type EventKind string

const (
	EventResult EventKind = "result"
	EventError  EventKind = "error"
	EventEnd    EventKind = "end"
)

// Event is delivered by a running session: a recognized segment, an engine
// error, or the end of the session. End is always the last event of a run.
type Event struct {
	Kind   EventKind
	Result Result
	Err    *EngineError
}
