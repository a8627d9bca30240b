package supervisor

import (
	"context"
	"time"

	"github.com/emmett/hark/internal/stt"
	"github.com/emmett/hark/internal/trigger"
)

// State of the recognition supervisor
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateRestarting State = "restarting"
	StateStopped    State = "stopped"
	StateFatal      State = "fatal"
)

// EventType names an outbound event
type EventType string

const (
	EventStarted EventType = "started"
	EventStopped EventType = "stopped"
	EventResult  EventType = "result"
	EventTrigger EventType = "trigger"
	EventError   EventType = "error"
	EventLog     EventType = "log"
)

// Error categories raised by the supervisor itself, next to the engine's
const (
	CategoryInitialization   stt.Category = "initialization"
	CategoryRestartExhausted stt.Category = "restart-exhausted"
	CategoryStart            stt.Category = "start"
	CategoryStop             stt.Category = "stop"
	CategoryAlert            stt.Category = "alert"
)

// Event is an outbound observability event
type Event struct {
	Type     EventType `json:"type"`
	Text     string    `json:"text,omitempty"`
	Word     string    `json:"word,omitempty"`
	Error    string    `json:"error,omitempty"`
	Category string    `json:"category,omitempty"`
	Message  string    `json:"message,omitempty"`
	Session  string    `json:"session,omitempty"`
	Time     time.Time `json:"time"`
}

// Session is the live handle to a recognition engine. It is started again
// after every end; Events carries results, errors and ends of all runs.
type Session interface {
	Start(ctx context.Context) error
	Stop() error
	Events() <-chan stt.Event
}

// SessionFactory creates the session on first start
type SessionFactory func(ctx context.Context) (Session, error)

// EventSink receives outbound events. Emit is called from the supervisor
// goroutine and must not block for long.
type EventSink interface {
	Emit(Event)
}

// AlertSink turns trigger events into a user-visible alert
type AlertSink interface {
	Notify(ctx context.Context, ev trigger.Event) error
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(ev Event) { f(ev) }

// Status is a point-in-time view of the supervisor
type Status struct {
	State         State  `json:"state"`
	Running       bool   `json:"running"`
	Failures      int    `json:"failures"`
	LastUtterance string `json:"last_utterance,omitempty"`
	Words         int    `json:"words"`
	Session       string `json:"session,omitempty"`
}
