// Package server holds what the gRPC, HTTP and MCP front ends share: the
// control surface they drive, the inbound command protocol and the event
// broadcaster that fans supervisor events out to remote subscribers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/emmett/hark/internal/supervisor"
)

// Controller is the listening control surface. *supervisor.Supervisor
// satisfies it.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SetTriggerWords(ctx context.Context, words []string) error
	Status(ctx context.Context) (supervisor.Status, error)
}

// Words manages the persisted trigger words. *wordstore.Manager satisfies it.
type Words interface {
	Words() []string
	Save(ctx context.Context, words []string) ([]string, error)
	Delete(ctx context.Context, word string) ([]string, error)
}

// Command types of the inbound protocol
const (
	CommandStart           = "start"
	CommandStop            = "stop"
	CommandSetTriggerWords = "setTriggerWords"
)

var (
	// ErrUnknownCommand is returned for messages outside the inbound protocol
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidCommand is returned for a known command with bad arguments
	ErrInvalidCommand = errors.New("invalid command")
)

// Command is one inbound message
type Command struct {
	Type  string   `json:"type" validate:"required,oneof=start stop setTriggerWords"`
	Words []string `json:"words,omitempty" validate:"omitempty,dive,max=200"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a value against its validate tags
func Validate(v any) error {
	return validate.Struct(v)
}

// ParseCommand decodes a message. Accepted forms are the bare strings
// "start" and "stop" (JSON-quoted or not) and objects like
// {"type":"setTriggerWords","words":[...]}.
func ParseCommand(data []byte) (Command, error) {
	raw := strings.TrimSpace(string(data))
	var cmd Command
	switch {
	case strings.HasPrefix(raw, "{"):
		if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
			return Command{}, fmt.Errorf("invalid command: %w", err)
		}
	case strings.HasPrefix(raw, `"`):
		if err := json.Unmarshal([]byte(raw), &cmd.Type); err != nil {
			return Command{}, fmt.Errorf("invalid command: %w", err)
		}
	default:
		cmd.Type = raw
	}

	if err := Validate(cmd); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].StructField() != "Type" {
			return Command{}, fmt.Errorf("%w %q: %v", ErrInvalidCommand, cmd.Type, err)
		}
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	if cmd.Type == CommandSetTriggerWords && cmd.Words == nil {
		cmd.Words = []string{}
	}
	return cmd, nil
}

// Apply runs the command against ctrl
func (c Command) Apply(ctx context.Context, ctrl Controller) error {
	switch c.Type {
	case CommandStart:
		return ctrl.Start(ctx)
	case CommandStop:
		return ctrl.Stop(ctx)
	case CommandSetTriggerWords:
		return ctrl.SetTriggerWords(ctx, c.Words)
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, c.Type)
}

// Broadcaster is an EventSink that copies every event to its subscribers.
// A subscriber that falls behind loses events rather than stalling the
// supervisor.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]chan supervisor.Event
	log  zerolog.Logger
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]chan supervisor.Event),
		log:  log.With().Str("component", "broadcaster").Logger(),
	}
}

// Subscribe registers a subscriber with room for buffer pending events.
// cancel unregisters it and closes the channel.
func (b *Broadcaster) Subscribe(buffer int) (id string, events <-chan supervisor.Event, cancel func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan supervisor.Event, buffer)
	id = uuid.NewString()

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()
	b.log.Debug().Str("subscriber", id).Msg("subscribed")

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
			b.log.Debug().Str("subscriber", id).Msg("unsubscribed")
		})
	}
	return id, ch, cancel
}

// Emit implements supervisor.EventSink
func (b *Broadcaster) Emit(ev supervisor.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn().Str("subscriber", id).Str("event", string(ev.Type)).Msg("subscriber behind, event dropped")
		}
	}
}

// Len returns the number of subscribers
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Sinks fans events out to several sinks in order
type Sinks []supervisor.EventSink

// Emit implements supervisor.EventSink
func (s Sinks) Emit(ev supervisor.Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Emit(ev)
		}
	}
}
