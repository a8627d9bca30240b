package server

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmett/hark/internal/supervisor"
)

// fakeController records the calls it receives
type fakeController struct {
	mu    sync.Mutex
	calls []string
	words []string
	err   error
}

func (f *fakeController) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeController) Start(context.Context) error { return f.record("start") }
func (f *fakeController) Stop(context.Context) error  { return f.record("stop") }

func (f *fakeController) SetTriggerWords(_ context.Context, words []string) error {
	f.mu.Lock()
	f.words = words
	f.mu.Unlock()
	return f.record("words")
}

func (f *fakeController) Status(context.Context) (supervisor.Status, error) {
	return supervisor.Status{State: supervisor.StateIdle}, f.record("status")
}

func TestParseCommand(t *testing.T) {
	cases := map[string]Command{
		`start`:   {Type: CommandStart},
		`"stop"`:  {Type: CommandStop},
		` start `: {Type: CommandStart},
		`{"type":"setTriggerWords","words":["doctor","nurse"]}`: {Type: CommandSetTriggerWords, Words: []string{"doctor", "nurse"}},
		`{"type":"setTriggerWords"}`:                            {Type: CommandSetTriggerWords, Words: []string{}},
	}
	for in, want := range cases {
		got, err := ParseCommand([]byte(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseCommandRejects(t *testing.T) {
	for _, in := range []string{``, `restart`, `{"type":"explode"}`, `{"type":`, `"`} {
		_, err := ParseCommand([]byte(in))
		assert.Error(t, err, in)
	}
	_, err := ParseCommand([]byte("dance"))
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestParseCommandRejectsLongWords(t *testing.T) {
	long := strings.Repeat("a", 201)
	_, err := ParseCommand([]byte(`{"type":"setTriggerWords","words":["doctor","` + long + `"]}`))
	assert.ErrorIs(t, err, ErrInvalidCommand)
	assert.NotErrorIs(t, err, ErrUnknownCommand)
	assert.ErrorContains(t, err, "Words[1]")
}

func TestCommandApply(t *testing.T) {
	ctrl := &fakeController{}
	ctx := context.Background()
	require.NoError(t, Command{Type: CommandStart}.Apply(ctx, ctrl))
	require.NoError(t, Command{Type: CommandSetTriggerWords, Words: []string{"fire"}}.Apply(ctx, ctrl))
	require.NoError(t, Command{Type: CommandStop}.Apply(ctx, ctrl))
	assert.Equal(t, []string{"start", "words", "stop"}, ctrl.calls)
	assert.Equal(t, []string{"fire"}, ctrl.words)

	assert.ErrorIs(t, Command{Type: "nope"}.Apply(ctx, ctrl), ErrUnknownCommand)

	ctrl.err = errors.New("closed")
	assert.EqualError(t, Command{Type: CommandStart}.Apply(ctx, ctrl), "closed")
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster(zerolog.Nop())
	_, first, cancelFirst := b.Subscribe(4)
	_, second, cancelSecond := b.Subscribe(1)
	assert.Equal(t, 2, b.Len())

	b.Emit(supervisor.Event{Type: supervisor.EventStarted})
	b.Emit(supervisor.Event{Type: supervisor.EventTrigger, Word: "help"})

	assert.Equal(t, supervisor.EventStarted, (<-first).Type)
	assert.Equal(t, "help", (<-first).Word)
	// the slow subscriber kept the first event and lost the second
	assert.Equal(t, supervisor.EventStarted, (<-second).Type)
	assert.Empty(t, second)

	cancelFirst()
	cancelFirst()
	_, open := <-first
	assert.False(t, open)
	assert.Equal(t, 1, b.Len())

	cancelSecond()
	b.Emit(supervisor.Event{Type: supervisor.EventStopped})
	assert.Equal(t, 0, b.Len())
}

func TestSinks(t *testing.T) {
	var got []supervisor.EventType
	sink := supervisor.EventSinkFunc(func(ev supervisor.Event) { got = append(got, ev.Type) })
	Sinks{sink, nil, sink}.Emit(supervisor.Event{Type: supervisor.EventLog})
	assert.Equal(t, []supervisor.EventType{supervisor.EventLog, supervisor.EventLog}, got)
}
