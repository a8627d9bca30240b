package alert

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmett/hark/internal/trigger"
)

type calls struct {
	mu  sync.Mutex
	log []string
}

func (c *calls) add(s string) {
	c.mu.Lock()
	c.log = append(c.log, s)
	c.mu.Unlock()
}

func (c *calls) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

func testSink(cfg Config, c *calls, notifyErr error) *DesktopSink {
	s := newDesktopSink(cfg, zerolog.Nop())
	s.notify = func(title, message string) error {
		c.add("notify " + title + ": " + message)
		return notifyErr
	}
	s.beep = func(ms int) error {
		c.add("beep " + time.Duration(ms*int(time.Millisecond)).String())
		return nil
	}
	s.sleep = func(d time.Duration) { c.add("pause " + d.String()) }
	go s.run()
	return s
}

func TestDesktopSinkPlaysPattern(t *testing.T) {
	c := &calls{}
	s := testSink(DefaultConfig(), c, nil)

	require.NoError(t, s.Notify(context.Background(), trigger.Event{Word: "doctor", UtteranceText: "call the doctor"}))
	require.NoError(t, s.Close())

	assert.Equal(t, []string{
		"notify Speech Alert: call the doctor",
		"beep 200ms",
		"pause 100ms",
		"beep 200ms",
	}, c.all())
}

func TestDesktopSinkBeepOnly(t *testing.T) {
	c := &calls{}
	s := testSink(Config{Beep: true, Pattern: []int{50}}, c, nil)

	require.NoError(t, s.Notify(context.Background(), trigger.Event{Word: "fire"}))
	require.NoError(t, s.Close())
	assert.Equal(t, []string{"beep 50ms"}, c.all())
}

func TestDesktopSinkNotifyFailureStillBeeps(t *testing.T) {
	c := &calls{}
	s := testSink(DefaultConfig(), c, errors.New("no dbus"))

	require.NoError(t, s.Notify(context.Background(), trigger.Event{Word: "fire", UtteranceText: "fire"}))
	require.NoError(t, s.Close())
	assert.Len(t, c.all(), 4)
}

func TestDesktopSinkClosed(t *testing.T) {
	s := testSink(DefaultConfig(), &calls{}, nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Notify(context.Background(), trigger.Event{}), ErrClosed)
}

func TestDesktopSinkBusy(t *testing.T) {
	// no worker: the queue fills up
	s := newDesktopSink(DefaultConfig(), zerolog.Nop())
	for i := 0; i < cap(s.queue); i++ {
		require.NoError(t, s.Notify(context.Background(), trigger.Event{}))
	}
	assert.ErrorIs(t, s.Notify(context.Background(), trigger.Event{}), ErrBusy)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewLogSink(zerolog.New(&buf)).Notify(context.Background(), trigger.Event{Word: "fire", UtteranceText: "fire!"}))
	assert.Contains(t, buf.String(), `"word":"fire"`)
	assert.Contains(t, buf.String(), "trigger word heard")
}

type sinkFunc func(context.Context, trigger.Event) error

func (f sinkFunc) Notify(ctx context.Context, ev trigger.Event) error { return f(ctx, ev) }

func TestMultiJoinsErrors(t *testing.T) {
	e1, e2 := errors.New("one"), errors.New("two")
	n := 0
	m := Multi{
		sinkFunc(func(context.Context, trigger.Event) error { n++; return e1 }),
		sinkFunc(func(context.Context, trigger.Event) error { n++; return nil }),
		sinkFunc(func(context.Context, trigger.Event) error { n++; return e2 }),
	}
	err := m.Notify(context.Background(), trigger.Event{Word: "x"})
	assert.Equal(t, 3, n)
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e2)
	assert.NoError(t, Multi{}.Notify(context.Background(), trigger.Event{}))
}
