package grpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/emmett/hark/internal/server"
	"github.com/emmett/hark/internal/supervisor"
)

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
	f.mu.Lock()
	words := f.words
	f.mu.Unlock()
	return supervisor.Status{
		State:         supervisor.StateListening,
		Running:       true,
		Failures:      2,
		LastUtterance: "call the doctor",
		Words:         len(words),
	}, f.record("status")
}

func (f *fakeController) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func setup(t *testing.T) (*Client, *fakeController, *server.Broadcaster) {
	t.Helper()
	client, ctrl, b, _ := serve(t)
	return client, ctrl, b
}

func serve(t *testing.T) (*Client, *fakeController, *server.Broadcaster, *Server) {
	t.Helper()
	ctrl := &fakeController{}
	b := server.NewBroadcaster(zerolog.Nop())
	srv := NewServer(Config{}, ctrl, b, zerolog.Nop())

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn), ctrl, b, srv
}

func TestListenerUnaryCalls(t *testing.T) {
	client, ctrl, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, client.Start(ctx))
	require.NoError(t, client.SetTriggerWords(ctx, []string{"doctor", "nurse"}))
	require.NoError(t, client.Stop(ctx))

	st, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, supervisor.StateListening, st.State)
	assert.True(t, st.Running)
	assert.Equal(t, 2, st.Failures)
	assert.Equal(t, "call the doctor", st.LastUtterance)
	assert.Equal(t, 2, st.Words)

	assert.Equal(t, []string{"start", "words", "stop", "status"}, ctrl.snapshot())
}

func TestListenerMapsErrors(t *testing.T) {
	client, ctrl, _ := setup(t)
	ctrl.err = supervisor.ErrClosed
	err := client.Start(context.Background())
	assert.Equal(t, codes.Unavailable, status.Code(err))

	ctrl.err = errors.New("boom")
	err = client.Stop(context.Background())
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestListenerRejectsNonStringWords(t *testing.T) {
	client, _, _ := setup(t)
	err := client.cc.Invoke(context.Background(), methodSetTriggerWords, mustList(t, "ok", 3.0), new(emptypb.Empty))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestListenerStreamsEvents(t *testing.T) {
	client, _, b := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan supervisor.Event, 4)
	done := make(chan error, 1)
	go func() {
		done <- client.Events(ctx, func(ev supervisor.Event) error {
			got <- ev
			if ev.Type == supervisor.EventStopped {
				return errors.New("enough")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return b.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.Emit(supervisor.Event{Type: supervisor.EventTrigger, Word: "fire", Text: "there is a fire", Time: at})
	b.Emit(supervisor.Event{Type: supervisor.EventStopped, Time: at})

	ev := <-got
	assert.Equal(t, supervisor.EventTrigger, ev.Type)
	assert.Equal(t, "fire", ev.Word)
	assert.Equal(t, "there is a fire", ev.Text)
	assert.True(t, at.Equal(ev.Time))
	assert.Equal(t, supervisor.EventStopped, (<-got).Type)

	assert.EqualError(t, <-done, "enough")
	require.Eventually(t, func() bool { return b.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStopEndsOpenEventStreams(t *testing.T) {
	client, _, b, srv := serve(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- client.Events(ctx, func(supervisor.Event) error { return nil })
	}()
	require.Eventually(t, func() bool { return b.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		srv.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop blocked on an open event stream")
	}

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("event stream did not end")
	}
	assert.Equal(t, 0, b.Len())
}

func mustList(t *testing.T, values ...any) *structpb.ListValue {
	t.Helper()
	l, err := structpb.NewList(values)
	require.NoError(t, err)
	return l
}
