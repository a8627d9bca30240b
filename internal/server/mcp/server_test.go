package mcp

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmett/hark/internal/server"
	"github.com/emmett/hark/internal/supervisor"
	"github.com/emmett/hark/internal/wordstore"
)

type fakeController struct {
	mu      sync.Mutex
	state   supervisor.State
	failure error
}

func (f *fakeController) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		return f.failure
	}
	f.state = supervisor.StateListening
	return nil
}

func (f *fakeController) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = supervisor.StateStopped
	return nil
}

func (f *fakeController) SetTriggerWords(context.Context, []string) error { return nil }

func (f *fakeController) Status(context.Context) (supervisor.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return supervisor.Status{State: f.state, Running: f.state == supervisor.StateListening}, nil
}

type fakeWords struct {
	mu    sync.Mutex
	words []string
}

func (f *fakeWords) Words() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.words
}

func (f *fakeWords) Save(_ context.Context, words []string) ([]string, error) {
	if len(words) == 0 {
		return nil, wordstore.ErrEmptyInput
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.words = append([]string(nil), words...)
	sort.Strings(f.words)
	return f.words, nil
}

func (f *fakeWords) Delete(_ context.Context, word string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var left []string
	for _, w := range f.words {
		if w != word {
			left = append(left, w)
		}
	}
	f.words = left
	return left, nil
}

func connect(t *testing.T, ctrl *fakeController, words server.Words) *sdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	srv := NewServer(Config{ServerVersion: "test"}, ctrl, words, zerolog.Nop())

	serverT, clientT := sdk.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, serverT)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func call(t *testing.T, cs *sdk.ClientSession, name string, args map[string]any) *sdk.CallToolResult {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	res, err := cs.CallTool(context.Background(), &sdk.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	return res
}

func structured(t *testing.T, res *sdk.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, res.IsError, "tool returned an error: %v", res.Content)
	m, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok, "unexpected structured content %T", res.StructuredContent)
	return m
}

func TestListsTools(t *testing.T) {
	cs := connect(t, &fakeController{}, &fakeWords{})
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"list_trigger_words", "set_trigger_words", "delete_trigger_word",
		"start_listening", "stop_listening", "listening_status",
	}, names)
}

func TestWordTools(t *testing.T) {
	words := &fakeWords{words: []string{"doctor"}}
	cs := connect(t, &fakeController{}, words)

	out := structured(t, call(t, cs, "list_trigger_words", nil))
	assert.Equal(t, []any{"doctor"}, out["words"])

	out = structured(t, call(t, cs, "set_trigger_words", map[string]any{"words": []string{"nurse"}, "input": "help, fire"}))
	assert.Equal(t, []any{"fire", "help", "nurse"}, out["words"])

	out = structured(t, call(t, cs, "delete_trigger_word", map[string]any{"word": "help"}))
	assert.Equal(t, []any{"fire", "nurse"}, out["words"])

	res := call(t, cs, "set_trigger_words", map[string]any{"input": " , "})
	assert.True(t, res.IsError)
}

func TestListeningTools(t *testing.T) {
	ctrl := &fakeController{state: supervisor.StateIdle}
	cs := connect(t, ctrl, &fakeWords{})

	out := structured(t, call(t, cs, "start_listening", nil))
	assert.Equal(t, "listening", out["state"])
	assert.Equal(t, true, out["running"])

	out = structured(t, call(t, cs, "listening_status", nil))
	assert.Equal(t, "listening", out["state"])

	out = structured(t, call(t, cs, "stop_listening", nil))
	assert.Equal(t, "stopped", out["state"])

	ctrl.mu.Lock()
	ctrl.failure = errors.New("microphone busy")
	ctrl.mu.Unlock()
	res := call(t, cs, "start_listening", nil)
	assert.True(t, res.IsError)
}

func TestWordToolsOmittedWithoutStore(t *testing.T) {
	cs := connect(t, &fakeController{}, nil)
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, res.Tools, 3)
}
