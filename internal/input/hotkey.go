// Package input binds a global hotkey to the listening toggle
package input

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.design/x/hotkey"
)

// Binding is a parsed key combination
type Binding struct {
	Mods []hotkey.Modifier
	Key  hotkey.Key
	Spec string
}

// Toggler flips listening on and off. It is satisfied by an adapter over the
// supervisor: pressing the key starts listening when idle and stops it when
// listening.
type Toggler interface {
	Toggle(ctx context.Context) error
}

// ToggleFunc adapts a function to Toggler
type ToggleFunc func(ctx context.Context) error

// Toggle calls f
func (f ToggleFunc) Toggle(ctx context.Context) error { return f(ctx) }

// Hotkey listens for one global key combination
type Hotkey struct {
	binding Binding
	target  Toggler
	log     zerolog.Logger

	mu   sync.Mutex
	hk   *hotkey.Hotkey
	stop context.CancelFunc
	done chan struct{}
}

// NewHotkey parses spec and prepares a listener for it
func NewHotkey(spec string, target Toggler, log zerolog.Logger) (*Hotkey, error) {
	b, err := ParseBinding(spec)
	if err != nil {
		return nil, err
	}
	return &Hotkey{
		binding: b,
		target:  target,
		log:     log.With().Str("component", "hotkey").Str("keys", b.Spec).Logger(),
	}, nil
}

// Start registers the hotkey and toggles the target on every key press until
// ctx is cancelled or Stop is called.
func (h *Hotkey) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hk != nil {
		return errors.New("hotkey already registered")
	}

	hk := hotkey.New(h.binding.Mods, h.binding.Key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("failed to register hotkey %s: %w", h.binding.Spec, err)
	}
	h.hk = hk

	ctx, h.stop = context.WithCancel(ctx)
	h.done = make(chan struct{})
	go h.loop(ctx, hk.Keydown(), h.done)

	h.log.Info().Msg("hotkey registered")
	return nil
}

func (h *Hotkey) loop(ctx context.Context, keydown <-chan hotkey.Event, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-keydown:
			if !ok {
				return
			}
			if err := h.target.Toggle(ctx); err != nil {
				h.log.Warn().Err(err).Msg("toggle failed")
			}
		}
	}
}

// Stop unregisters the hotkey
func (h *Hotkey) Stop() {
	h.mu.Lock()
	hk, stop, done := h.hk, h.stop, h.done
	h.hk, h.stop, h.done = nil, nil, nil
	h.mu.Unlock()

	if stop != nil {
		stop()
	}
	if hk != nil {
		if err := hk.Unregister(); err != nil {
			h.log.Debug().Err(err).Msg("unregister hotkey")
		}
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

var namedKeys = map[string]hotkey.Key{
	"space": hotkey.KeySpace, "return": hotkey.KeyReturn, "enter": hotkey.KeyReturn,
	"tab": hotkey.KeyTab, "escape": hotkey.KeyEscape, "esc": hotkey.KeyEscape,
	"a": hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,
	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,
	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3, "f4": hotkey.KeyF4,
	"f5": hotkey.KeyF5, "f6": hotkey.KeyF6, "f7": hotkey.KeyF7, "f8": hotkey.KeyF8,
	"f9": hotkey.KeyF9, "f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
}

// ParseBinding parses a combination like "ctrl+shift+h". Exactly one
// non-modifier key is required.
func ParseBinding(spec string) (Binding, error) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	if spec == "" {
		return Binding{}, errors.New("empty hotkey")
	}

	b := Binding{Spec: spec}
	found := false
	for _, part := range strings.Split(spec, "+") {
		part = strings.TrimSpace(part)
		if mod, ok := modifier(part); ok {
			b.Mods = append(b.Mods, mod)
			continue
		}
		key, ok := namedKeys[part]
		if !ok {
			return Binding{}, fmt.Errorf("unknown key %q in %q", part, spec)
		}
		if found {
			return Binding{}, fmt.Errorf("more than one key in %q", spec)
		}
		b.Key, found = key, true
	}
	if !found {
		return Binding{}, fmt.Errorf("no key in %q", spec)
	}
	return b, nil
}

func modifier(name string) (hotkey.Modifier, bool) {
	switch name {
	case "ctrl", "control":
		return hotkey.ModCtrl, true
	case "shift":
		return hotkey.ModShift, true
	case "alt", "option":
		return modAlt(), true
	case "cmd", "command", "super", "win":
		return modSuper(), true
	}
	return 0, false
}
