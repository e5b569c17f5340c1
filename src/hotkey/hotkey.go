// Package hotkey registers global key combinations and emits a Trigger each
// time one is pressed.
package hotkey

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"swiftlingo/src/logutil"
)

var (
	// ErrBindingConflict means the combination is already owned, either by
	// another listener in this process or by another client of the platform.
	ErrBindingConflict = errors.New("key combination already bound")
	// ErrPlatformUnsupported means no global hotkey facility is available.
	ErrPlatformUnsupported = errors.New("global hotkeys not supported on this platform")
	// ErrInvalidCombination is returned by ParseCombination.
	ErrInvalidCombination = errors.New("invalid key combination")
	// ErrClosed is returned by Register after Close.
	ErrClosed = errors.New("hotkey listener closed")
)

// Action names what a trigger asks the coordinator to do.
type Action string

const (
	ActionTranslate        Action = "translate"
	ActionTranslateReplace Action = "translate-replace"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionTranslate, ActionTranslateReplace:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Modifier is a bit set of modifier keys.
type Modifier uint8

const (
	ModCtrl Modifier = 1 << iota
	ModAlt
	ModShift
	ModSuper
)

// Combination is a parsed hotkey such as Ctrl+Alt+T.
type Combination struct {
	Modifiers Modifier
	Key       string // normalised key name, e.g. "t", "f13", "space"
}

// IsZero reports whether c is unset. IPC-delivered triggers carry none.
func (c Combination) IsZero() bool { return c.Key == "" && c.Modifiers == 0 }

// String renders the canonical form ("Ctrl+Alt+T").
func (c Combination) String() string {
	if c.IsZero() {
		return ""
	}
	var parts []string
	for _, m := range []struct {
		mod  Modifier
		name string
	}{{ModCtrl, "Ctrl"}, {ModAlt, "Alt"}, {ModShift, "Shift"}, {ModSuper, "Super"}} {
		if c.Modifiers&m.mod != 0 {
			parts = append(parts, m.name)
		}
	}
	key := c.Key
	if len(key) == 1 {
		key = strings.ToUpper(key)
	} else {
		key = strings.ToUpper(key[:1]) + key[1:]
	}
	return strings.Join(append(parts, key), "+")
}

// ParseCombination parses strings like "Ctrl+Alt+T" or "super+shift+f13".
// Exactly one non-modifier key is required and it must be a known key.
func ParseCombination(s string) (Combination, error) {
	var c Combination
	for _, part := range parseHotkey(s) {
		switch part {
		case "ctrl":
			c.Modifiers |= ModCtrl
		case "alt":
			c.Modifiers |= ModAlt
		case "shift":
			c.Modifiers |= ModShift
		case "cmd":
			c.Modifiers |= ModSuper
		case "":
			return Combination{}, fmt.Errorf("%w: %q has an empty key", ErrInvalidCombination, s)
		default:
			if c.Key != "" {
				return Combination{}, fmt.Errorf("%w: %q names more than one key", ErrInvalidCombination, s)
			}
			if _, ok := keysyms[canonicalKey(part)]; !ok {
				return Combination{}, fmt.Errorf("%w: unknown key %q", ErrInvalidCombination, part)
			}
			c.Key = canonicalKey(part)
		}
	}
	if c.Key == "" {
		return Combination{}, fmt.Errorf("%w: %q has no key", ErrInvalidCombination, s)
	}
	return c, nil
}

// parseHotkey converts a hotkey string like "Ctrl+Alt+q" to normalized key names
func parseHotkey(hotkeyConfig string) []string {
	parts := strings.Split(strings.ToLower(hotkeyConfig), "+")
	var keys []string

	for _, part := range parts {
		part = strings.TrimSpace(part)
		switch part {
		case "ctrl", "control":
			keys = append(keys, "ctrl")
		case "alt":
			keys = append(keys, "alt")
		case "shift":
			keys = append(keys, "shift")
		case "win", "cmd", "super", "meta":
			keys = append(keys, "cmd")
		default:
			keys = append(keys, part)
		}
	}

	return keys
}

func canonicalKey(name string) string {
	switch name {
	case "return":
		return "enter"
	case "escape":
		return "esc"
	case "del":
		return "delete"
	case "ins":
		return "insert"
	case "pgup":
		return "pageup"
	case "pgdn":
		return "pagedown"
	}
	return name
}

// Trigger is emitted when a registered combination fires.
type Trigger struct {
	Action Action
	Combo  Combination
	At     time.Time
}

// Listener is implemented by every hotkey backend.
type Listener interface {
	// Register binds combo to action. The binding is held until the
	// subscription is released or the listener is closed.
	Register(combo Combination, action Action) (*Subscription, error)
	// Triggers delivers activations; it is closed by Close.
	Triggers() <-chan Trigger
	// Close releases every binding and stops the backend.
	Close() error
}

// Subscription is one registered binding.
type Subscription struct {
	Action Action
	Combo  Combination

	once    sync.Once
	release func() error
	err     error
}

func newSubscription(combo Combination, action Action, release func() error) *Subscription {
	return &Subscription{Action: action, Combo: combo, release: release}
}

// Unregister releases the binding. Later calls are no-ops.
func (s *Subscription) Unregister() error {
	s.once.Do(func() {
		if s.release != nil {
			s.err = s.release()
		}
	})
	return s.err
}

// DefaultDebounce drops repeats of the same action inside this window.
const DefaultDebounce = time.Second

// emitter is the delivery half shared by the backends: debounce, a buffered
// channel and a closed flag.
type emitter struct {
	mu       sync.Mutex
	out      chan Trigger
	closed   bool
	debounce time.Duration
	last     map[Action]time.Time
	now      func() time.Time
}

func newEmitter(debounce time.Duration) *emitter {
	return &emitter{
		out:      make(chan Trigger, 8),
		debounce: debounce,
		last:     make(map[Action]time.Time),
		now:      time.Now,
	}
}

// emit delivers a trigger unless it repeats the same action inside the
// debounce window. It never blocks.
func (e *emitter) emit(action Action, combo Combination) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	at := e.now()
	if prev, ok := e.last[action]; ok && e.debounce > 0 && at.Sub(prev) < e.debounce {
		logutil.L().Debug("hotkey trigger debounced", logutil.String("action", string(action)))
		return false
	}
	e.last[action] = at
	select {
	case e.out <- Trigger{Action: action, Combo: combo, At: at}:
		return true
	default:
		logutil.L().Warn("hotkey trigger dropped, consumer not keeping up", logutil.String("action", string(action)))
		return false
	}
}

func (e *emitter) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.out)
	}
}

func (e *emitter) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// bindings is the process-wide table of owned combinations.
var bindings = struct {
	mu    sync.Mutex
	owner map[Combination]any
}{owner: make(map[Combination]any)}

func claim(combo Combination, owner any) error {
	if combo.IsZero() {
		return nil
	}
	bindings.mu.Lock()
	defer bindings.mu.Unlock()
	if _, taken := bindings.owner[combo]; taken {
		return fmt.Errorf("%w: %s", ErrBindingConflict, combo)
	}
	bindings.owner[combo] = owner
	return nil
}

func release(combo Combination, owner any) {
	bindings.mu.Lock()
	defer bindings.mu.Unlock()
	if bindings.owner[combo] == owner {
		delete(bindings.owner, combo)
	}
}

// Backend names accepted by New.
const (
	BackendX11    = "x11"
	BackendPortal = "portal"
	BackendHook   = "hook"
	BackendIPC    = "ipc"
)

// New creates the listener for backend.
func New(backend string, debounce time.Duration) (Listener, error) {
	switch backend {
	case BackendX11:
		return NewX11Grab("", debounce)
	case BackendPortal:
		return NewPortal(debounce)
	case BackendHook:
		return NewHook(debounce)
	case BackendIPC:
		return NewIPC(debounce), nil
	}
	return nil, fmt.Errorf("%w: unknown hotkey backend %q", ErrPlatformUnsupported, backend)
}
