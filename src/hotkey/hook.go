package hotkey

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	gohook "github.com/robotn/gohook"

	"swiftlingo/src/logutil"
)

// Hook listens to the global input hook. It cannot prevent other programs
// from seeing the keys, so conflicts are only detected within this process.
type Hook struct {
	*emitter

	mu      sync.Mutex
	combos  map[Combination]*comboState
	started bool
	stop    chan struct{}
}

type keyState struct {
	name     string
	rawcodes []uint16
	pressed  bool
}

type comboState struct {
	action Action
	keys   []keyState
}

func NewHook(debounce time.Duration) (*Hook, error) {
	if rawcodesFor("a") == nil {
		return nil, fmt.Errorf("%w: no key table for %s", ErrPlatformUnsupported, runtime.GOOS)
	}
	return &Hook{emitter: newEmitter(debounce), combos: make(map[Combination]*comboState), stop: make(chan struct{})}, nil
}

func (h *Hook) Triggers() <-chan Trigger { return h.out }

func (h *Hook) Register(combo Combination, action Action) (*Subscription, error) {
	if h.isClosed() {
		return nil, ErrClosed
	}
	state, err := newComboState(combo, action)
	if err != nil {
		return nil, err
	}
	if err := claim(combo, h); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.combos[combo] = state
	start := !h.started
	h.started = true
	h.mu.Unlock()

	if start {
		go h.loop()
	}
	logutil.L().Info("hotkey registered", logutil.String("backend", BackendHook),
		logutil.String("combo", combo.String()), logutil.String("action", string(action)))

	return newSubscription(combo, action, func() error {
		h.mu.Lock()
		delete(h.combos, combo)
		h.mu.Unlock()
		release(combo, h)
		return nil
	}), nil
}

func newComboState(combo Combination, action Action) (*comboState, error) {
	names := make([]string, 0, 5)
	for _, m := range []struct {
		mod  Modifier
		name string
	}{{ModCtrl, "ctrl"}, {ModAlt, "alt"}, {ModShift, "shift"}, {ModSuper, "cmd"}} {
		if combo.Modifiers&m.mod != 0 {
			names = append(names, m.name)
		}
	}
	names = append(names, combo.Key)

	state := &comboState{action: action}
	for _, name := range names {
		codes := rawcodesFor(name)
		if len(codes) == 0 {
			return nil, fmt.Errorf("%w: cannot map key %q to rawcodes", ErrInvalidCombination, name)
		}
		state.keys = append(state.keys, keyState{name: name, rawcodes: codes})
	}
	return state, nil
}

func (h *Hook) loop() {
	defer func() {
		if r := recover(); r != nil {
			logutil.L().Error("PANIC in hotkey goroutine", logutil.Any("panic", r))
		}
	}()

	evChan := gohook.Start()
	if evChan == nil {
		logutil.L().Error("gohook.Start() returned nil channel")
		return
	}
	defer gohook.End()

	for {
		select {
		case <-h.stop:
			return
		case ev, ok := <-evChan:
			if !ok {
				logutil.L().Info("hook event channel closed")
				return
			}
			switch ev.Kind {
			case gohook.KeyDown, gohook.KeyHold:
				h.keyDown(ev.Rawcode)
			case gohook.KeyUp:
				h.keyUp(ev.Rawcode)
			}
		}
	}
}

// keyDown marks matching keys pressed and fires every combination whose keys
// are now all held.
func (h *Hook) keyDown(rawcode uint16) {
	var fired []*comboState
	var firedCombos []Combination

	h.mu.Lock()
	for combo, st := range h.combos {
		for i := range st.keys {
			for _, rc := range st.keys[i].rawcodes {
				if rc == rawcode {
					st.keys[i].pressed = true
					break
				}
			}
		}
		all := true
		for i := range st.keys {
			if !st.keys[i].pressed {
				all = false
				break
			}
		}
		if all {
			// Reset states before releasing lock
			for i := range st.keys {
				st.keys[i].pressed = false
			}
			fired = append(fired, st)
			firedCombos = append(firedCombos, combo)
		}
	}
	h.mu.Unlock()

	for i, st := range fired {
		h.emit(st.action, firedCombos[i])
	}
}

func (h *Hook) keyUp(rawcode uint16) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, st := range h.combos {
		for i := range st.keys {
			for _, rc := range st.keys[i].rawcodes {
				if rc == rawcode {
					st.keys[i].pressed = false
					break
				}
			}
		}
	}
}

func (h *Hook) Close() error {
	h.mu.Lock()
	for combo := range h.combos {
		release(combo, h)
	}
	h.combos = map[Combination]*comboState{}
	started := h.started
	h.started = false
	h.mu.Unlock()

	if started {
		select {
		case <-h.stop:
		default:
			close(h.stop)
		}
	}
	h.close()
	return nil
}
