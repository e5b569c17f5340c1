package hotkey

import (
	"fmt"
	"sync"
	"time"

	"swiftlingo/src/logutil"
)

// IPC receives triggers from outside the process: a desktop-environment
// shortcut runs "swiftlingo --trigger <action>" and the single-instance
// server calls Deliver. It is the fallback where no global grab is possible.
type IPC struct {
	*emitter

	mu    sync.Mutex
	bound map[Action]Combination
}

func NewIPC(debounce time.Duration) *IPC {
	return &IPC{emitter: newEmitter(debounce), bound: make(map[Action]Combination)}
}

func (l *IPC) Triggers() <-chan Trigger { return l.out }

// Register records the action. A non-zero combo is claimed so another
// listener in the process cannot take it too.
func (l *IPC) Register(combo Combination, action Action) (*Subscription, error) {
	if l.isClosed() {
		return nil, ErrClosed
	}
	if err := claim(combo, l); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.bound[action] = combo
	l.mu.Unlock()
	logutil.L().Info("hotkey registered", logutil.String("backend", BackendIPC),
		logutil.String("action", string(action)))

	return newSubscription(combo, action, func() error {
		l.mu.Lock()
		delete(l.bound, action)
		l.mu.Unlock()
		release(combo, l)
		return nil
	}), nil
}

// Deliver injects an activation of action. It reports whether the trigger was
// accepted (registered, not debounced).
func (l *IPC) Deliver(action Action) (bool, error) {
	l.mu.Lock()
	combo, ok := l.bound[action]
	l.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("action %q is not registered", action)
	}
	return l.emit(action, combo), nil
}

func (l *IPC) Close() error {
	l.mu.Lock()
	for action, combo := range l.bound {
		release(combo, l)
		delete(l.bound, action)
	}
	l.mu.Unlock()
	l.close()
	return nil
}
