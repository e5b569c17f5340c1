package hotkey

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"swiftlingo/src/logutil"
)

// lockVariants are the modifier states under which a grab must also hold,
// so the hotkey works with CapsLock and NumLock on.
var lockVariants = []uint16{
	0,
	xproto.ModMaskLock,
	xproto.ModMask2,
	xproto.ModMaskLock | xproto.ModMask2,
}

// X11Grab binds combinations with XGrabKey on the root window. A BadAccess
// reply means another client owns the combination.
type X11Grab struct {
	*emitter

	mu      sync.Mutex
	conn    *xgb.Conn
	root    xproto.Window
	grabs   map[grabKey]Combination
	subs    map[Combination]grabKey
	actions map[Combination]Action
	done    chan struct{}
}

type grabKey struct {
	code xproto.Keycode
	mods uint16
}

func NewX11Grab(display string, debounce time.Duration) (*X11Grab, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to X display: %v", ErrPlatformUnsupported, err)
	}
	g := &X11Grab{
		emitter: newEmitter(debounce),
		conn:    conn,
		root:    xproto.Setup(conn).DefaultScreen(conn).Root,
		grabs:   make(map[grabKey]Combination),
		subs:    make(map[Combination]grabKey),
		actions: make(map[Combination]Action),
		done:    make(chan struct{}),
	}
	go g.loop()
	return g, nil
}

func (g *X11Grab) Triggers() <-chan Trigger { return g.out }

// modMask converts modifiers to the X core modifier mask.
func modMask(m Modifier) uint16 {
	var mask uint16
	if m&ModCtrl != 0 {
		mask |= xproto.ModMaskControl
	}
	if m&ModAlt != 0 {
		mask |= xproto.ModMask1
	}
	if m&ModShift != 0 {
		mask |= xproto.ModMaskShift
	}
	if m&ModSuper != 0 {
		mask |= xproto.ModMask4
	}
	return mask
}

func (g *X11Grab) keycode(keysym uint32) (xproto.Keycode, error) {
	setup := xproto.Setup(g.conn)
	count := byte(setup.MaxKeycode - setup.MinKeycode + 1)
	reply, err := xproto.GetKeyboardMapping(g.conn, setup.MinKeycode, count).Reply()
	if err != nil {
		return 0, fmt.Errorf("get keyboard mapping: %w", err)
	}
	return findKeycode(setup.MinKeycode, int(reply.KeysymsPerKeycode), reply.Keysyms, keysym)
}

// findKeycode scans a keyboard mapping for the first keycode producing sym.
func findKeycode(min xproto.Keycode, perCode int, syms []xproto.Keysym, sym uint32) (xproto.Keycode, error) {
	if perCode <= 0 {
		return 0, fmt.Errorf("empty keyboard mapping")
	}
	for i := 0; i+perCode <= len(syms); i += perCode {
		for _, s := range syms[i : i+perCode] {
			if uint32(s) == sym {
				return min + xproto.Keycode(i/perCode), nil
			}
		}
	}
	return 0, fmt.Errorf("%w: keysym 0x%x not on this keyboard", ErrInvalidCombination, sym)
}

func (g *X11Grab) Register(combo Combination, action Action) (*Subscription, error) {
	if g.isClosed() {
		return nil, ErrClosed
	}
	sym, ok := keysyms[combo.Key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidCombination, combo.Key)
	}
	if err := claim(combo, g); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	code, err := g.keycode(sym)
	if err != nil {
		release(combo, g)
		return nil, err
	}
	mods := modMask(combo.Modifiers)

	var grabbed []uint16
	for _, lock := range lockVariants {
		err := xproto.GrabKeyChecked(g.conn, true, g.root, mods|lock, code,
			xproto.GrabModeAsync, xproto.GrabModeAsync).Check()
		if err != nil {
			for _, m := range grabbed {
				xproto.UngrabKey(g.conn, code, g.root, m)
			}
			release(combo, g)
			if isBadAccess(err) {
				return nil, fmt.Errorf("%w: %s is grabbed by another client", ErrBindingConflict, combo)
			}
			return nil, fmt.Errorf("grab %s: %w", combo, err)
		}
		grabbed = append(grabbed, mods|lock)
	}

	key := grabKey{code: code, mods: mods}
	g.grabs[key] = combo
	g.subs[combo] = key
	g.actions[combo] = action

	logutil.L().Info("hotkey registered", logutil.String("backend", BackendX11),
		logutil.String("combo", combo.String()), logutil.String("action", string(action)))

	return newSubscription(combo, action, func() error {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.ungrab(combo)
		return nil
	}), nil
}

// ungrab must be called with g.mu held.
func (g *X11Grab) ungrab(combo Combination) {
	key, ok := g.subs[combo]
	if !ok {
		return
	}
	for _, lock := range lockVariants {
		xproto.UngrabKey(g.conn, key.code, g.root, key.mods|lock)
	}
	delete(g.subs, combo)
	delete(g.grabs, key)
	delete(g.actions, combo)
	release(combo, g)
}

func isBadAccess(err error) bool {
	return strings.HasPrefix(err.Error(), "BadAccess")
}

func (g *X11Grab) loop() {
	defer func() {
		if r := recover(); r != nil {
			logutil.L().Error("PANIC in X11 hotkey loop", logutil.Any("panic", r))
		}
		close(g.done)
	}()
	ignored := uint16(xproto.ModMaskLock | xproto.ModMask2)
	for {
		ev, xerr := g.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			return
		}
		if xerr != nil {
			logutil.L().Debug("X11 error event", logutil.String("error", xerr.Error()))
			continue
		}
		press, ok := ev.(xproto.KeyPressEvent)
		if !ok {
			continue
		}
		key := grabKey{code: press.Detail, mods: press.State &^ ignored & 0xff}
		g.mu.Lock()
		combo, found := g.grabs[key]
		action := g.actions[combo]
		g.mu.Unlock()
		if found {
			g.emit(action, combo)
		}
	}
}

func (g *X11Grab) Close() error {
	g.mu.Lock()
	for combo := range g.subs {
		g.ungrab(combo)
	}
	g.mu.Unlock()
	g.close()
	g.conn.Close()
	<-g.done
	return nil
}
