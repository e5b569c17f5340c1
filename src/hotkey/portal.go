package hotkey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"swiftlingo/src/dbusportal"
	"swiftlingo/src/logutil"
)

const (
	globalShortcutsIface = "org.freedesktop.portal.GlobalShortcuts"
	bindTimeout          = 2 * time.Minute
)

// Portal binds shortcuts through the GlobalShortcuts portal (Wayland). The
// compositor may show a dialog and may assign a different trigger than the
// preferred one.
type Portal struct {
	*emitter

	conn     *dbusportal.Conn
	mu       sync.Mutex
	sessions map[dbus.ObjectPath]portalBinding
	signals  chan *dbus.Signal
	done     chan struct{}
}

type portalBinding struct {
	id     string
	combo  Combination
	action Action
}

type shortcut struct {
	ID      string
	Options map[string]dbus.Variant
}

func NewPortal(debounce time.Duration) (*Portal, error) {
	conn, err := dbusportal.Connect()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlatformUnsupported, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if call := conn.Call(ctx, "org.freedesktop.DBus.Properties.Get", globalShortcutsIface, "version"); call.Err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: GlobalShortcuts portal missing: %v", ErrPlatformUnsupported, call.Err)
	}

	match := []dbus.MatchOption{
		dbus.WithMatchInterface(globalShortcutsIface),
		dbus.WithMatchMember("Activated"),
	}
	if err := conn.Bus().AddMatchSignal(match...); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrPlatformUnsupported, err)
	}

	p := &Portal{
		emitter:  newEmitter(debounce),
		conn:     conn,
		sessions: make(map[dbus.ObjectPath]portalBinding),
		signals:  make(chan *dbus.Signal, 16),
		done:     make(chan struct{}),
	}
	conn.Bus().Signal(p.signals)
	go p.loop()
	return p, nil
}

func (p *Portal) Triggers() <-chan Trigger { return p.out }

// Register opens one portal session per binding so each can be released on
// its own.
func (p *Portal) Register(combo Combination, action Action) (*Subscription, error) {
	if p.isClosed() {
		return nil, ErrClosed
	}
	if err := claim(combo, p); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), bindTimeout)
	defer cancel()

	session, err := p.bind(ctx, combo, action)
	if err != nil {
		release(combo, p)
		return nil, err
	}

	p.mu.Lock()
	p.sessions[session] = portalBinding{id: string(action), combo: combo, action: action}
	p.mu.Unlock()

	logutil.L().Info("hotkey registered", logutil.String("backend", BackendPortal),
		logutil.String("combo", combo.String()), logutil.String("action", string(action)))

	return newSubscription(combo, action, func() error {
		p.mu.Lock()
		delete(p.sessions, session)
		p.mu.Unlock()
		p.conn.CloseSession(session)
		release(combo, p)
		return nil
	}), nil
}

func (p *Portal) bind(ctx context.Context, combo Combination, action Action) (dbus.ObjectPath, error) {
	res, err := p.conn.Request(ctx, globalShortcutsIface+".CreateSession", map[string]dbus.Variant{
		"session_handle_token": dbus.MakeVariant(p.conn.Token()),
	})
	if err != nil {
		return "", portalErr(err)
	}
	session, err := dbusportal.SessionHandle(res)
	if err != nil {
		return "", err
	}

	shortcuts := []shortcut{{
		ID: string(action),
		Options: map[string]dbus.Variant{
			"description":       dbus.MakeVariant(describe(action)),
			"preferred_trigger": dbus.MakeVariant(PreferredTrigger(combo)),
		},
	}}
	res, err = p.conn.Request(ctx, globalShortcutsIface+".BindShortcuts", nil, session, shortcuts, "")
	if err != nil {
		p.conn.CloseSession(session)
		return "", portalErr(err)
	}
	if v, ok := res["shortcuts"]; ok {
		if bound, ok := v.Value().([][]any); ok && len(bound) == 0 {
			p.conn.CloseSession(session)
			return "", fmt.Errorf("%w: compositor refused %s", ErrBindingConflict, combo)
		}
	}
	return session, nil
}

func portalErr(err error) error {
	if errors.Is(err, dbusportal.ErrDenied) || errors.Is(err, dbusportal.ErrUnavailable) {
		return fmt.Errorf("%w: %v", ErrPlatformUnsupported, err)
	}
	return err
}

func describe(action Action) string {
	switch action {
	case ActionTranslateReplace:
		return "Translate selection and copy the result"
	default:
		return "Translate selection"
	}
}

var portalKeyNames = map[string]string{
	"space":     "space",
	"enter":     "Return",
	"esc":       "Escape",
	"tab":       "Tab",
	"backspace": "BackSpace",
	"delete":    "Delete",
	"insert":    "Insert",
	"home":      "Home",
	"end":       "End",
	"pageup":    "Page_Up",
	"pagedown":  "Page_Down",
	"left":      "Left",
	"up":        "Up",
	"right":     "Right",
	"down":      "Down",
}

// PreferredTrigger renders combo in the XDG shortcuts notation
// ("CTRL+ALT+t", "LOGO+F13").
func PreferredTrigger(combo Combination) string {
	var parts []string
	if combo.Modifiers&ModCtrl != 0 {
		parts = append(parts, "CTRL")
	}
	if combo.Modifiers&ModAlt != 0 {
		parts = append(parts, "ALT")
	}
	if combo.Modifiers&ModShift != 0 {
		parts = append(parts, "SHIFT")
	}
	if combo.Modifiers&ModSuper != 0 {
		parts = append(parts, "LOGO")
	}
	key := combo.Key
	if name, ok := portalKeyNames[key]; ok {
		key = name
	} else if strings.HasPrefix(key, "f") && len(key) > 1 {
		key = strings.ToUpper(key)
	}
	return strings.Join(append(parts, key), "+")
}

func (p *Portal) loop() {
	defer func() {
		if r := recover(); r != nil {
			logutil.L().Error("PANIC in portal hotkey loop", logutil.Any("panic", r))
		}
	}()
	for {
		select {
		case <-p.done:
			return
		case sig, ok := <-p.signals:
			if !ok {
				return
			}
			if sig == nil || sig.Name != globalShortcutsIface+".Activated" || len(sig.Body) < 2 {
				continue
			}
			session, _ := sig.Body[0].(dbus.ObjectPath)
			id, _ := sig.Body[1].(string)
			p.mu.Lock()
			b, found := p.sessions[session]
			p.mu.Unlock()
			if found && b.id == id {
				p.emit(b.action, b.combo)
			}
		}
	}
}

func (p *Portal) Close() error {
	p.mu.Lock()
	for session, b := range p.sessions {
		p.conn.CloseSession(session)
		release(b.combo, p)
	}
	p.sessions = map[dbus.ObjectPath]portalBinding{}
	p.mu.Unlock()

	select {
	case <-p.done:
	default:
		close(p.done)
	}
	p.conn.Bus().RemoveSignal(p.signals)
	p.close()
	return p.conn.Close()
}
