package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"swiftlingo/src/logutil"
	"swiftlingo/src/translate"
)

// maxPropertyWords caps one GetProperty read (in 32-bit units).
const maxPropertyWords = 1 << 20

var errNoConversion = errors.New("selection owner refused the conversion")

type x11Atoms struct {
	primary, utf8, str, incr, property xproto.Atom
}

type x11Event struct {
	ev  xgb.Event
	err xgb.Error
}

// X11 reads the PRIMARY selection through the X protocol. A hidden window
// acts as the requestor; the selection owner is never changed.
type X11 struct {
	mu      sync.Mutex
	conn    *xgb.Conn
	win     xproto.Window
	atoms   x11Atoms
	events  chan x11Event
	timeout time.Duration
	spanner spanner
}

// NewX11 connects to display ("" uses $DISPLAY).
func NewX11(display string, timeout time.Duration, sp spanner) (*X11, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to X display: %v", ErrPlatformUnsupported, err)
	}
	screen := xproto.Setup(conn).DefaultScreen(conn)

	win, err := xproto.NewWindowId(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("allocate window id: %w", err)
	}
	err = xproto.CreateWindowChecked(conn, screen.RootDepth, win, screen.Root,
		-10, -10, 1, 1, 0, xproto.WindowClassInputOutput, screen.RootVisual,
		xproto.CwEventMask, []uint32{xproto.EventMaskPropertyChange}).Check()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create requestor window: %w", err)
	}

	x := &X11{conn: conn, win: win, events: make(chan x11Event, 32), timeout: timeout, spanner: sp}
	for name, dst := range map[string]*xproto.Atom{
		"PRIMARY":           &x.atoms.primary,
		"UTF8_STRING":       &x.atoms.utf8,
		"STRING":            &x.atoms.str,
		"INCR":              &x.atoms.incr,
		"SWIFTLINGO_SELECT": &x.atoms.property,
	} {
		atom, err := internAtom(conn, name)
		if err != nil {
			conn.Close()
			return nil, err
		}
		*dst = atom
	}

	go x.pump()
	return x, nil
}

func internAtom(conn *xgb.Conn, name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("intern atom %s: %w", name, err)
	}
	return reply.Atom, nil
}

// pump forwards X events until the connection closes.
func (x *X11) pump() {
	defer func() {
		if r := recover(); r != nil {
			logutil.L().Error("PANIC in X11 event pump", logutil.Any("panic", r))
		}
		close(x.events)
	}()
	for {
		ev, xerr := x.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			return
		}
		select {
		case x.events <- x11Event{ev: ev, err: xerr}:
		default:
			// Nobody is capturing; stale events are dropped anyway.
		}
	}
}

func (x *X11) Capture(ctx context.Context) (translate.TextSpan, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	owner, err := xproto.GetSelectionOwner(x.conn, x.atoms.primary).Reply()
	if err != nil {
		return translate.TextSpan{}, fmt.Errorf("query selection owner: %w", err)
	}
	if owner.Owner == xproto.WindowNone {
		return translate.TextSpan{}, ErrNoSelection
	}

	bounded, cancel := deadline(ctx, x.timeout)
	defer cancel()

	text, err := x.convert(bounded, x.atoms.utf8)
	if errors.Is(err, errNoConversion) {
		text, err = x.convert(bounded, x.atoms.str)
	}
	switch {
	case errors.Is(err, errNoConversion):
		return translate.TextSpan{}, ErrNoSelection
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return translate.TextSpan{}, timeoutOr(ctx, err)
	case err != nil:
		return translate.TextSpan{}, err
	}
	return x.spanner.span(text)
}

// convert asks the owner to convert PRIMARY to target into our property and
// reads the result, following INCR transfers.
func (x *X11) convert(ctx context.Context, target xproto.Atom) (string, error) {
	x.drain()
	xproto.ConvertSelection(x.conn, x.win, x.atoms.primary, target, x.atoms.property, xproto.TimeCurrentTime)

	for {
		ev, err := x.next(ctx)
		if err != nil {
			return "", err
		}
		notify, ok := ev.(xproto.SelectionNotifyEvent)
		if !ok || notify.Requestor != x.win || notify.Selection != x.atoms.primary {
			continue
		}
		if notify.Property == xproto.AtomNone {
			return "", errNoConversion
		}
		break
	}

	reply, err := x.readProperty()
	if err != nil {
		return "", err
	}
	if reply.Type == x.atoms.incr {
		return x.readIncr(ctx, target)
	}
	return decodeProperty(reply.Type == x.atoms.str, reply.Value), nil
}

func (x *X11) readProperty() (*xproto.GetPropertyReply, error) {
	reply, err := xproto.GetProperty(x.conn, true, x.win, x.atoms.property,
		xproto.GetPropertyTypeAny, 0, maxPropertyWords).Reply()
	if err != nil {
		return nil, fmt.Errorf("read selection property: %w", err)
	}
	return reply, nil
}

// readIncr collects chunks announced by PropertyNotify until a zero-length
// chunk ends the transfer.
func (x *X11) readIncr(ctx context.Context, target xproto.Atom) (string, error) {
	var b []byte
	for {
		ev, err := x.next(ctx)
		if err != nil {
			return "", err
		}
		pn, ok := ev.(xproto.PropertyNotifyEvent)
		if !ok || pn.Window != x.win || pn.Atom != x.atoms.property || pn.State != xproto.PropertyNewValue {
			continue
		}
		reply, err := x.readProperty()
		if err != nil {
			return "", err
		}
		if reply.ValueLen == 0 {
			return decodeProperty(target == x.atoms.str, b), nil
		}
		b = append(b, reply.Value...)
	}
}

func (x *X11) next(ctx context.Context) (xgb.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case e, ok := <-x.events:
			if !ok {
				return nil, errors.New("X connection closed")
			}
			if e.err != nil {
				logutil.L().Debug("X11 error event", logutil.String("error", e.err.Error()))
				continue
			}
			return e.ev, nil
		}
	}
}

// drain drops events left over from an earlier, timed-out capture.
func (x *X11) drain() {
	for {
		select {
		case <-x.events:
		default:
			return
		}
	}
}

func (x *X11) Close() error {
	xproto.DestroyWindow(x.conn, x.win)
	x.conn.Close()
	return nil
}

// decodeProperty converts selection bytes to a Go string. STRING targets are
// ISO-8859-1; UTF8_STRING bytes are taken as they are, with invalid
// sequences replaced.
func decodeProperty(latin1 bool, value []byte) string {
	if latin1 {
		var b strings.Builder
		b.Grow(len(value))
		for _, c := range value {
			b.WriteRune(rune(c))
		}
		return b.String()
	}
	if utf8.Valid(value) {
		return string(value)
	}
	return strings.ToValidUTF8(string(value), "�")
}
