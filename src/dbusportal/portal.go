// Package dbusportal wraps the request/response dance of the
// org.freedesktop.portal.Desktop D-Bus API shared by the clipboard and
// global-shortcut portals.
package dbusportal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/godbus/dbus/v5"

	"swiftlingo/src/logutil"
)

const (
	Destination  = "org.freedesktop.portal.Desktop"
	ObjectPath   = dbus.ObjectPath("/org/freedesktop/portal/desktop")
	requestIface = "org.freedesktop.portal.Request"
	sessionIface = "org.freedesktop.portal.Session"
)

var (
	// ErrUnavailable means no portal service answered on the session bus.
	ErrUnavailable = errors.New("desktop portal unavailable")
	// ErrDenied means the user or the compositor refused the request.
	ErrDenied = errors.New("desktop portal request denied")
)

// Response codes carried by org.freedesktop.portal.Request.Response.
const (
	ResponseSuccess   uint32 = 0
	ResponseCancelled uint32 = 1
	ResponseOther     uint32 = 2
)

// Conn is a session bus connection bound to the portal object.
type Conn struct {
	bus    *dbus.Conn
	obj    dbus.BusObject
	sender string
	seq    atomic.Uint64
}

// Connect opens a private session bus connection.
func Connect() (*Conn, error) {
	bus, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	names := bus.Names()
	if len(names) == 0 {
		bus.Close()
		return nil, fmt.Errorf("%w: no unique bus name", ErrUnavailable)
	}
	return &Conn{bus: bus, obj: bus.Object(Destination, ObjectPath), sender: names[0]}, nil
}

// Bus exposes the underlying connection.
func (c *Conn) Bus() *dbus.Conn { return c.bus }

func (c *Conn) Close() error { return c.bus.Close() }

// Token returns a fresh handle token.
func (c *Conn) Token() string {
	return fmt.Sprintf("swiftlingo%d", c.seq.Add(1))
}

// RequestPath derives the object path the portal will use for a request
// created by uniqueName with the given handle token.
func RequestPath(uniqueName, token string) dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("%s/request/%s/%s", ObjectPath, senderPart(uniqueName), token))
}

// SessionPath is the session counterpart of RequestPath.
func SessionPath(uniqueName, token string) dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("%s/session/%s/%s", ObjectPath, senderPart(uniqueName), token))
}

func senderPart(uniqueName string) string {
	return strings.ReplaceAll(strings.TrimPrefix(uniqueName, ":"), ".", "_")
}

// Call invokes a portal method that answers directly.
func (c *Conn) Call(ctx context.Context, method string, args ...any) *dbus.Call {
	return c.obj.CallWithContext(ctx, method, 0, args...)
}

// Request invokes a portal method that answers through a Request object and
// waits for its Response signal. options must not carry handle_token; one is
// added here.
func (c *Conn) Request(ctx context.Context, method string, options map[string]dbus.Variant, args ...any) (map[string]dbus.Variant, error) {
	token := c.Token()
	if options == nil {
		options = map[string]dbus.Variant{}
	}
	options["handle_token"] = dbus.MakeVariant(token)
	expected := RequestPath(c.sender, token)

	match := []dbus.MatchOption{
		dbus.WithMatchInterface(requestIface),
		dbus.WithMatchMember("Response"),
	}
	if err := c.bus.AddMatchSignal(match...); err != nil {
		return nil, fmt.Errorf("%w: add match: %v", ErrUnavailable, err)
	}
	defer c.bus.RemoveMatchSignal(match...)

	signals := make(chan *dbus.Signal, 8)
	c.bus.Signal(signals)
	defer c.bus.RemoveSignal(signals)

	call := c.Call(ctx, method, append(args, options)...)
	if call.Err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, method, call.Err)
	}
	handle := expected
	var returned dbus.ObjectPath
	if err := call.Store(&returned); err == nil && returned != "" {
		handle = returned
	}

	for {
		select {
		case <-ctx.Done():
			c.closeRequest(handle)
			return nil, ctx.Err()
		case sig := <-signals:
			if sig == nil || sig.Path != handle || len(sig.Body) < 2 {
				continue
			}
			code, _ := sig.Body[0].(uint32)
			results, _ := sig.Body[1].(map[string]dbus.Variant)
			if code != ResponseSuccess {
				logutil.L().Debug("portal request refused",
					logutil.String("method", method), logutil.Int("response", int(code)))
				return nil, fmt.Errorf("%w: %s (response %d)", ErrDenied, method, code)
			}
			return results, nil
		}
	}
}

func (c *Conn) closeRequest(handle dbus.ObjectPath) {
	c.bus.Object(Destination, handle).Call(requestIface+".Close", dbus.FlagNoReplyExpected)
}

// CloseSession ends a portal session.
func (c *Conn) CloseSession(session dbus.ObjectPath) {
	c.bus.Object(Destination, session).Call(sessionIface+".Close", dbus.FlagNoReplyExpected)
}

// SessionHandle extracts "session_handle" from a CreateSession response.
func SessionHandle(results map[string]dbus.Variant) (dbus.ObjectPath, error) {
	v, ok := results["session_handle"]
	if !ok {
		return "", errors.New("portal response missing session_handle")
	}
	switch h := v.Value().(type) {
	case string:
		return dbus.ObjectPath(h), nil
	case dbus.ObjectPath:
		return h, nil
	}
	return "", fmt.Errorf("portal session_handle has type %T", v.Value())
}
