package notification

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod = notifyDest + ".Notify"
)

// DefaultExpireMillis is how long the server keeps a notification visible.
const DefaultExpireMillis int32 = 5000

// DBus talks to org.freedesktop.Notifications. Consecutive notifications
// replace each other so only the latest translation stays on screen.
type DBus struct {
	app  string
	conn *dbus.Conn
	obj  dbus.BusObject

	mu   sync.Mutex
	last uint32
}

func NewDBus(appName string) (*DBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &DBus{app: appName, conn: conn, obj: conn.Object(notifyDest, notifyPath)}, nil
}

func (n *DBus) Notify(ctx context.Context, title, body string) error {
	n.mu.Lock()
	replaces := n.last
	n.mu.Unlock()

	call := n.obj.CallWithContext(ctx, notifyMethod, 0,
		n.app, replaces, "accessories-dictionary", title, Truncate(body),
		[]string{}, map[string]dbus.Variant{}, DefaultExpireMillis)
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	n.mu.Lock()
	n.last = id
	n.mu.Unlock()
	return nil
}

func (n *DBus) Close() error { return n.conn.Close() }
