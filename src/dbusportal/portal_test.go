package dbusportal

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"
)

func TestRequestPath(t *testing.T) {
	require.Equal(t,
		dbus.ObjectPath("/org/freedesktop/portal/desktop/request/1_42/swiftlingo3"),
		RequestPath(":1.42", "swiftlingo3"))
	require.Equal(t,
		dbus.ObjectPath("/org/freedesktop/portal/desktop/session/1_42/s1"),
		SessionPath(":1.42", "s1"))
}

func TestSessionHandle(t *testing.T) {
	h, err := SessionHandle(map[string]dbus.Variant{"session_handle": dbus.MakeVariant("/a/b")})
	require.NoError(t, err)
	require.Equal(t, dbus.ObjectPath("/a/b"), h)

	h, err = SessionHandle(map[string]dbus.Variant{"session_handle": dbus.MakeVariant(dbus.ObjectPath("/c"))})
	require.NoError(t, err)
	require.Equal(t, dbus.ObjectPath("/c"), h)

	_, err = SessionHandle(map[string]dbus.Variant{})
	require.Error(t, err)
	_, err = SessionHandle(map[string]dbus.Variant{"session_handle": dbus.MakeVariant(7)})
	require.Error(t, err)
}
