package hotkey

import (
	"testing"
	"time"

	"github.com/jezek/xgb/xproto"
	"github.com/stretchr/testify/require"
)

func TestParseCombination(t *testing.T) {
	c, err := ParseCombination("Ctrl+Alt+T")
	require.NoError(t, err)
	require.Equal(t, ModCtrl|ModAlt, c.Modifiers)
	require.Equal(t, "t", c.Key)
	require.Equal(t, "Ctrl+Alt+T", c.String())

	c, err = ParseCombination("super+shift+f13")
	require.NoError(t, err)
	require.Equal(t, "Shift+Super+F13", c.String())

	c, err = ParseCombination("Ctrl+Escape")
	require.NoError(t, err)
	require.Equal(t, "esc", c.Key)

	for _, bad := range []string{"", "Ctrl+Alt", "Ctrl+A+B", "Ctrl+Hyper", "Ctrl++T"} {
		_, err := ParseCombination(bad)
		require.ErrorIs(t, err, ErrInvalidCombination, bad)
	}
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction(" Translate-Replace ")
	require.NoError(t, err)
	require.Equal(t, ActionTranslateReplace, a)
	_, err = ParseAction("explode")
	require.Error(t, err)
}

func TestEmitterDebounce(t *testing.T) {
	e := newEmitter(time.Second)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	require.True(t, e.emit(ActionTranslate, Combination{}))
	now = now.Add(300 * time.Millisecond)
	require.False(t, e.emit(ActionTranslate, Combination{}), "repeat inside window")
	require.True(t, e.emit(ActionTranslateReplace, Combination{}), "other actions are independent")
	now = now.Add(time.Second)
	require.True(t, e.emit(ActionTranslate, Combination{}))

	tr := <-e.out
	require.Equal(t, ActionTranslate, tr.Action)
	e.close()
	require.False(t, e.emit(ActionTranslate, Combination{}))
}

func TestIPCListener(t *testing.T) {
	l := NewIPC(0)
	combo, err := ParseCombination("Ctrl+Alt+F9")
	require.NoError(t, err)

	sub, err := l.Register(combo, ActionTranslate)
	require.NoError(t, err)

	ok, err := l.Deliver(ActionTranslate)
	require.NoError(t, err)
	require.True(t, ok)
	tr := <-l.Triggers()
	require.Equal(t, ActionTranslate, tr.Action)
	require.Equal(t, combo, tr.Combo)
	require.False(t, tr.At.IsZero())

	_, err = l.Deliver(ActionTranslateReplace)
	require.Error(t, err)

	require.NoError(t, sub.Unregister())
	require.NoError(t, sub.Unregister())
	_, err = l.Deliver(ActionTranslate)
	require.Error(t, err)

	require.NoError(t, l.Close())
	_, open := <-l.Triggers()
	require.False(t, open)
	_, err = l.Register(combo, ActionTranslate)
	require.ErrorIs(t, err, ErrClosed)
}

func TestBindingConflictAcrossListeners(t *testing.T) {
	combo, err := ParseCombination("Ctrl+Shift+F10")
	require.NoError(t, err)

	a, b := NewIPC(0), NewIPC(0)
	defer a.Close()
	defer b.Close()

	sub, err := a.Register(combo, ActionTranslate)
	require.NoError(t, err)
	_, err = b.Register(combo, ActionTranslateReplace)
	require.ErrorIs(t, err, ErrBindingConflict)

	require.NoError(t, sub.Unregister())
	_, err = b.Register(combo, ActionTranslateReplace)
	require.NoError(t, err)
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New("telepathy", time.Second)
	require.ErrorIs(t, err, ErrPlatformUnsupported)
}

func TestPreferredTrigger(t *testing.T) {
	for in, want := range map[string]string{
		"Ctrl+Alt+T":    "CTRL+ALT+t",
		"Super+F13":     "LOGO+F13",
		"Shift+Enter":   "SHIFT+Return",
		"Ctrl+PageDown": "CTRL+Page_Down",
	} {
		c, err := ParseCombination(in)
		require.NoError(t, err)
		require.Equal(t, want, PreferredTrigger(c), in)
	}
}

func TestModMask(t *testing.T) {
	require.Equal(t, uint16(xproto.ModMaskControl|xproto.ModMask1), modMask(ModCtrl|ModAlt))
	require.Equal(t, uint16(xproto.ModMaskShift|xproto.ModMask4), modMask(ModShift|ModSuper))
}

func TestFindKeycode(t *testing.T) {
	syms := []xproto.Keysym{0x61, 0x41, 0x74, 0x54, 0xffbe, 0}
	code, err := findKeycode(8, 2, syms, 0x74)
	require.NoError(t, err)
	require.Equal(t, xproto.Keycode(9), code)

	_, err = findKeycode(8, 2, syms, 0x7a)
	require.ErrorIs(t, err, ErrInvalidCombination)
}
