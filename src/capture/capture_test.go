package capture

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"swiftlingo/src/langdetect"
	"swiftlingo/src/translate"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testSpanner(lang string) spanner {
	return spanner{
		detector: langdetect.DetectorFunc(func(string) string { return lang }),
		now:      func() time.Time { return fixedNow },
	}
}

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want Platform
	}{
		{"session type wayland", map[string]string{"XDG_SESSION_TYPE": "wayland", "DISPLAY": ":0"}, PlatformWayland},
		{"session type x11", map[string]string{"XDG_SESSION_TYPE": "x11", "WAYLAND_DISPLAY": "wayland-0"}, PlatformX11},
		{"wayland display", map[string]string{"WAYLAND_DISPLAY": "wayland-0", "DISPLAY": ":0"}, PlatformWayland},
		{"display only", map[string]string{"DISPLAY": ":1"}, PlatformX11},
		{"tty session falls through", map[string]string{"XDG_SESSION_TYPE": "tty", "DISPLAY": ":1"}, PlatformX11},
		{"nothing", map[string]string{}, PlatformUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Detect(envOf(tt.env)))
		})
	}
}

func TestSpannerRejectsBlank(t *testing.T) {
	sp := testSpanner("en")
	for _, in := range []string{"", "   ", "\n\t \n"} {
		_, err := sp.span(in)
		require.ErrorIs(t, err, ErrNoSelection)
	}
	span, err := sp.span("  hello world\n")
	require.NoError(t, err)
	require.Equal(t, "hello world", span.Content)
	require.Equal(t, "en", span.DetectedLanguage)
	require.Equal(t, fixedNow, span.CapturedAt)
}

type fakeAdapter struct {
	span  translate.TextSpan
	err   error
	calls int
}

func (f *fakeAdapter) Capture(context.Context) (translate.TextSpan, error) {
	f.calls++
	return f.span, f.err
}

func (f *fakeAdapter) Close() error { return nil }

func newTestWayland(run Runner, fallback Adapter, missing bool) *Wayland {
	w := NewWayland(50*time.Millisecond, testSpanner("de"), fallback)
	w.run = run
	w.lookPath = func(string) (string, error) {
		if missing {
			return "", exec.ErrNotFound
		}
		return "/usr/bin/wl-paste", nil
	}
	return w
}

func TestWaylandReadsPrimary(t *testing.T) {
	var gotArgs []string
	w := newTestWayland(func(_ context.Context, name string, args ...string) ([]byte, error) {
		require.Equal(t, "wl-paste", name)
		gotArgs = args
		return []byte("Guten Morgen"), nil
	}, nil, false)

	span, err := w.Capture(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Guten Morgen", span.Content)
	require.Contains(t, gotArgs, "--primary")
}

func TestWaylandIdempotent(t *testing.T) {
	w := newTestWayland(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("same text"), nil
	}, nil, false)

	a, err := w.Capture(context.Background())
	require.NoError(t, err)
	b, err := w.Capture(context.Background())
	require.NoError(t, err)
	require.True(t, a.Equal(b))
}

func TestWaylandNoSelection(t *testing.T) {
	w := newTestWayland(func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1: No selection")
	}, nil, false)
	_, err := w.Capture(context.Background())
	require.ErrorIs(t, err, ErrNoSelection)

	blank := newTestWayland(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("  \n"), nil
	}, nil, false)
	_, err = blank.Capture(context.Background())
	require.ErrorIs(t, err, ErrNoSelection)
}

func TestWaylandTimeout(t *testing.T) {
	w := newTestWayland(func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil, false)
	_, err := w.Capture(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
}

func TestWaylandCallerCancellationIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := newTestWayland(func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil, false)
	_, err := w.Capture(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrTimeout)
}

func TestWaylandFallsBackToPortal(t *testing.T) {
	portal := &fakeAdapter{span: translate.TextSpan{Content: "from portal"}}
	w := newTestWayland(nil, portal, true)

	span, err := w.Capture(context.Background())
	require.NoError(t, err)
	require.Equal(t, "from portal", span.Content)
	require.Equal(t, 1, portal.calls)

	broken := newTestWayland(func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("Failed to connect to a Wayland server: compositor does not support wlr-data-control")
	}, portal, false)
	_, err = broken.Capture(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, portal.calls)
}

func TestWaylandWithoutFallbackIsUnsupported(t *testing.T) {
	w := newTestWayland(nil, nil, true)
	_, err := w.Capture(context.Background())
	require.ErrorIs(t, err, ErrPlatformUnsupported)
}

func TestClipboardAdapter(t *testing.T) {
	c := NewClipboard(testSpanner(""))
	c.read = func() (string, error) { return "copied", nil }
	span, err := c.Capture(context.Background())
	require.NoError(t, err)
	require.Equal(t, "copied", span.Content)

	c.read = func() (string, error) { return "", nil }
	_, err = c.Capture(context.Background())
	require.ErrorIs(t, err, ErrNoSelection)
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New(Options{Backend: "carrier-pigeon", Detector: langdetect.Off})
	require.ErrorIs(t, err, ErrPlatformUnsupported)
}

func TestNewAutoWithoutDisplayUsesClipboard(t *testing.T) {
	a, err := New(Options{Getenv: envOf(nil), Detector: langdetect.Off})
	require.NoError(t, err)
	require.IsType(t, &Clipboard{}, a)
}

func TestDecodeProperty(t *testing.T) {
	require.Equal(t, "café", decodeProperty(true, []byte{'c', 'a', 'f', 0xe9}))
	require.Equal(t, "café", decodeProperty(false, []byte("café")))
	require.Equal(t, "a�b", decodeProperty(false, []byte{'a', 0xff, 'b'}))
}

func TestPortalErrorMapping(t *testing.T) {
	require.ErrorIs(t, portalError(context.Background(), context.DeadlineExceeded), ErrPlatformDenied)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, portalError(ctx, errors.New("x")), context.Canceled)
}
