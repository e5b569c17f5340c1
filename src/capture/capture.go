// Package capture reads the text the user currently has selected on screen,
// without requiring an explicit copy.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"swiftlingo/src/langdetect"
	"swiftlingo/src/logutil"
	"swiftlingo/src/translate"
)

var (
	// ErrNoSelection means nothing is highlighted. The pipeline aborts quietly.
	ErrNoSelection = errors.New("no text selected")
	// ErrTimeout means the selection owner did not answer in time.
	ErrTimeout = errors.New("selection owner did not respond")
	// ErrPlatformDenied means a portal refused access.
	ErrPlatformDenied = errors.New("selection access denied by the platform")
	// ErrPlatformUnsupported means no capture mechanism exists here.
	ErrPlatformUnsupported = errors.New("selection capture not supported on this platform")
)

// DefaultTimeout bounds one capture round-trip.
const DefaultTimeout = 500 * time.Millisecond

// Adapter captures the current selection. Implementations are idempotent:
// with an unchanged selection, repeated calls return equal spans.
type Adapter interface {
	Capture(ctx context.Context) (translate.TextSpan, error)
	Close() error
}

// Platform is the display server family found at startup.
type Platform int

const (
	PlatformUnknown Platform = iota
	PlatformX11
	PlatformWayland
)

func (p Platform) String() string {
	switch p {
	case PlatformX11:
		return "x11"
	case PlatformWayland:
		return "wayland"
	default:
		return "unknown"
	}
}

// Detect probes XDG_SESSION_TYPE, then WAYLAND_DISPLAY, then DISPLAY.
func Detect(getenv func(string) string) Platform {
	if getenv == nil {
		getenv = os.Getenv
	}
	switch strings.ToLower(getenv("XDG_SESSION_TYPE")) {
	case "wayland":
		return PlatformWayland
	case "x11":
		return PlatformX11
	}
	if getenv("WAYLAND_DISPLAY") != "" {
		return PlatformWayland
	}
	if getenv("DISPLAY") != "" {
		return PlatformX11
	}
	return PlatformUnknown
}

// Backend names accepted by Options.Backend.
const (
	BackendAuto      = "auto"
	BackendX11       = "x11"
	BackendWayland   = "wayland"
	BackendPortal    = "portal"
	BackendClipboard = "clipboard"
)

type Options struct {
	Backend  string
	Timeout  time.Duration
	Detector langdetect.Detector
	Getenv   func(string) string
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Backend == "" {
		o.Backend = BackendAuto
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Detector == nil {
		o.Detector = langdetect.Lingua
	}
	if o.Getenv == nil {
		o.Getenv = os.Getenv
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// New builds the adapter for opts.Backend; "auto" probes the environment.
func New(opts Options) (Adapter, error) {
	opts = opts.withDefaults()
	sp := spanner{detector: opts.Detector, now: opts.Now}

	backend := opts.Backend
	if backend == BackendAuto {
		switch Detect(opts.Getenv) {
		case PlatformX11:
			backend = BackendX11
		case PlatformWayland:
			backend = BackendWayland
		default:
			backend = BackendClipboard
		}
	}
	logutil.L().Info("selection capture backend", logutil.String("backend", backend))

	switch backend {
	case BackendX11:
		return NewX11(opts.Getenv("DISPLAY"), opts.Timeout, sp)
	case BackendWayland:
		return NewWayland(opts.Timeout, sp, NewPortal(opts.Timeout, sp)), nil
	case BackendPortal:
		return NewPortal(opts.Timeout, sp), nil
	case BackendClipboard:
		return NewClipboard(sp), nil
	}
	return nil, fmt.Errorf("%w: unknown capture backend %q", ErrPlatformUnsupported, opts.Backend)
}

// spanner turns raw selection text into a TextSpan.
type spanner struct {
	detector langdetect.Detector
	now      func() time.Time
}

func (s spanner) span(content string) (translate.TextSpan, error) {
	span, err := translate.NewTextSpan(strings.TrimSpace(content), s.now())
	if err != nil {
		return translate.TextSpan{}, ErrNoSelection
	}
	if s.detector != nil {
		span = span.WithLanguage(s.detector.Detect(span.Content))
	}
	return span, nil
}

// deadline derives the bounded context for one capture. Expiry of the
// bound, as opposed to the caller's cancellation, is reported as ErrTimeout.
func deadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

func timeoutOr(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	return fmt.Errorf("%w: %v", ErrTimeout, err)
}
