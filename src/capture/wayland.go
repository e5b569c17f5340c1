package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"swiftlingo/src/logutil"
	"swiftlingo/src/translate"
)

const wlPaste = "wl-paste"

// Runner executes an external command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, err
}

// Wayland reads the primary selection with wl-paste (wlr data-control) when
// the compositor offers it, and otherwise reads through the portal.
type Wayland struct {
	timeout  time.Duration
	spanner  spanner
	fallback Adapter
	run      Runner
	lookPath func(string) (string, error)
}

func NewWayland(timeout time.Duration, sp spanner, fallback Adapter) *Wayland {
	return &Wayland{timeout: timeout, spanner: sp, fallback: fallback, run: execRunner, lookPath: exec.LookPath}
}

func (w *Wayland) Capture(ctx context.Context) (translate.TextSpan, error) {
	if _, err := w.lookPath(wlPaste); err != nil {
		return w.viaFallback(ctx, err)
	}

	bounded, cancel := deadline(ctx, w.timeout)
	defer cancel()
	out, err := w.run(bounded, wlPaste, "--primary", "--no-newline", "--type", "text")
	if err != nil {
		switch {
		case bounded.Err() != nil:
			return translate.TextSpan{}, timeoutOr(ctx, err)
		case isNoSelection(err):
			return translate.TextSpan{}, ErrNoSelection
		}
		return w.viaFallback(ctx, err)
	}
	return w.spanner.span(string(out))
}

func (w *Wayland) viaFallback(ctx context.Context, cause error) (translate.TextSpan, error) {
	if w.fallback == nil {
		return translate.TextSpan{}, fmt.Errorf("%w: %v", ErrPlatformUnsupported, cause)
	}
	logutil.FromContext(ctx).Debug("wl-paste unavailable, using portal", logutil.Error(cause))
	return w.fallback.Capture(ctx)
}

// isNoSelection recognises wl-paste's "Nothing is copied" / "No selection"
// exits.
func isNoSelection(err error) bool {
	var exitErr *exec.ExitError
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "nothing is copied") || strings.Contains(msg, "no selection") ||
		strings.Contains(msg, "no suitable type") {
		return true
	}
	return errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && !strings.Contains(msg, "compositor")
}

func (w *Wayland) Close() error {
	if w.fallback != nil {
		return w.fallback.Close()
	}
	return nil
}
