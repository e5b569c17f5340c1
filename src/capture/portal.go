package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"swiftlingo/src/dbusportal"
	"swiftlingo/src/logutil"
	"swiftlingo/src/translate"
)

const (
	remoteDesktopIface = "org.freedesktop.portal.RemoteDesktop"
	clipboardIface     = "org.freedesktop.portal.Clipboard"
	textMime           = "text/plain;charset=utf-8"
	maxSelectionBytes  = 1 << 20
	readerGrace        = 100 * time.Millisecond

	// DefaultConsentTimeout bounds the first-use permission dialog.
	DefaultConsentTimeout = 2 * time.Minute
)

// Portal reads the clipboard through the RemoteDesktop and Clipboard portals.
// The first capture opens a session, which may show a consent dialog; later
// captures reuse it.
type Portal struct {
	mu             sync.Mutex
	timeout        time.Duration
	consentTimeout time.Duration
	spanner        spanner
	connect        func() (*dbusportal.Conn, error)
	conn           *dbusportal.Conn
	session        dbus.ObjectPath
}

func NewPortal(timeout time.Duration, sp spanner) *Portal {
	return &Portal{
		timeout:        timeout,
		consentTimeout: DefaultConsentTimeout,
		spanner:        sp,
		connect:        dbusportal.Connect,
	}
}

func (p *Portal) Capture(ctx context.Context) (translate.TextSpan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureSession(ctx); err != nil {
		return translate.TextSpan{}, portalError(ctx, err)
	}

	bounded, cancel := deadline(ctx, p.timeout)
	defer cancel()

	call := p.conn.Call(bounded, clipboardIface+".SelectionRead", p.session, textMime)
	if call.Err != nil {
		if bounded.Err() != nil {
			return translate.TextSpan{}, timeoutOr(ctx, call.Err)
		}
		if isNotAllowed(call.Err) {
			return translate.TextSpan{}, fmt.Errorf("%w: %v", ErrPlatformDenied, call.Err)
		}
		// The session may have been closed by the compositor.
		p.reset()
		return translate.TextSpan{}, fmt.Errorf("portal selection read: %w", call.Err)
	}
	var fd dbus.UnixFD
	if err := call.Store(&fd); err != nil {
		return translate.TextSpan{}, fmt.Errorf("portal selection read: %w", err)
	}

	text, err := readFD(bounded, int(fd))
	if err != nil {
		if bounded.Err() != nil {
			return translate.TextSpan{}, timeoutOr(ctx, err)
		}
		return translate.TextSpan{}, err
	}
	return p.spanner.span(text)
}

func (p *Portal) ensureSession(ctx context.Context) error {
	if p.session != "" {
		return nil
	}
	if p.conn == nil {
		conn, err := p.connect()
		if err != nil {
			return err
		}
		p.conn = conn
	}

	cctx, cancel := context.WithTimeout(ctx, p.consentTimeout)
	defer cancel()

	res, err := p.conn.Request(cctx, remoteDesktopIface+".CreateSession", map[string]dbus.Variant{
		"session_handle_token": dbus.MakeVariant(p.conn.Token()),
	})
	if err != nil {
		return err
	}
	session, err := dbusportal.SessionHandle(res)
	if err != nil {
		return err
	}

	if call := p.conn.Call(cctx, clipboardIface+".RequestClipboard", session, map[string]dbus.Variant{}); call.Err != nil {
		p.conn.CloseSession(session)
		return fmt.Errorf("%w: request clipboard: %v", dbusportal.ErrUnavailable, call.Err)
	}
	if _, err := p.conn.Request(cctx, remoteDesktopIface+".SelectDevices", map[string]dbus.Variant{
		"types": dbus.MakeVariant(uint32(1)),
	}, session); err != nil {
		p.conn.CloseSession(session)
		return err
	}
	res, err = p.conn.Request(cctx, remoteDesktopIface+".Start", nil, session, "")
	if err != nil {
		p.conn.CloseSession(session)
		return err
	}
	if v, ok := res["clipboard_enabled"]; ok {
		if enabled, _ := v.Value().(bool); !enabled {
			p.conn.CloseSession(session)
			return fmt.Errorf("%w: clipboard access not granted", dbusportal.ErrDenied)
		}
	}

	p.session = session
	logutil.L().Info("portal clipboard session started", logutil.String("session", string(session)))
	return nil
}

func (p *Portal) reset() {
	if p.session != "" && p.conn != nil {
		p.conn.CloseSession(p.session)
	}
	p.session = ""
}

func (p *Portal) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

func portalError(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, dbusportal.ErrDenied), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrPlatformDenied, err)
	case errors.Is(err, dbusportal.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrPlatformUnsupported, err)
	}
	return err
}

func isNotAllowed(err error) bool {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return strings.HasSuffix(dbusErr.Name, ".NotAllowed")
	}
	return strings.Contains(err.Error(), "NotAllowed")
}

// readFD drains the pipe the portal handed over, bounded by ctx.
func readFD(ctx context.Context, fd int) (string, error) {
	f := pollableFile(fd, "portal-selection")
	if f == nil {
		return "", errors.New("portal returned an invalid file descriptor")
	}
	type result struct {
		b   []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		b, err := io.ReadAll(io.LimitReader(f, maxSelectionBytes))
		done <- result{b, err}
	}()
	select {
	case <-ctx.Done():
		// Closing a pollable file unblocks the reader.
		f.Close()
		select {
		case <-done:
		case <-time.After(readerGrace):
		}
		return "", ctx.Err()
	case r := <-done:
		f.Close()
		if r.err != nil {
			return "", fmt.Errorf("read portal selection: %w", r.err)
		}
		return string(r.b), nil
	}
}
