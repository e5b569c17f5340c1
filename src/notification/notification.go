package notification

import (
	"context"
	"os"
	"strings"
	"unicode/utf8"

	"swiftlingo/src/logutil"
)

// MaxBodyRunes caps notification bodies; longer text is truncated with "...".
const MaxBodyRunes = 200

// Notifier shows a transient desktop notification.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
	Close() error
}

// New picks the notification backend: the notification portal inside a
// Flatpak sandbox, the session-bus Notifications service otherwise, and the
// log when neither is reachable.
func New(appName string) Notifier {
	if Sandboxed(os.Getenv) {
		return NewPortal()
	}
	n, err := NewDBus(appName)
	if err != nil {
		logutil.L().Warn("notifications: session bus unavailable, logging only", logutil.Error(err))
		return Log{}
	}
	return n
}

// Sandboxed reports whether the process runs inside Flatpak.
func Sandboxed(getenv func(string) string) bool {
	if getenv("FLATPAK_ID") != "" {
		return true
	}
	_, err := os.Stat("/.flatpak-info")
	return err == nil
}

// Truncate shortens text to MaxBodyRunes runes.
func Truncate(text string) string {
	if utf8.RuneCountInString(text) <= MaxBodyRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimRightFunc(string(runes[:MaxBodyRunes]), isSpace) + "..."
}

func isSpace(r rune) bool { return r == ' ' || r == '\n' || r == '\t' || r == '\r' }

// Log writes notifications to the log. It is the fallback backend.
type Log struct{}

func (Log) Notify(_ context.Context, title, body string) error {
	logutil.L().Info("notification", logutil.String("title", title),
		logutil.String("body", logutil.Sanitize(body)))
	return nil
}

func (Log) Close() error { return nil }

// ShowBlockingError reports a startup error that stops the program. It tries
// a desktop notification and always logs.
func ShowBlockingError(title, message string) {
	logutil.L().Error(title, logutil.String("detail", message))
	n := New("SwiftLingo")
	defer n.Close()
	if _, ok := n.(Log); ok {
		return
	}
	_ = n.Notify(context.Background(), title, Truncate(message))
}
