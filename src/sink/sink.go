// Package sink holds the result targets a pipeline run delivers its
// terminal event to.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"swiftlingo/src/clipboard"
	"swiftlingo/src/logutil"
	"swiftlingo/src/messages"
	"swiftlingo/src/notification"
	"swiftlingo/src/singleinstance"
	"swiftlingo/src/translate"
)

// Sink receives Delivered, Failed and Aborted events.
type Sink interface {
	Deliver(ctx context.Context, msg messages.Message) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, msg messages.Message) error

func (f Func) Deliver(ctx context.Context, msg messages.Message) error { return f(ctx, msg) }

// Multi delivers to every sink in order and joins their errors.
type Multi []Sink

func (m Multi) Deliver(ctx context.Context, msg messages.Message) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Deliver(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log records every event.
type Log struct{}

func (Log) Deliver(ctx context.Context, msg messages.Message) error {
	logger := logutil.FromContext(ctx)
	switch m := msg.(type) {
	case messages.Delivered:
		logger.Info("translation delivered",
			logutil.String("provider", m.Result.Provider),
			logutil.String("source_lang", m.Result.SourceLanguage),
			logutil.String("target_lang", m.Target),
			logutil.Duration("latency", m.Result.Latency),
			logutil.String("text", logutil.Sanitize(m.Result.Text)))
	case messages.Failed:
		logger.Warn("translation failed", logutil.Error(m.Failure))
	case messages.Aborted:
		if m.Silent() {
			logger.Info("run aborted", logutil.String("reason", string(m.Reason)))
		} else {
			logger.Warn("run aborted", logutil.String("reason", string(m.Reason)), logutil.Error(m.Err))
		}
	}
	return nil
}

// Clipboard replaces the clipboard content with the translation.
type Clipboard struct {
	// Write defaults to clipboard.Write.
	Write func(text string) error
}

func (c Clipboard) Deliver(_ context.Context, msg messages.Message) error {
	m, ok := msg.(messages.Delivered)
	if !ok {
		return nil
	}
	write := c.Write
	if write == nil {
		write = clipboard.Write
	}
	if err := write(m.Result.Text); err != nil {
		return fmt.Errorf("clipboard error: %w", err)
	}
	return nil
}

// Notify shows a desktop notification. Silent aborts are not shown.
type Notify struct {
	Notifier notification.Notifier
}

func (n Notify) Deliver(ctx context.Context, msg messages.Message) error {
	if n.Notifier == nil {
		return nil
	}
	title, body, ok := Render(msg)
	if !ok {
		return nil
	}
	return n.Notifier.Notify(ctx, title, body)
}

// Render turns an event into a notification title and body. ok is false for
// events that are not shown to the user.
func Render(msg messages.Message) (title, body string, ok bool) {
	switch m := msg.(type) {
	case messages.Delivered:
		src := m.Result.SourceLanguage
		if src == "" {
			src = translate.AutoLanguage
		}
		return fmt.Sprintf("%s → %s (%s)", src, m.Target, m.Result.Provider), m.Result.Text, true
	case messages.Failed:
		return "Translation failed", Describe(m.Failure), true
	case messages.Aborted:
		if m.Silent() {
			return "", "", false
		}
		return "Translation aborted", abortText(m), true
	}
	return "", "", false
}

// Describe lists the per-provider errors of a failure, one per line.
func Describe(f *translate.Failure) string {
	if f == nil {
		return translate.ErrAllProvidersFailed.Error()
	}
	return f.Summary("\n")
}

func abortText(m messages.Aborted) string {
	switch m.Reason {
	case messages.AbortBusy:
		return "Busy, please retry"
	case messages.AbortTimeout:
		return "The application owning the selection did not answer"
	case messages.AbortDenied:
		return "Access to the selection was denied"
	case messages.AbortNoSelection:
		return "No text selected"
	}
	if m.Err != nil {
		return m.Err.Error()
	}
	return string(m.Reason)
}

// Stdout prints the translation, as plain text or as one JSON object.
type Stdout struct {
	Writer io.Writer
	JSON   bool
}

// JSONResult is the shape printed by Stdout in JSON mode.
type JSONResult struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language"`
	Provider       string `json:"provider"`
	LatencyMS      int64  `json:"latency_ms"`
}

func (s Stdout) Deliver(_ context.Context, msg messages.Message) error {
	m, ok := msg.(messages.Delivered)
	if !ok {
		return nil
	}
	w := s.Writer
	if w == nil {
		w = os.Stdout
	}
	if s.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(JSONResult{
			Text:           m.Result.Text,
			SourceLanguage: m.Result.SourceLanguage,
			TargetLanguage: m.Target,
			Provider:       m.Result.Provider,
			LatencyMS:      m.Result.Latency.Milliseconds(),
		})
	}
	_, err := fmt.Fprintln(w, m.Result.Text)
	return err
}

// Delegated answers a run-once client waiting on the single-instance
// connection, then closes it. Every terminal event, silent or not, gets an
// answer.
type Delegated struct {
	Conn           singleinstance.Conn
	OutputToStdout bool
	// Write defaults to clipboard.Write; used when OutputToStdout is false.
	Write func(text string) error
}

func (t Delegated) Deliver(ctx context.Context, msg messages.Message) error {
	if t.Conn == nil {
		return errors.New("delegated target missing connection")
	}
	defer t.Conn.Close()

	switch m := msg.(type) {
	case messages.Delivered:
		if t.OutputToStdout {
			return t.Conn.RespondSuccess(m.Result.Text)
		}
		if err := (Clipboard{Write: t.Write}).Deliver(ctx, m); err != nil {
			_ = t.Conn.RespondError(err.Error())
			return err
		}
		return t.Conn.RespondSuccess("")
	case messages.Failed:
		if m.Failure == nil {
			return t.Conn.RespondError(translate.ErrAllProvidersFailed.Error())
		}
		return t.Conn.RespondError(m.Failure.Summary("; "))
	case messages.Aborted:
		return t.Conn.RespondError(abortText(m))
	}
	return t.Conn.RespondError("unknown session error")
}
