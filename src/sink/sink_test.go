package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"swiftlingo/src/messages"
	"swiftlingo/src/singleinstance"
	"swiftlingo/src/translate"
)

type fakeConn struct {
	success []string
	errs    []string
	closed  bool
}

func (c *fakeConn) Request() singleinstance.Request { return singleinstance.Request{} }
func (c *fakeConn) RespondSuccess(text string) error {
	c.success = append(c.success, text)
	return nil
}
func (c *fakeConn) RespondError(msg string) error {
	c.errs = append(c.errs, msg)
	return nil
}
func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type fakeNotifier struct {
	titles, bodies []string
}

func (n *fakeNotifier) Notify(_ context.Context, title, body string) error {
	n.titles = append(n.titles, title)
	n.bodies = append(n.bodies, body)
	return nil
}
func (n *fakeNotifier) Close() error { return nil }

func delivered(text string) messages.Delivered {
	return messages.Delivered{
		Seq:    1,
		Action: "translate",
		Target: "fr",
		Result: translate.Result{Text: text, SourceLanguage: "en", Provider: "stub", Latency: 12 * time.Millisecond},
	}
}

func failed() messages.Failed {
	return messages.Failed{Seq: 2, Failure: &translate.Failure{Attempts: []translate.Attempt{
		{Provider: "a", Kind: translate.KindRateLimited, Message: "slow down"},
		{Provider: "b", Kind: translate.KindUnreachable},
	}}}
}

func TestClipboardWritesOnlyDelivered(t *testing.T) {
	var written []string
	c := Clipboard{Write: func(s string) error { written = append(written, s); return nil }}

	require.NoError(t, c.Deliver(context.Background(), delivered("bonjour")))
	require.NoError(t, c.Deliver(context.Background(), failed()))
	require.Equal(t, []string{"bonjour"}, written)
}

func TestNotifySkipsSilentAborts(t *testing.T) {
	n := &fakeNotifier{}
	s := Notify{Notifier: n}
	ctx := context.Background()

	require.NoError(t, s.Deliver(ctx, messages.Aborted{Reason: messages.AbortNoSelection}))
	require.Empty(t, n.titles)

	require.NoError(t, s.Deliver(ctx, messages.Aborted{Reason: messages.AbortBusy, Err: messages.ErrBusy}))
	require.NoError(t, s.Deliver(ctx, delivered("bonjour")))
	require.NoError(t, s.Deliver(ctx, failed()))
	require.Len(t, n.titles, 3)
	require.Equal(t, "Busy, please retry", n.bodies[0])
	require.Equal(t, "bonjour", n.bodies[1])
	require.Contains(t, n.titles[1], "stub")
	require.Equal(t, "a: RateLimited (slow down)\nb: Unreachable", n.bodies[2])
}

func TestDelegatedResponses(t *testing.T) {
	ctx := context.Background()

	t.Run("stdout", func(t *testing.T) {
		conn := &fakeConn{}
		require.NoError(t, Delegated{Conn: conn, OutputToStdout: true}.Deliver(ctx, delivered("hola")))
		require.Equal(t, []string{"hola"}, conn.success)
		require.True(t, conn.closed)
	})

	t.Run("clipboard", func(t *testing.T) {
		conn := &fakeConn{}
		var written string
		d := Delegated{Conn: conn, Write: func(s string) error { written = s; return nil }}
		require.NoError(t, d.Deliver(ctx, delivered("hola")))
		require.Equal(t, "hola", written)
		require.Equal(t, []string{""}, conn.success)
	})

	t.Run("clipboard error", func(t *testing.T) {
		conn := &fakeConn{}
		d := Delegated{Conn: conn, Write: func(string) error { return errors.New("no display") }}
		require.Error(t, d.Deliver(ctx, delivered("hola")))
		require.Len(t, conn.errs, 1)
		require.Contains(t, conn.errs[0], "no display")
	})

	t.Run("silent abort still answered", func(t *testing.T) {
		conn := &fakeConn{}
		require.NoError(t, Delegated{Conn: conn}.Deliver(ctx, messages.Aborted{Reason: messages.AbortNoSelection}))
		require.Equal(t, []string{"No text selected"}, conn.errs)
		require.True(t, conn.closed)
	})

	t.Run("failure", func(t *testing.T) {
		conn := &fakeConn{}
		require.NoError(t, Delegated{Conn: conn}.Deliver(ctx, failed()))
		require.Equal(t, []string{"a: RateLimited (slow down); b: Unreachable"}, conn.errs)
	})
}

func TestStdout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Stdout{Writer: &buf}.Deliver(context.Background(), delivered("bonjour")))
	require.Equal(t, "bonjour\n", buf.String())

	buf.Reset()
	require.NoError(t, Stdout{Writer: &buf, JSON: true}.Deliver(context.Background(), delivered("bonjour")))
	var got JSONResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, JSONResult{Text: "bonjour", SourceLanguage: "en", TargetLanguage: "fr", Provider: "stub", LatencyMS: 12}, got)
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	m := Multi{
		Func(func(context.Context, messages.Message) error { calls++; return boom }),
		nil,
		Func(func(context.Context, messages.Message) error { calls++; return nil }),
	}
	err := m.Deliver(context.Background(), delivered("x"))
	require.ErrorIs(t, err, boom)
	require.Equal(t, 2, calls)
}
