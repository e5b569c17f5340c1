package eventloop

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"swiftlingo/src/capture"
	"swiftlingo/src/hotkey"
	"swiftlingo/src/messages"
	"swiftlingo/src/orchestrator"
	"swiftlingo/src/singleinstance"
	"swiftlingo/src/sink"
	"swiftlingo/src/translate"
	"swiftlingo/src/worker"
)

type fakeCapture struct {
	mu      sync.Mutex
	calls   int
	started chan int
	fn      func(ctx context.Context, call int) (translate.TextSpan, error)
}

func newFakeCapture(fn func(ctx context.Context, call int) (translate.TextSpan, error)) *fakeCapture {
	return &fakeCapture{started: make(chan int, 16), fn: fn}
}

func (c *fakeCapture) Capture(ctx context.Context) (translate.TextSpan, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()
	c.started <- n
	return c.fn(ctx, n)
}

func (c *fakeCapture) Close() error { return nil }

type stubProvider struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (p *stubProvider) Name() string                         { return "stub" }
func (p *stubProvider) Supports(translate.LanguagePair) bool { return true }
func (p *stubProvider) Translate(_ context.Context, req translate.Request, _ time.Duration) (translate.Result, error) {
	p.mu.Lock()
	p.texts = append(p.texts, req.Text())
	p.mu.Unlock()
	if p.err != nil {
		return translate.Result{}, p.err
	}
	return translate.Result{Text: "tr:" + req.Text(), SourceLanguage: "en", Provider: "stub"}, nil
}

func (p *stubProvider) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

type recorder struct {
	mu      sync.Mutex
	records []translate.TextSpan
}

func (r *recorder) Record(span translate.TextSpan, _ string, _ *translate.Result, _ *translate.Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, span)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func span(t *testing.T, text string) translate.TextSpan {
	t.Helper()
	s, err := translate.NewTextSpan(text, time.Now())
	require.NoError(t, err)
	return s
}

type harness struct {
	loop     *Loop
	provider *stubProvider
	history  *recorder
	out      chan messages.Message
	cancel   context.CancelFunc
	done     chan error
}

func newHarness(t *testing.T, c capture.Adapter, workers int, srv singleinstance.Server) *harness {
	t.Helper()
	h := &harness{
		provider: &stubProvider{},
		history:  &recorder{},
		out:      make(chan messages.Message, 16),
		done:     make(chan error, 1),
	}
	chain, err := translate.NewChain([]translate.Entry{{
		Config:   translate.ProviderConfig{ID: "stub", Kind: "stub", Rank: 1, Enabled: true},
		Provider: h.provider,
	}})
	require.NoError(t, err)

	collect := sink.Func(func(_ context.Context, msg messages.Message) error {
		h.out <- msg
		return nil
	})
	h.loop = New(Options{
		Capture:      c,
		Orchestrator: orchestrator.New(orchestrator.Options{}),
		Snapshot:     func() Snapshot { return Snapshot{Chain: chain, Target: "fr"} },
		Pool:         worker.New(workers),
		Sinks: map[hotkey.Action]sink.Sink{
			hotkey.ActionTranslate: collect,
		},
		DelegatedSink: func(d sink.Sink) sink.Sink { return sink.Multi{d, collect} },
		History:       h.history,
		Server:        srv,
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func (h *harness) next(t *testing.T) messages.Message {
	t.Helper()
	select {
	case msg := <-h.out:
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("no event delivered to the sink")
		return nil
	}
}

func (h *harness) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case msg := <-h.out:
		t.Fatalf("unexpected event %s: %+v", msg.Type(), msg)
	case <-time.After(d):
	}
}

func waitStarted(t *testing.T, c *fakeCapture) int {
	t.Helper()
	select {
	case n := <-c.started:
		return n
	case <-time.After(3 * time.Second):
		t.Fatal("capture not started")
		return 0
	}
}

func TestDeliversTranslationAndRecordsHistory(t *testing.T) {
	c := newFakeCapture(func(context.Context, int) (translate.TextSpan, error) { return span(t, "hello"), nil })
	h := newHarness(t, c, 2, nil)

	h.loop.Trigger(context.Background(), hotkey.ActionTranslate)
	msg := h.next(t)

	d, ok := msg.(messages.Delivered)
	require.True(t, ok, "got %T", msg)
	require.Equal(t, "tr:hello", d.Result.Text)
	require.Equal(t, "fr", d.Target)
	require.Equal(t, uint64(1), d.Seq)
	require.Eventually(t, func() bool { return h.history.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestSecondTriggerSupersedesFirst(t *testing.T) {
	gate := make(chan struct{})
	c := newFakeCapture(func(_ context.Context, n int) (translate.TextSpan, error) {
		if n == 1 {
			// The first owner answers late and ignores cancellation.
			<-gate
			return span(t, "first"), nil
		}
		return span(t, "second"), nil
	})
	h := newHarness(t, c, 2, nil)

	h.loop.Trigger(context.Background(), hotkey.ActionTranslate)
	require.Equal(t, 1, waitStarted(t, c))
	h.loop.Trigger(context.Background(), hotkey.ActionTranslate)

	msg := h.next(t)
	d, ok := msg.(messages.Delivered)
	require.True(t, ok, "got %T", msg)
	require.Equal(t, uint64(2), d.Seq)
	require.Equal(t, "tr:second", d.Result.Text)

	close(gate)
	h.quiet(t, 200*time.Millisecond)

	// The superseded run was cancelled before translating: no provider call.
	require.Equal(t, []string{"second"}, h.provider.calls())
	require.Equal(t, 1, h.history.count())
}

func TestNoSelectionAbortsWithoutNetwork(t *testing.T) {
	for name, err := range map[string]error{
		"no owner":   capture.ErrNoSelection,
		"whitespace": translate.ErrEmptySpan,
	} {
		t.Run(name, func(t *testing.T) {
			c := newFakeCapture(func(context.Context, int) (translate.TextSpan, error) { return translate.TextSpan{}, err })
			h := newHarness(t, c, 1, nil)

			h.loop.Trigger(context.Background(), hotkey.ActionTranslate)
			msg := h.next(t)
			a, ok := msg.(messages.Aborted)
			require.True(t, ok, "got %T", msg)
			require.Equal(t, messages.AbortNoSelection, a.Reason)
			require.True(t, a.Silent())
			require.Empty(t, h.provider.calls())
			require.Zero(t, h.history.count())
		})
	}
}

func TestCaptureErrorsMapToAbortReasons(t *testing.T) {
	require.Equal(t, messages.AbortTimeout, abortReason(capture.ErrTimeout))
	require.Equal(t, messages.AbortDenied, abortReason(capture.ErrPlatformDenied))
	require.Equal(t, messages.AbortCaptureFailed, abortReason(capture.ErrPlatformUnsupported))
}

func TestFailureIsDeliveredAndRecorded(t *testing.T) {
	c := newFakeCapture(func(context.Context, int) (translate.TextSpan, error) { return span(t, "hello"), nil })
	h := newHarness(t, c, 1, nil)
	h.provider.err = translate.NewProviderError("stub", translate.KindUnreachable, "down")

	h.loop.Trigger(context.Background(), hotkey.ActionTranslate)
	msg := h.next(t)
	f, ok := msg.(messages.Failed)
	require.True(t, ok, "got %T", msg)
	require.Len(t, f.Failure.Attempts, 1)
	require.Equal(t, translate.KindUnreachable, f.Failure.Attempts[0].Kind)
	require.Eventually(t, func() bool { return h.history.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestSaturatedPoolRunsLatestTrigger(t *testing.T) {
	gate := make(chan struct{})
	c := newFakeCapture(func(_ context.Context, n int) (translate.TextSpan, error) {
		if n == 1 {
			// The only worker is held by an owner that ignores cancellation.
			<-gate
			return span(t, "first"), nil
		}
		return span(t, fmt.Sprintf("run %d", n)), nil
	})
	h := newHarness(t, c, 1, nil)

	h.loop.Trigger(context.Background(), hotkey.ActionTranslate)
	require.Equal(t, 1, waitStarted(t, c))
	// The second run takes the queue slot; the third replaces it.
	h.loop.Trigger(context.Background(), hotkey.ActionTranslate)
	h.loop.Trigger(context.Background(), hotkey.ActionTranslate)
	h.quiet(t, 100*time.Millisecond)
	close(gate)

	msg := h.next(t)
	d, ok := msg.(messages.Delivered)
	require.True(t, ok, "got %T: %+v", msg, msg)
	require.Equal(t, uint64(3), d.Seq)
	require.Equal(t, "tr:run 2", d.Result.Text)
	h.quiet(t, 200*time.Millisecond)

	// The evicted second run never captured; the first was cancelled
	// before translating.
	require.Equal(t, []string{"run 2"}, h.provider.calls())
	require.Equal(t, 1, h.history.count())
}

func TestClosedPoolAbortsBusy(t *testing.T) {
	c := newFakeCapture(func(context.Context, int) (translate.TextSpan, error) { return span(t, "hello"), nil })
	h := newHarness(t, c, 1, nil)
	h.loop.opts.Pool.Close()

	h.loop.Trigger(context.Background(), hotkey.ActionTranslate)
	msg := h.next(t)
	a, ok := msg.(messages.Aborted)
	require.True(t, ok, "got %T", msg)
	require.Equal(t, messages.AbortBusy, a.Reason)
	require.False(t, a.Silent())
	require.Empty(t, h.provider.calls())
}

func TestWhitespaceSpanFromAdapterIsSilent(t *testing.T) {
	c := newFakeCapture(func(context.Context, int) (translate.TextSpan, error) {
		return translate.TextSpan{Content: "   \n", CapturedAt: time.Now()}, nil
	})
	h := newHarness(t, c, 1, nil)

	h.loop.Trigger(context.Background(), hotkey.ActionTranslate)
	msg := h.next(t)
	a, ok := msg.(messages.Aborted)
	require.True(t, ok, "got %T", msg)
	require.Equal(t, messages.AbortNoSelection, a.Reason)
	require.True(t, a.Silent())
	require.Empty(t, h.provider.calls())
}

func TestSlowSinkDoesNotStallTriggers(t *testing.T) {
	c := newFakeCapture(func(_ context.Context, n int) (translate.TextSpan, error) {
		return span(t, fmt.Sprintf("run %d", n)), nil
	})
	chain, err := translate.NewChain([]translate.Entry{{
		Config:   translate.ProviderConfig{ID: "stub", Kind: "stub", Rank: 1, Enabled: true},
		Provider: &stubProvider{},
	}})
	require.NoError(t, err)

	release := make(chan struct{})
	entered := make(chan uint64, 4)
	slow := sink.Func(func(_ context.Context, msg messages.Message) error {
		d := msg.(messages.Delivered)
		entered <- d.Seq
		if d.Seq == 1 {
			<-release
		}
		return nil
	})
	loop := New(Options{
		Capture:  c,
		Snapshot: func() Snapshot { return Snapshot{Chain: chain, Target: "fr"} },
		Pool:     worker.New(1),
		Sinks:    map[hotkey.Action]sink.Sink{hotkey.ActionTranslate: slow},
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	loop.Trigger(ctx, hotkey.ActionTranslate)
	require.Equal(t, 1, waitStarted(t, c))
	require.Equal(t, uint64(1), <-entered)

	// The first delivery is stuck in its sink; the next trigger still runs.
	loop.Trigger(ctx, hotkey.ActionTranslate)
	require.Equal(t, 2, waitStarted(t, c))
	close(release)
	select {
	case seq := <-entered:
		require.Equal(t, uint64(2), seq)
	case <-time.After(3 * time.Second):
		t.Fatal("second run not delivered")
	}
}

type fakeServer struct {
	conns chan singleinstance.Conn
}

func (s *fakeServer) Start(context.Context) error { return nil }
func (s *fakeServer) Port() int                   { return 0 }
func (s *fakeServer) Close() error                { return nil }
func (s *fakeServer) Next(ctx context.Context) (singleinstance.Conn, error) {
	select {
	case c := <-s.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type fakeConn struct {
	req    singleinstance.Request
	result chan string
}

func (c *fakeConn) Request() singleinstance.Request { return c.req }
func (c *fakeConn) RespondSuccess(text string) error {
	c.result <- "ok:" + text
	return nil
}
func (c *fakeConn) RespondError(msg string) error {
	c.result <- "err:" + msg
	return nil
}
func (c *fakeConn) Close() error { return nil }

func TestRunOnceAnswersConnection(t *testing.T) {
	c := newFakeCapture(func(context.Context, int) (translate.TextSpan, error) { return span(t, "hello"), nil })
	srv := &fakeServer{conns: make(chan singleinstance.Conn, 1)}
	h := newHarness(t, c, 1, srv)

	conn := &fakeConn{
		req:    singleinstance.Request{Kind: singleinstance.RequestRunOnce, Action: "translate", OutputToStdout: true},
		result: make(chan string, 2),
	}
	srv.conns <- conn

	_, ok := h.next(t).(messages.Delivered)
	require.True(t, ok)
	require.Equal(t, "ok:tr:hello", <-conn.result)
}

func TestRunOnceRejectsUnknownAction(t *testing.T) {
	c := newFakeCapture(func(context.Context, int) (translate.TextSpan, error) { return span(t, "hello"), nil })
	srv := &fakeServer{conns: make(chan singleinstance.Conn, 1)}
	newHarness(t, c, 1, srv)

	conn := &fakeConn{
		req:    singleinstance.Request{Kind: singleinstance.RequestRunOnce, Action: "explode"},
		result: make(chan string, 1),
	}
	srv.conns <- conn
	select {
	case got := <-conn.result:
		require.Contains(t, got, "err:")
	case <-time.After(3 * time.Second):
		t.Fatal("no response")
	}
}
