package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"swiftlingo/src/translate"
)

// stub is a scripted provider. Each Translate call pops the next outcome.
type stub struct {
	name     string
	supports bool
	mu       sync.Mutex
	calls    int
	outcomes []stubOutcome
	block    chan struct{}
	log      *callLog
}

type stubOutcome struct {
	text     string
	detected string
	err      error
}

type callLog struct {
	mu    sync.Mutex
	order []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = append(l.order, name)
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.order...)
}

func (s *stub) Name() string { return s.name }

func (s *stub) Supports(translate.LanguagePair) bool { return s.supports }

func (s *stub) Translate(ctx context.Context, req translate.Request, _ time.Duration) (translate.Result, error) {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	s.mu.Unlock()
	if s.log != nil {
		s.log.add(s.name)
	}
	if s.block != nil {
		<-s.block
	}
	out := s.outcomes[len(s.outcomes)-1]
	if idx < len(s.outcomes) {
		out = s.outcomes[idx]
	}
	if out.err != nil {
		return translate.Result{}, out.err
	}
	return translate.Result{Text: out.text, SourceLanguage: translate.ResolveSource(req, out.detected), Provider: s.name}, nil
}

func (s *stub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func ok(text, detected string) stubOutcome { return stubOutcome{text: text, detected: detected} }

func fail(name string, kind translate.ErrorKind) stubOutcome {
	return stubOutcome{err: translate.NewProviderError(name, kind, "scripted")}
}

func chainOf(t *testing.T, providers ...*stub) translate.Chain {
	t.Helper()
	entries := make([]translate.Entry, 0, len(providers))
	for i, p := range providers {
		entries = append(entries, translate.Entry{
			Config:   translate.ProviderConfig{ID: p.name, Rank: i + 1, Enabled: true, Timeout: time.Second},
			Provider: p,
		})
	}
	chain, err := translate.NewChain(entries)
	require.NoError(t, err)
	return chain
}

func newRequest(t *testing.T, text, target string) translate.Request {
	t.Helper()
	span, err := translate.NewTextSpan(text, time.Now())
	require.NoError(t, err)
	req, err := translate.NewRequest(span, "", target)
	require.NoError(t, err)
	return req
}

func TestRoundTrip(t *testing.T) {
	s := &stub{name: "stub", supports: true, outcomes: []stubOutcome{ok("bonjour", "en")}}
	res, err := New(Options{}).Run(context.Background(), newRequest(t, "hello", "fr"), chainOf(t, s))
	require.NoError(t, err)
	require.Equal(t, "bonjour", res.Text)
	require.Equal(t, "en", res.SourceLanguage)
	require.Equal(t, "stub", res.Provider)
}

func TestFirstSuccessWins(t *testing.T) {
	log := &callLog{}
	a := &stub{name: "a", supports: true, log: log, outcomes: []stubOutcome{fail("a", translate.KindUnreachable)}}
	b := &stub{name: "b", supports: false, log: log, outcomes: []stubOutcome{ok("never", "")}}
	c := &stub{name: "c", supports: true, log: log, outcomes: []stubOutcome{fail("c", translate.KindMalformed)}}
	d := &stub{name: "d", supports: true, log: log, outcomes: []stubOutcome{ok("hallo", "en")}}
	e := &stub{name: "e", supports: true, log: log, outcomes: []stubOutcome{ok("after", "")}}

	res, err := New(Options{}).Run(context.Background(), newRequest(t, "hello", "de"), chainOf(t, a, b, c, d, e))
	require.NoError(t, err)
	require.Equal(t, "hallo", res.Text)
	require.Equal(t, "d", res.Provider)
	require.Equal(t, []string{"a", "c", "d"}, log.get())
	require.Zero(t, b.callCount())
	require.Zero(t, e.callCount())
}

func TestAllFail(t *testing.T) {
	a := &stub{name: "a", supports: true, outcomes: []stubOutcome{fail("a", translate.KindAuthMissing)}}
	b := &stub{name: "b", supports: false}
	c := &stub{name: "c", supports: true, outcomes: []stubOutcome{{err: errors.New("dial tcp: refused")}}}

	_, err := New(Options{}).Run(context.Background(), newRequest(t, "hello", "de"), chainOf(t, a, b, c))
	require.ErrorIs(t, err, translate.ErrAllProvidersFailed)

	var failure *translate.Failure
	require.ErrorAs(t, err, &failure)
	require.Len(t, failure.Attempts, 2)
	require.Equal(t, "a", failure.Attempts[0].Provider)
	require.Equal(t, translate.KindAuthMissing, failure.Attempts[0].Kind)
	require.Equal(t, "c", failure.Attempts[1].Provider)
	require.Equal(t, translate.KindUnreachable, failure.Attempts[1].Kind)
	require.Equal(t, []string{"b"}, failure.Skipped)
}

func TestDisabledProvidersAreSkipped(t *testing.T) {
	a := &stub{name: "a", supports: true, outcomes: []stubOutcome{ok("x", "")}}
	b := &stub{name: "b", supports: true, outcomes: []stubOutcome{ok("y", "")}}
	chain, err := translate.NewChain([]translate.Entry{
		{Config: translate.ProviderConfig{ID: "a", Rank: 1}, Provider: a},
		{Config: translate.ProviderConfig{ID: "b", Rank: 2, Enabled: true}, Provider: b},
	})
	require.NoError(t, err)

	res, err := New(Options{}).Run(context.Background(), newRequest(t, "hello", "de"), chain)
	require.NoError(t, err)
	require.Equal(t, "y", res.Text)
	require.Zero(t, a.callCount())
}

func TestRateLimitOverThresholdFailsOver(t *testing.T) {
	limited := &translate.ProviderError{Provider: "a", Kind: translate.KindRateLimited, RetryAfter: 60 * time.Second}
	a := &stub{name: "a", supports: true, outcomes: []stubOutcome{{err: limited}}}
	b := &stub{name: "b", supports: true, outcomes: []stubOutcome{ok("hola", "en")}}

	o := New(Options{MaxRateLimitWait: 5 * time.Second})
	o.sleep = func(context.Context, time.Duration) error {
		t.Fatal("a 60s retry-after must not be awaited")
		return nil
	}

	res, err := o.Run(context.Background(), newRequest(t, "hello", "es"), chainOf(t, a, b))
	require.NoError(t, err)
	require.Equal(t, "hola", res.Text)
	require.Equal(t, "b", res.Provider)
	require.Equal(t, 1, a.callCount())
}

func TestRateLimitWithinThresholdRetriesOnce(t *testing.T) {
	limited := &translate.ProviderError{Provider: "a", Kind: translate.KindRateLimited, RetryAfter: 2 * time.Second}
	a := &stub{name: "a", supports: true, outcomes: []stubOutcome{{err: limited}, ok("ciao", "en")}}

	var waited time.Duration
	o := New(Options{MaxRateLimitWait: 5 * time.Second})
	o.sleep = func(_ context.Context, d time.Duration) error {
		waited = d
		return nil
	}

	res, err := o.Run(context.Background(), newRequest(t, "hello", "it"), chainOf(t, a))
	require.NoError(t, err)
	require.Equal(t, "ciao", res.Text)
	require.Equal(t, 2*time.Second, waited)
	require.Equal(t, 2, a.callCount())
}

func TestRateLimitRetryStillLimitedRecordsOnce(t *testing.T) {
	limited := &translate.ProviderError{Provider: "a", Kind: translate.KindRateLimited, RetryAfter: time.Second}
	a := &stub{name: "a", supports: true, outcomes: []stubOutcome{{err: limited}}}

	o := New(Options{})
	o.sleep = func(context.Context, time.Duration) error { return nil }

	_, err := o.Run(context.Background(), newRequest(t, "hello", "it"), chainOf(t, a))
	var failure *translate.Failure
	require.ErrorAs(t, err, &failure)
	require.Len(t, failure.Attempts, 1)
	require.Equal(t, translate.KindRateLimited, failure.Attempts[0].Kind)
	require.Equal(t, 2, a.callCount())
}

func TestCancelledBeforeStartMakesNoCalls(t *testing.T) {
	a := &stub{name: "a", supports: true, outcomes: []stubOutcome{ok("x", "")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}).Run(ctx, newRequest(t, "hello", "de"), chainOf(t, a))
	require.ErrorIs(t, err, ErrCancelled)
	require.Zero(t, a.callCount())
}

func TestCancelDuringAttemptDiscardsResult(t *testing.T) {
	release := make(chan struct{})
	a := &stub{name: "a", supports: true, block: release, outcomes: []stubOutcome{ok("late", "")}}
	b := &stub{name: "b", supports: true, outcomes: []stubOutcome{ok("never", "")}}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := New(Options{}).Run(ctx, newRequest(t, "hello", "de"), chainOf(t, a, b))
		errc <- err
	}()

	require.Eventually(t, func() bool { return a.callCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errc, ErrCancelled)
	close(release)
	require.Zero(t, b.callCount())
}

func TestCancelDuringRateLimitWait(t *testing.T) {
	limited := &translate.ProviderError{Provider: "a", Kind: translate.KindRateLimited, RetryAfter: time.Second}
	a := &stub{name: "a", supports: true, outcomes: []stubOutcome{{err: limited}}}
	b := &stub{name: "b", supports: true, outcomes: []stubOutcome{ok("never", "")}}

	ctx, cancel := context.WithCancel(context.Background())
	o := New(Options{})
	o.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepCtx(ctx, d)
	}

	_, err := o.Run(ctx, newRequest(t, "hello", "de"), chainOf(t, a, b))
	require.ErrorIs(t, err, ErrCancelled)
	require.Zero(t, b.callCount())
}

type panicky struct{}

func (panicky) Name() string                         { return "p" }
func (panicky) Supports(translate.LanguagePair) bool { return true }
func (panicky) Translate(context.Context, translate.Request, time.Duration) (translate.Result, error) {
	panic("boom")
}

func TestProviderPanicIsUnreachable(t *testing.T) {
	chain, err := translate.NewChain([]translate.Entry{
		{Config: translate.ProviderConfig{ID: "p", Rank: 1, Enabled: true}, Provider: panicky{}},
	})
	require.NoError(t, err)

	_, err = New(Options{}).Run(context.Background(), newRequest(t, "hello", "de"), chain)
	var failure *translate.Failure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, translate.KindUnreachable, failure.Attempts[0].Kind)
}
