// Package orchestrator drives a rank-ordered provider chain until one
// provider succeeds or every provider has failed.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"swiftlingo/src/logutil"
	"swiftlingo/src/translate"
)

// ErrCancelled is returned when the owning run was cancelled. No result of an
// attempt that finishes afterwards is ever returned.
var ErrCancelled = errors.New("translation run cancelled")

// DefaultMaxRateLimitWait is the longest retry-after hint that is awaited.
const DefaultMaxRateLimitWait = 5 * time.Second

type Options struct {
	// MaxRateLimitWait is the "too slow to wait" threshold. A RateLimited
	// provider hinting a longer wait fails immediately for the run. Zero
	// selects DefaultMaxRateLimitWait; a negative value never waits.
	MaxRateLimitWait time.Duration
}

// Orchestrator is stateless between runs and safe for concurrent use.
type Orchestrator struct {
	maxWait time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(opts Options) *Orchestrator {
	maxWait := opts.MaxRateLimitWait
	if maxWait == 0 {
		maxWait = DefaultMaxRateLimitWait
	}
	return &Orchestrator{maxWait: maxWait, sleep: sleepCtx}
}

// MaxRateLimitWait returns the effective threshold.
func (o *Orchestrator) MaxRateLimitWait() time.Duration { return o.maxWait }

// Run tries chain entries in rank order. Disabled entries and entries whose
// Supports rejects the pair are skipped without a network call. The first
// success is returned; if every attempted provider fails the error is a
// *translate.Failure with one entry per attempted provider in attempt order.
// Cancellation of ctx is observed before every attempt and while an attempt
// is in flight; it yields ErrCancelled.
func (o *Orchestrator) Run(ctx context.Context, req translate.Request, chain translate.Chain) (translate.Result, error) {
	logger := logutil.FromContext(ctx)
	pair := req.Pair()
	failure := &translate.Failure{}

	for _, entry := range chain.Entries() {
		if ctx.Err() != nil {
			return translate.Result{}, ErrCancelled
		}
		id := entry.Config.ID
		if !entry.Config.Enabled || !entry.Provider.Supports(pair) {
			failure.Skipped = append(failure.Skipped, id)
			logger.Debug("provider skipped", logutil.String("provider", id),
				logutil.Bool("enabled", entry.Config.Enabled))
			continue
		}

		res, err := o.attempt(ctx, entry, req)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, ErrCancelled) {
			return translate.Result{}, ErrCancelled
		}

		pe := translate.AsProviderError(id, err)
		if o.shouldWait(pe) {
			logger.Info("provider rate limited, waiting",
				logutil.String("provider", id), logutil.Duration("retry_after", pe.RetryAfter))
			if err := o.sleep(ctx, pe.RetryAfter); err != nil {
				return translate.Result{}, ErrCancelled
			}
			res, err = o.attempt(ctx, entry, req)
			if err == nil {
				return res, nil
			}
			if errors.Is(err, ErrCancelled) {
				return translate.Result{}, ErrCancelled
			}
			pe = translate.AsProviderError(id, err)
		}

		logger.Warn("provider failed", logutil.String("provider", id),
			logutil.String("kind", pe.Kind.String()), logutil.String("message", pe.Message))
		failure.Record(pe)
	}

	logger.Warn("all providers failed", logutil.Int("attempted", len(failure.Attempts)),
		logutil.Strings("skipped", failure.Skipped))
	return translate.Result{}, failure
}

func (o *Orchestrator) shouldWait(pe *translate.ProviderError) bool {
	return pe.Kind == translate.KindRateLimited &&
		pe.RetryAfter > 0 &&
		o.maxWait > 0 &&
		pe.RetryAfter <= o.maxWait
}

type outcome struct {
	res translate.Result
	err error
}

// attempt runs one provider call. The call runs on a context detached from
// the run's cancellation and bounded by the provider timeout, so a
// superseded run never tears down a request mid-flight; its result is
// dropped instead.
func (o *Orchestrator) attempt(ctx context.Context, entry translate.Entry, req translate.Request) (translate.Result, error) {
	timeout := entry.Config.EffectiveTimeout()
	callCtx, cancel := context.WithTimeout(
		logutil.WithProvider(context.WithoutCancel(ctx), entry.Config.ID), timeout)

	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: translate.NewProviderError(entry.Config.ID,
					translate.KindUnreachable, "provider panicked: %v", r)}
			}
		}()
		res, err := entry.Provider.Translate(callCtx, req, timeout)
		done <- outcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		logutil.FromContext(ctx).Debug("run cancelled with attempt in flight",
			logutil.String("provider", entry.Config.ID))
		return translate.Result{}, ErrCancelled
	case out := <-done:
		if ctx.Err() != nil {
			return translate.Result{}, ErrCancelled
		}
		if out.err != nil {
			return translate.Result{}, out.err
		}
		if out.res.Provider == "" {
			out.res.Provider = entry.Config.ID
		}
		if out.res.Latency == 0 {
			out.res.Latency = time.Since(start)
		}
		return out.res, nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
