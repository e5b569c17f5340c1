package eventloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"swiftlingo/src/capture"
	"swiftlingo/src/hotkey"
	"swiftlingo/src/logutil"
	"swiftlingo/src/messages"
	"swiftlingo/src/orchestrator"
	"swiftlingo/src/singleinstance"
	"swiftlingo/src/sink"
	"swiftlingo/src/translate"
	"swiftlingo/src/worker"
)

// Snapshot is the configuration a run is started with. It is taken once per
// run and never changes underneath it.
type Snapshot struct {
	Chain  translate.Chain
	Source string
	Target string
}

// Recorder receives one record per completed, non-cancelled run. It must
// not block.
type Recorder interface {
	Record(span translate.TextSpan, target string, result *translate.Result, failure *translate.Failure)
}

// Options wires the coordinator.
type Options struct {
	Capture      capture.Adapter
	Orchestrator *orchestrator.Orchestrator
	// Snapshot is called on the loop goroutine when a run starts.
	Snapshot func() Snapshot
	Pool     *worker.Pool
	// Sinks maps each action to its result target.
	Sinks map[hotkey.Action]sink.Sink
	// DelegatedSink wraps the run-once target; nil means log plus the connection.
	DelegatedSink func(sink.Sink) sink.Sink
	History       Recorder
	// Server is optional; without it only hotkey triggers are handled.
	Server singleinstance.Server
	// IPC receives TRIGGER requests from the server.
	IPC *hotkey.IPC
}

// deliverTimeout bounds one sink delivery.
const deliverTimeout = 10 * time.Second

// Loop is the single-threaded coordinator. It is the only writer of the
// active run; workers post phase changes and outcomes back to it.
type Loop struct {
	opts     Options
	triggers chan hotkey.Trigger
	events   chan event
	done     chan struct{}
	// deliveries feeds the sink goroutine so a slow sink never stalls the loop.
	deliveries chan func()

	seq    uint64
	active *run
}

type run struct {
	seq    uint64
	action hotkey.Action
	target sink.Sink
	cancel context.CancelFunc
	phase  messages.Phase
	logger *zap.Logger
	// superseded answers the run's target when a newer run cancels it.
	superseded func()
}

type event struct {
	seq uint64
	// exactly one of phase and msg is set
	phase messages.Phase
	msg   messages.Message
}

// New creates a coordinator. Call Listen for each hotkey listener and then Run.
func New(opts Options) *Loop {
	if opts.Pool == nil {
		opts.Pool = worker.New(0)
	}
	if opts.Orchestrator == nil {
		opts.Orchestrator = orchestrator.New(orchestrator.Options{})
	}
	return &Loop{
		opts:       opts,
		triggers:   make(chan hotkey.Trigger, 8),
		events:     make(chan event, 16),
		done:       make(chan struct{}),
		deliveries: make(chan func(), 32),
	}
}

// Listen forwards the listener's triggers into the loop until the listener
// closes its channel or ctx ends.
func (l *Loop) Listen(ctx context.Context, li hotkey.Listener) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logutil.L().Error("PANIC in trigger forwarder", logutil.Any("panic", r))
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-li.Triggers():
				if !ok {
					return
				}
				select {
				case l.triggers <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

// Trigger starts a run for action as if its hotkey fired.
func (l *Loop) Trigger(ctx context.Context, action hotkey.Action) {
	select {
	case l.triggers <- hotkey.Trigger{Action: action}:
	case <-ctx.Done():
	}
}

// Run processes triggers, client requests and worker events. It blocks
// until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.opts.Pool.Close()
	defer close(l.done)

	drained := make(chan struct{})
	go l.deliverLoop(drained)
	defer func() {
		close(l.deliveries)
		<-drained
	}()

	var reqCh chan singleinstance.Conn
	if srv := l.opts.Server; srv != nil {
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer srv.Close()
		logutil.L().Info("resident listening", logutil.Int("port", srv.Port()))

		// Accept loop in background to avoid blocking result handling
		reqCh = make(chan singleinstance.Conn, 4)
		go func() {
			defer close(reqCh)
			for {
				conn, err := srv.Next(ctx)
				if err != nil {
					return
				}
				select {
				case reqCh <- conn:
				case <-ctx.Done():
					conn.Close()
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			if l.active != nil {
				l.active.cancel()
			}
			return ctx.Err()
		case t := <-l.triggers:
			l.handleTrigger(ctx, t)
		case conn, ok := <-reqCh:
			if !ok {
				reqCh = nil
				continue
			}
			l.handleConn(ctx, conn)
		case ev := <-l.events:
			l.handleEvent(ctx, ev)
		}
	}
}

func (l *Loop) handleTrigger(ctx context.Context, t hotkey.Trigger) {
	target, ok := l.opts.Sinks[t.Action]
	if !ok {
		logutil.L().Warn("trigger for unbound action", logutil.String("action", string(t.Action)))
		return
	}
	l.start(ctx, t.Action, target, nil)
}

func (l *Loop) handleConn(ctx context.Context, conn singleinstance.Conn) {
	req := conn.Request()
	action, err := hotkey.ParseAction(req.Action)
	if err != nil {
		_ = conn.RespondError(err.Error())
		_ = conn.Close()
		return
	}

	switch req.Kind {
	case singleinstance.RequestTrigger:
		l.handleRemoteTrigger(ctx, conn, action)
	case singleinstance.RequestRunOnce:
		delegated := sink.Delegated{Conn: conn, OutputToStdout: req.OutputToStdout}
		var target sink.Sink = sink.Multi{sink.Log{}, delegated}
		if l.opts.DelegatedSink != nil {
			target = l.opts.DelegatedSink(delegated)
		}
		l.start(ctx, action, target, func() {
			_ = delegated.Deliver(context.WithoutCancel(ctx), messages.Aborted{Action: string(action), Reason: messages.AbortSuperseded, Err: messages.ErrSuperseded})
		})
	default:
		_ = conn.RespondError(fmt.Sprintf("unsupported request kind %d", req.Kind))
		_ = conn.Close()
	}
}

// handleRemoteTrigger routes a desktop-shortcut trigger through the IPC
// listener so it is debounced like any other hotkey.
func (l *Loop) handleRemoteTrigger(ctx context.Context, conn singleinstance.Conn, action hotkey.Action) {
	defer conn.Close()
	if l.opts.IPC == nil {
		l.handleTrigger(ctx, hotkey.Trigger{Action: action})
		_ = conn.RespondSuccess("")
		return
	}
	accepted, err := l.opts.IPC.Deliver(action)
	if err != nil {
		_ = conn.RespondError(err.Error())
		return
	}
	if !accepted {
		logutil.L().Debug("remote trigger debounced", logutil.String("action", string(action)))
	}
	_ = conn.RespondSuccess("")
}

// start submits a new run and, once the pool has taken it, supersedes the
// active one. With every worker busy the new run replaces the queued one.
func (l *Loop) start(ctx context.Context, action hotkey.Action, target sink.Sink, superseded func()) {
	l.seq++
	seq := l.seq
	runCtx, cancel := context.WithCancel(logutil.WithRun(ctx, seq, string(action)))
	r := &run{
		seq:        seq,
		action:     action,
		target:     target,
		cancel:     cancel,
		phase:      messages.PhaseIdle,
		logger:     logutil.FromContext(runCtx),
		superseded: superseded,
	}

	snap := Snapshot{}
	if l.opts.Snapshot != nil {
		snap = l.opts.Snapshot()
	}

	submitted := l.opts.Pool.SubmitLatest(runCtx, func(jobCtx context.Context) {
		l.execute(jobCtx, seq, action, snap)
	})
	if !submitted {
		cancel()
		r.logger.Warn("worker pool closed, run rejected")
		l.deliver(ctx, r, messages.Aborted{Seq: seq, Action: string(action), Reason: messages.AbortBusy, Err: messages.ErrBusy})
		return
	}

	if prev := l.active; prev != nil {
		prev.logger.Info("run superseded", logutil.Uint64("by", seq), logutil.String("phase", string(prev.phase)))
		prev.cancel()
		if prev.superseded != nil {
			l.enqueue(prev, prev.superseded)
		}
	}
	l.active = r
	r.logger.Info("run started")
}

// execute runs on a worker goroutine. It never touches loop state; every
// observation is posted back as an event.
func (l *Loop) execute(ctx context.Context, seq uint64, action hotkey.Action, snap Snapshot) {
	logger := logutil.FromContext(ctx)
	if ctx.Err() != nil {
		l.post(event{seq: seq, phase: messages.PhaseCancelled})
		return
	}

	l.post(event{seq: seq, phase: messages.PhaseCapturing})
	span, err := l.opts.Capture.Capture(ctx)
	if ctx.Err() != nil {
		l.post(event{seq: seq, phase: messages.PhaseCancelled})
		return
	}
	if err != nil {
		logger.Debug("capture ended", logutil.Error(err))
		l.post(event{seq: seq, msg: messages.Aborted{Seq: seq, Action: string(action), Reason: abortReason(err), Err: err}})
		return
	}

	req, err := translate.NewRequest(span, snap.Source, snap.Target)
	if err != nil {
		l.post(event{seq: seq, msg: messages.Aborted{Seq: seq, Action: string(action), Reason: abortReason(err), Err: err}})
		return
	}

	l.post(event{seq: seq, phase: messages.PhaseTranslating})
	res, err := l.opts.Orchestrator.Run(ctx, req, snap.Chain)
	switch {
	case errors.Is(err, orchestrator.ErrCancelled):
		l.post(event{seq: seq, phase: messages.PhaseCancelled})
	case err != nil:
		var failure *translate.Failure
		if !errors.As(err, &failure) {
			failure = &translate.Failure{}
		}
		l.post(event{seq: seq, msg: messages.Failed{Seq: seq, Action: string(action), Span: span, Target: req.Target, Failure: failure}})
	default:
		l.post(event{seq: seq, msg: messages.Delivered{Seq: seq, Action: string(action), Span: span, Target: req.Target, Result: res}})
	}
}

// post hands an event to the loop. Events are dropped once Run has returned.
func (l *Loop) post(ev event) {
	select {
	case l.events <- ev:
	case <-l.done:
	}
}

func (l *Loop) handleEvent(ctx context.Context, ev event) {
	r := l.active
	if r == nil || ev.seq != r.seq {
		logutil.L().Debug("stale run event discarded", logutil.Uint64("seq", ev.seq), logutil.String("phase", string(ev.phase)))
		return
	}
	if ev.msg == nil {
		r.phase = ev.phase
		r.logger.Debug("run phase", logutil.String("phase", string(ev.phase)))
		if ev.phase == messages.PhaseCancelled {
			l.active = nil
		}
		return
	}

	l.active = nil
	r.cancel()
	l.deliver(ctx, r, ev.msg)

	if l.opts.History == nil {
		return
	}
	switch m := ev.msg.(type) {
	case messages.Delivered:
		l.opts.History.Record(m.Span, m.Target, &m.Result, nil)
	case messages.Failed:
		l.opts.History.Record(m.Span, m.Target, nil, m.Failure)
	}
}

func (l *Loop) deliver(ctx context.Context, r *run, msg messages.Message) {
	switch msg.(type) {
	case messages.Delivered:
		r.phase = messages.PhaseDelivered
	case messages.Failed:
		r.phase = messages.PhaseFailed
	default:
		r.phase = messages.PhaseAborted
	}
	if r.target == nil {
		return
	}
	target, logger := r.target, r.logger
	dctx := logutil.WithRun(context.WithoutCancel(ctx), r.seq, string(r.action))
	l.enqueue(r, func() {
		ctx, cancel := context.WithTimeout(dctx, deliverTimeout)
		defer cancel()
		if err := target.Deliver(ctx, msg); err != nil {
			logger.Warn("result delivery failed", logutil.Error(err))
		}
	})
}

// enqueue hands fn to the sink goroutine. It never blocks the loop.
func (l *Loop) enqueue(r *run, fn func()) {
	select {
	case l.deliveries <- fn:
	default:
		r.logger.Warn("delivery queue full, result dropped")
	}
}

// deliverLoop runs sink deliveries in order until the queue is closed.
func (l *Loop) deliverLoop(drained chan<- struct{}) {
	defer close(drained)
	for fn := range l.deliveries {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logutil.L().Error("PANIC in result delivery", logutil.Any("panic", r))
				}
			}()
			fn()
		}()
	}
}

// Active returns the sequence number and phase of the active run, or 0 and
// PhaseIdle. Only safe on the loop goroutine; tests use it after Run returns.
func (l *Loop) Active() (uint64, messages.Phase) {
	if l.active == nil {
		return 0, messages.PhaseIdle
	}
	return l.active.seq, l.active.phase
}

func abortReason(err error) messages.AbortReason {
	switch {
	case errors.Is(err, capture.ErrNoSelection), errors.Is(err, translate.ErrEmptySpan):
		return messages.AbortNoSelection
	case errors.Is(err, capture.ErrTimeout):
		return messages.AbortTimeout
	case errors.Is(err, capture.ErrPlatformDenied):
		return messages.AbortDenied
	}
	return messages.AbortCaptureFailed
}
