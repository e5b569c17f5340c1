package app

import (
	"context"
	"fmt"

	"go.uber.org/dig"

	"swiftlingo/src/capture"
	"swiftlingo/src/config"
	"swiftlingo/src/eventloop"
	"swiftlingo/src/hotkey"
	"swiftlingo/src/messages"
	"swiftlingo/src/notification"
	"swiftlingo/src/orchestrator"
	"swiftlingo/src/sink"
	"swiftlingo/src/translate"
	"swiftlingo/src/worker"
)

// Standalone performs a single run in-process when --run-once finds no
// resident to delegate to.
type Standalone struct {
	opts     eventloop.Options
	notifier notification.Notifier
}

type standaloneParams struct {
	dig.In

	Config       *config.Config
	Capture      capture.Adapter
	Orchestrator *orchestrator.Orchestrator
	Chain        translate.Chain
	Notifier     notification.Notifier
	History      eventloop.Recorder
}

func NewStandalone(p standaloneParams) *Standalone {
	snapshot := eventloop.Snapshot{Chain: p.Chain, Source: p.Config.SourceLanguage, Target: p.Config.TargetLanguage}
	return &Standalone{
		opts: eventloop.Options{
			Capture:      p.Capture,
			Orchestrator: p.Orchestrator,
			Snapshot:     func() eventloop.Snapshot { return snapshot },
			History:      p.History,
		},
		notifier: p.Notifier,
	}
}

// Run drives one coordinator run for action and returns its terminal
// message. With stdout set the translation is printed instead of going to
// the action's usual targets.
func (s *Standalone) Run(ctx context.Context, action hotkey.Action, stdout bool) (messages.Message, error) {
	target, ok := Sinks(s.notifier)[action]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", action)
	}
	if stdout {
		target = sink.Multi{sink.Log{}, sink.Stdout{}}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := make(chan messages.Message, 1)
	opts := s.opts
	opts.Pool = worker.New(1)
	opts.Sinks = map[hotkey.Action]sink.Sink{
		action: sink.Multi{target, sink.Func(func(_ context.Context, msg messages.Message) error {
			select {
			case result <- msg:
			default:
			}
			return nil
		})},
	}
	loop := eventloop.New(opts)

	errc := make(chan error, 1)
	go func() { errc <- loop.Run(ctx) }()
	loop.Trigger(ctx, action)

	select {
	case msg := <-result:
		cancel()
		<-errc
		return msg, nil
	case err := <-errc:
		return nil, err
	}
}
