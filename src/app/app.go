// Package app wires the resident process and the one-shot CLI out of the
// configured components.
package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"swiftlingo/src/cache"
	"swiftlingo/src/capture"
	"swiftlingo/src/clipboard"
	"swiftlingo/src/config"
	"swiftlingo/src/eventloop"
	"swiftlingo/src/history"
	"swiftlingo/src/hotkey"
	"swiftlingo/src/langdetect"
	"swiftlingo/src/logutil"
	"swiftlingo/src/notification"
	"swiftlingo/src/orchestrator"
	"swiftlingo/src/provider/registry"
	"swiftlingo/src/provider/transport"
	"swiftlingo/src/singleinstance"
	"swiftlingo/src/sink"
	"swiftlingo/src/translate"
	"swiftlingo/src/worker"
)

const AppName = "SwiftLingo"

type Options struct {
	LoadOptions config.LoadOptions
	// Console keeps stderr logging when file logging is enabled.
	Console bool
	// LogLevel overrides LOG_LEVEL when set.
	LogLevel string
}

// Bootstrap loads and validates configuration and installs the logger.
func Bootstrap(opts Options, reg *registry.Registry) (*config.Config, *zap.Logger, error) {
	lo := opts.LoadOptions
	if lo.KnownKind == nil {
		lo.KnownKind = reg.Known
	}
	cfg, err := config.LoadWithOptions(lo)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := logutil.Setup(logutil.Options{
		Level:             level,
		EnableFileLogging: cfg.EnableFileLogging,
		Console:           opts.Console,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// Closers collects shutdown hooks registered while the container builds.
type Closers struct {
	fns []func() error
}

func (c *Closers) Add(fn func() error) { c.fns = append(c.fns, fn) }

// Close runs the hooks in reverse order.
func (c *Closers) Close() {
	for i := len(c.fns) - 1; i >= 0; i-- {
		if err := c.fns[i](); err != nil {
			logutil.L().Debug("shutdown hook failed", logutil.Error(err))
		}
	}
	c.fns = nil
}

// Decorators is the provider decorator list handed to the registry.
type Decorators []registry.Decorator

// BuildContainer registers every component. Construction is lazy: only what
// an Invoke asks for is built.
func BuildContainer(opts Options) (*dig.Container, error) {
	c := dig.New()
	provides := []any{
		registry.Default,
		func(reg *registry.Registry) (*config.Config, *zap.Logger, error) { return Bootstrap(opts, reg) },
		func() *Closers { return &Closers{} },
		transport.NewHTTPClient,
		newDecorators,
		newChain,
		newOrchestrator,
		NewTranslator,
		newCapture,
		newNotifier,
		newHistory,
		newPool,
		singleinstance.NewServer,
		NewHotkeys,
		newLoop,
		NewResident,
		NewStandalone,
	}
	for _, p := range provides {
		if err := c.Provide(p); err != nil {
			return nil, fmt.Errorf("provide %T: %w", p, err)
		}
	}
	return c, nil
}

func newDecorators(cfg *config.Config, closers *Closers) Decorators {
	if cfg.RedisURL == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), translate.DefaultTimeout)
	defer cancel()
	store, err := cache.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logutil.L().Warn("translation cache disabled", logutil.Error(err))
		return nil
	}
	closers.Add(store.Close)
	logutil.L().Info("translation cache enabled", logutil.Duration("ttl", cfg.CacheTTL))
	return Decorators{cache.Decorator(store, cfg.CacheTTL)}
}

func newChain(cfg *config.Config, reg *registry.Registry, client *http.Client, decorators Decorators) (translate.Chain, error) {
	chain, err := reg.Build(cfg.Snapshot(), client, decorators...)
	if err != nil {
		return translate.Chain{}, err
	}
	for _, e := range chain.Entries() {
		logutil.L().Info("provider configured",
			logutil.String("id", e.Config.ID),
			logutil.String("kind", e.Config.Kind),
			logutil.Int("rank", e.Config.Rank),
			logutil.Bool("enabled", e.Config.Enabled),
			logutil.String("key", logutil.RedactKey(e.Config.Credential)))
	}
	return chain, nil
}

func newOrchestrator(cfg *config.Config) *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Options{MaxRateLimitWait: cfg.RateLimitMaxWait})
}

func newCapture(cfg *config.Config, closers *Closers) (capture.Adapter, error) {
	detector := langdetect.Off
	if cfg.DetectLanguage {
		detector = langdetect.Lingua
		go langdetect.Warm()
	}
	adapter, err := capture.New(capture.Options{
		Backend:  cfg.CaptureBackend,
		Timeout:  cfg.CaptureTimeout,
		Detector: detector,
	})
	if err != nil {
		return nil, err
	}
	closers.Add(adapter.Close)
	return adapter, nil
}

func newNotifier(cfg *config.Config, closers *Closers) notification.Notifier {
	if !cfg.Notifications {
		return notification.Log{}
	}
	n := notification.New(AppName)
	closers.Add(n.Close)
	return n
}

func newHistory(cfg *config.Config, closers *Closers) eventloop.Recorder {
	if !cfg.HistoryEnabled {
		return nil
	}
	store, err := history.OpenSQLite(cfg.HistoryPath)
	if err != nil {
		logutil.L().Warn("history disabled", logutil.Error(err))
		return nil
	}
	logutil.L().Info("history enabled", logutil.String("path", store.Path()))
	async := history.NewAsync(store, 0)
	closers.Add(async.Close)
	return async
}

func newPool(cfg *config.Config) *worker.Pool {
	return worker.New(cfg.Workers)
}

// Sinks returns the result target of each hotkey action.
func Sinks(n notification.Notifier) map[hotkey.Action]sink.Sink {
	notify := sink.Notify{Notifier: n}
	return map[hotkey.Action]sink.Sink{
		hotkey.ActionTranslate:        sink.Multi{sink.Log{}, notify},
		hotkey.ActionTranslateReplace: sink.Multi{sink.Log{}, sink.Clipboard{}, notify},
	}
}

type loopParams struct {
	dig.In

	Config       *config.Config
	Capture      capture.Adapter
	Orchestrator *orchestrator.Orchestrator
	Chain        translate.Chain
	Pool         *worker.Pool
	Notifier     notification.Notifier
	History      eventloop.Recorder
	Server       singleinstance.Server
	Hotkeys      *Hotkeys
}

func newLoop(p loopParams) *eventloop.Loop {
	if err := clipboard.Init(); err != nil {
		logutil.L().Warn("clipboard unavailable, translate-replace will fail", logutil.Error(err))
	}
	snapshot := eventloop.Snapshot{Chain: p.Chain, Source: p.Config.SourceLanguage, Target: p.Config.TargetLanguage}
	return eventloop.New(eventloop.Options{
		Capture:      p.Capture,
		Orchestrator: p.Orchestrator,
		Snapshot:     func() eventloop.Snapshot { return snapshot },
		Pool:         p.Pool,
		Sinks:        Sinks(p.Notifier),
		DelegatedSink: func(d sink.Sink) sink.Sink {
			return sink.Multi{sink.Log{}, d}
		},
		History: p.History,
		Server:  p.Server,
		IPC:     p.Hotkeys.IPC,
	})
}

// Resident is the long-running process: coordinator plus hotkey listeners.
type Resident struct {
	Loop    *eventloop.Loop
	Hotkeys *Hotkeys
	closers *Closers
}

func NewResident(loop *eventloop.Loop, hk *Hotkeys, closers *Closers) *Resident {
	return &Resident{Loop: loop, Hotkeys: hk, closers: closers}
}

// Run blocks until ctx is cancelled, then releases every binding and
// backend.
func (r *Resident) Run(ctx context.Context) error {
	defer r.closers.Close()
	defer r.Hotkeys.Close()
	for _, li := range r.Hotkeys.Listeners() {
		r.Loop.Listen(ctx, li)
	}
	return r.Loop.Run(ctx)
}
