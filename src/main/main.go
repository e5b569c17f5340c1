package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"swiftlingo/src/app"
	"swiftlingo/src/config"
	"swiftlingo/src/hotkey"
	"swiftlingo/src/logutil"
	"swiftlingo/src/messages"
	"swiftlingo/src/notification"
	"swiftlingo/src/singleinstance"
	"swiftlingo/src/translate"
)

type mainOptions struct {
	trigger       string
	runOnce       bool
	action        string
	stdout        bool
	envFile       string
	providersFile string
	logLevel      string
}

// runOnceClient is the part of singleinstance.Client used for delegation.
type runOnceClient interface {
	TryRunOnce(ctx context.Context, action string, outputToStdout bool) (bool, string, error)
}

type triggerClient interface {
	TryTrigger(ctx context.Context, action string) (bool, error)
}

// delegationTimeout bounds a --run-once round trip: capture plus a full
// provider chain with one rate-limit wait.
const delegationTimeout = 2 * time.Minute

// errNotDelegated is returned by --trigger when no resident answers.
var errNotDelegated = errors.New("no resident instance is running")

func main() {
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(normalizeLegacyArgs(os.Args)[1:])
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "swiftlingo",
		Short:         "Translate the current text selection on a global hotkey",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := run(cmd.Context(), opts, cmd.OutOrStdout())
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "swiftlingo:", err)
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.trigger, "trigger", "", "Ask the resident instance to run an action (translate, translate-replace) and exit")
	flags.BoolVar(&opts.runOnce, "run-once", false, "Run one translation of the current selection, delegating to the resident when one is running")
	flags.StringVar(&opts.action, "action", string(hotkey.ActionTranslate), "Action used by --run-once")
	flags.BoolVar(&opts.stdout, "stdout", false, "With --run-once, print the translation instead of notifying or replacing")
	flags.StringVar(&opts.envFile, "env", "", "Path to a .env file")
	flags.StringVar(&opts.providersFile, "providers", "", "Path to the providers YAML file")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override LOG_LEVEL")
	cmd.MarkFlagsMutuallyExclusive("trigger", "run-once")
	return cmd
}

// normalizeLegacyArgs maps single-dash long flags (-run-once, -trigger=x) to
// their double-dash form so desktop shortcuts written either way keep working.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	longFlags := []string{"run-once", "trigger", "action", "stdout", "env", "providers", "log-level"}
	out := make([]string, 0, len(args))
	out = append(out, args[0])
	for _, arg := range args[1:] {
		for _, name := range longFlags {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				arg = "-" + arg
				break
			}
		}
		out = append(out, arg)
	}
	return out
}

func run(ctx context.Context, opts *mainOptions, stdout io.Writer) error {
	appOpts := app.Options{
		LoadOptions: config.LoadOptions{EnvFileOverride: opts.envFile, ProvidersFileOverride: opts.providersFile},
		LogLevel:    opts.logLevel,
	}

	switch {
	case opts.trigger != "":
		action, err := hotkey.ParseAction(opts.trigger)
		if err != nil {
			return err
		}
		return handleTrigger(ctx, action, singleinstance.NewClient())
	case opts.runOnce:
		action, err := hotkey.ParseAction(opts.action)
		if err != nil {
			return err
		}
		return handleRunOnceWithDelegation(ctx, action, opts.stdout, singleinstance.NewClient(), stdout, func() error {
			return runStandalone(ctx, appOpts, action, opts.stdout)
		})
	}
	return runResident(ctx, appOpts)
}

func handleTrigger(ctx context.Context, action hotkey.Action, client triggerClient) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	delegated, err := client.TryTrigger(ctx, string(action))
	if err != nil {
		return fmt.Errorf("trigger %s: %w", action, err)
	}
	if !delegated {
		return errNotDelegated
	}
	return nil
}

// handleRunOnceWithDelegation sends the run to a resident instance. With no
// resident, fallback runs it in this process. A resident that answers with
// an error has already made its attempt, so the error is returned as is.
func handleRunOnceWithDelegation(ctx context.Context, action hotkey.Action, toStdout bool, client runOnceClient, stdout io.Writer, fallback func() error) error {
	ctx, cancel := context.WithTimeout(ctx, delegationTimeout)
	defer cancel()

	delegated, text, err := client.TryRunOnce(ctx, string(action), toStdout)
	if !delegated {
		logutil.L().Info("no resident detected, running standalone")
		return fallback()
	}
	if err != nil {
		return err
	}
	logutil.L().Info("delegated to resident", logutil.String("action", string(action)))
	if toStdout {
		_, err = fmt.Fprintln(stdout, text)
	}
	return err
}

func runStandalone(ctx context.Context, opts app.Options, action hotkey.Action, toStdout bool) error {
	c, err := app.BuildContainer(opts)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var msg messages.Message
	err = c.Invoke(func(s *app.Standalone, closers *app.Closers) error {
		defer closers.Close()
		var runErr error
		msg, runErr = s.Run(ctx, action, toStdout)
		return runErr
	})
	if err != nil {
		return err
	}
	switch m := msg.(type) {
	case messages.Failed:
		if m.Failure == nil {
			return translate.ErrAllProvidersFailed
		}
		return m.Failure
	case messages.Aborted:
		return m
	}
	return nil
}

func runResident(ctx context.Context, opts app.Options) error {
	lock, err := singleinstance.AcquireLock(singleinstance.DefaultLockPath())
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		if port, ok := singleinstance.DetectResidentPort(ctx); ok {
			return fmt.Errorf("%w (port %d)", err, port)
		}
		return err
	}
	if err != nil {
		return err
	}
	defer lock.Release()

	c, err := app.BuildContainer(opts)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = c.Invoke(func(r *app.Resident) error {
		logutil.L().Info("SwiftLingo resident started")
		return r.Run(ctx)
	})
	if errors.Is(err, context.Canceled) {
		logutil.L().Info("shutting down")
		return nil
	}
	var cfgErr *translate.ConfigError
	if errors.As(err, &cfgErr) {
		notification.ShowBlockingError("SwiftLingo failed to start", cfgErr.Error())
	}
	return err
}
