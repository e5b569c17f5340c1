package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"swiftlingo/src/hotkey"
	"swiftlingo/src/messages"
	"swiftlingo/src/singleinstance"
)

type stressOptions struct {
	n        int
	mode     string
	action   string
	deadline time.Duration
}

// tally counts run-once outcomes as answered by the resident.
type tally struct {
	ok, busy, superseded, noResident, err int32
}

func (t *tally) String() string {
	return fmt.Sprintf("ok=%d busy=%d superseded=%d no-resident=%d err=%d",
		t.ok, t.busy, t.superseded, t.noResident, t.err)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	return cmd.Execute()
}

func newRootCmd(opts *stressOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-runonce",
		Short:         "Stress test run-once delegation against a resident instance",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := hotkey.ParseAction(opts.action)
			if err != nil {
				return err
			}
			return runWithOptions(*opts, action, singleinstance.NewClient(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 50, "number of clients to launch")
	cmd.Flags().StringVar(&opts.mode, "mode", "std", "std|clip: answer on stdout or through the clipboard")
	cmd.Flags().StringVar(&opts.action, "action", string(hotkey.ActionTranslate), "action to request")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-client timeout")

	return cmd
}

type runOnceClient interface {
	TryRunOnce(ctx context.Context, action string, outputToStdout bool) (bool, string, error)
}

func runWithOptions(opts stressOptions, action hotkey.Action, client runOnceClient, out io.Writer) error {
	var wg sync.WaitGroup
	var t tally

	start := time.Now()
	for i := 0; i < opts.n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), opts.deadline)
			defer cancel()
			delegated, _, err := client.TryRunOnce(ctx, string(action), opts.mode == "std")
			t.record(delegated, err)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)
	fmt.Fprintf(out, "launched=%d %s elapsed=%s\n", opts.n, t.String(), elapsed)
	return nil
}

func (t *tally) record(delegated bool, err error) {
	switch {
	case !delegated:
		atomic.AddInt32(&t.noResident, 1)
	case err == nil:
		atomic.AddInt32(&t.ok, 1)
	case strings.Contains(strings.ToLower(err.Error()), "busy"):
		atomic.AddInt32(&t.busy, 1)
	case err.Error() == messages.ErrSuperseded.Error():
		atomic.AddInt32(&t.superseded, 1)
	default:
		atomic.AddInt32(&t.err, 1)
	}
}
