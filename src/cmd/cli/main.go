package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"swiftlingo/src/app"
	"swiftlingo/src/config"
	"swiftlingo/src/history"
	"swiftlingo/src/logutil"
	"swiftlingo/src/messages"
	"swiftlingo/src/provider/registry"
	"swiftlingo/src/sink"
	"swiftlingo/src/translate"
)

const (
	maxInputSizeKB = 64
	maxInputSize   = maxInputSizeKB * 1024
)

type cliOptions struct {
	jsonOutput    bool
	verbose       bool
	envFile       string
	providersFile string
	from          string
	to            string
	limit         int

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args), os.Stdin, os.Stdout, os.Stderr)
}

func runWithArgs(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		args = []string{"swiftlingo-cli"}
	}

	opts := &cliOptions{stdin: stdin, stdout: stdout, stderr: stderr}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(context.Background())
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "swiftlingo-cli",
		Short:         "Translate text through the configured provider chain",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	pf.StringVar(&opts.envFile, "env", "", "Path to a .env file")
	pf.StringVar(&opts.providersFile, "providers", "", "Path to the providers YAML file")

	cmd.AddCommand(newTranslateCmd(opts), newProvidersCmd(opts), newHistoryCmd(opts))
	return cmd
}

func newTranslateCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate [text|-]",
		Short: "Translate text given as arguments or on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(args, opts.stdin)
			if err != nil {
				return err
			}
			return translateText(cmd.Context(), opts, text)
		},
	}
	cmd.Flags().StringVar(&opts.from, "from", "", "Source language (default SOURCE_LANGUAGE)")
	cmd.Flags().StringVar(&opts.to, "to", "", "Target language (default TARGET_LANGUAGE)")
	return cmd
}

func newProvidersCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the validated provider chain in rank order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listProviders(opts)
		},
	}
}

func newHistoryCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the most recent translations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showHistory(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "Number of entries to show")
	return cmd
}

func (o *cliOptions) appOptions() app.Options {
	level := "fatal"
	if o.verbose {
		level = "debug"
	}
	return app.Options{
		LoadOptions: config.LoadOptions{EnvFileOverride: o.envFile, ProvidersFileOverride: o.providersFile},
		LogLevel:    level,
	}
}

func (o *cliOptions) verbosef(format string, args ...any) {
	if o.verbose {
		fmt.Fprintf(o.stderr, "[verbose] "+format+"\n", args...)
	}
}

// readInput joins the arguments, or reads stdin for "-" or no arguments.
func readInput(args []string, stdin io.Reader) (string, error) {
	var text string
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(io.LimitReader(stdin, maxInputSize+1))
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		text = string(data)
	} else {
		text = strings.Join(args, " ")
	}
	if len(text) > maxInputSize {
		return "", fmt.Errorf("input exceeds maximum size of %d KB", maxInputSizeKB)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("nothing to translate")
	}
	return text, nil
}

func translateText(ctx context.Context, opts *cliOptions, text string) error {
	c, err := app.BuildContainer(opts.appOptions())
	if err != nil {
		return err
	}
	return c.Invoke(func(cfg *config.Config, tr *app.Translator, closers *app.Closers) error {
		defer closers.Close()
		opts.verbosef("translating %d characters through %s", len(text), strings.Join(tr.Chain().IDs(), ", "))

		start := time.Now()
		res, err := tr.Translate(ctx, text, opts.from, opts.to)
		if err != nil {
			var failure *translate.Failure
			if errors.As(err, &failure) {
				opts.verbosef("all providers failed after %v", time.Since(start))
				return errors.New(failure.Summary("\n"))
			}
			return err
		}
		opts.verbosef("%s answered in %v", res.Provider, res.Latency)

		target := opts.to
		if target == "" {
			target = cfg.TargetLanguage
		}
		msg := messages.Delivered{Action: "cli", Target: translate.NormalizeLanguage(target), Result: res}
		return sink.Stdout{Writer: opts.stdout, JSON: opts.jsonOutput}.Deliver(ctx, msg)
	})
}

type providerInfo struct {
	Rank     int    `json:"rank"`
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Enabled  bool   `json:"enabled"`
	Usable   bool   `json:"usable"`
	Endpoint string `json:"endpoint,omitempty"`
	Key      string `json:"key,omitempty"`
}

func listProviders(opts *cliOptions) error {
	c, err := app.BuildContainer(opts.appOptions())
	if err != nil {
		return err
	}
	return c.Invoke(func(cfg *config.Config, chain translate.Chain, closers *app.Closers) error {
		defer closers.Close()
		if cfg.ProvidersSource == "" {
			opts.verbosef("no providers file, using built-in defaults")
		} else {
			opts.verbosef("providers loaded from %s", cfg.ProvidersSource)
		}

		pair := translate.LanguagePair{Source: cfg.SourceLanguage, Target: cfg.TargetLanguage}
		infos := make([]providerInfo, 0, chain.Len())
		for _, e := range chain.Entries() {
			infos = append(infos, providerInfo{
				Rank:     e.Config.Rank,
				ID:       e.Config.ID,
				Kind:     e.Config.Kind,
				Enabled:  e.Config.Enabled,
				Usable:   e.Config.Enabled && e.Provider.Supports(pair),
				Endpoint: e.Config.Endpoint,
				Key:      logutil.RedactKey(e.Config.Credential),
			})
		}
		return writeProviders(opts.stdout, infos, opts.jsonOutput)
	})
}

func writeProviders(w io.Writer, infos []providerInfo, jsonOutput bool) error {
	if jsonOutput {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(infos)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tID\tKIND\tENABLED\tUSABLE\tKEY")
	for _, p := range infos {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%t\t%s\n", p.Rank, p.ID, p.Kind, p.Enabled, p.Usable, p.Key)
	}
	return tw.Flush()
}

func showHistory(ctx context.Context, opts *cliOptions) error {
	cfg, _, err := app.Bootstrap(opts.appOptions(), registry.Default())
	if err != nil {
		return err
	}
	store, err := history.OpenSQLite(cfg.HistoryPath)
	if err != nil {
		return err
	}
	defer store.Close()
	opts.verbosef("reading history from %s", store.Path())

	entries, err := store.Recent(ctx, opts.limit)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		if entries == nil {
			entries = []history.Entry{}
		}
		encoder := json.NewEncoder(opts.stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	}
	for _, e := range entries {
		result := e.TargetText
		if !e.Succeeded() {
			result = "FAILED: " + strings.ReplaceAll(e.Failure, "\n", "; ")
		}
		fmt.Fprintf(opts.stdout, "%s  %s->%s  %s\n  %s\n  %s\n",
			e.At.Local().Format(time.DateTime), e.SourceLanguage, e.TargetLanguage, e.Provider,
			logutil.Sanitize(e.SourceText), result)
	}
	return nil
}

func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range []string{"json", "verbose", "env", "providers", "from", "to", "limit"} {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				normalized[i] = "-" + arg
				break
			}
		}
	}

	return normalized
}
