package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/sgptr/internal/cache"
	"github.com/dshills/sgptr/internal/completion"
	"github.com/dshills/sgptr/internal/config"
	"github.com/dshills/sgptr/internal/logging"
	"github.com/dshills/sgptr/internal/output"
	"github.com/dshills/sgptr/internal/shell"
)

const choicePrompt = "[E]xecute, [M]odify, [A]bort"

// Completion flags
var (
	flagTemperature    float64
	flagTopProbability float64
	flagCache          bool
	flagNoCache        bool
)

// Terminal hooks, replaced in tests.
var (
	stdinIsTerminal = func() bool { return output.IsTerminal(os.Stdin) }
	runCommand      = shell.Run
	editCommand     = shell.Edit
)

func addCompletionFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&flagTemperature, "temperature", 0.1, "Randomness of generated output (0.0-2.0)")
	cmd.Flags().Float64Var(&flagTopProbability, "top-probability", 1.0, "Limits highest probable tokens (0.1-1.0)")
	cmd.Flags().BoolVar(&flagCache, "cache", true, "Cache completion results")
	cmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "Bypass the completion cache")
}

func validateCompletionFlags() error {
	if flagTemperature < 0 || flagTemperature > 2 {
		return fmt.Errorf("--temperature must be between 0.0 and 2.0, got %g", flagTemperature)
	}
	if flagTopProbability < 0.1 || flagTopProbability > 1 {
		return fmt.Errorf("--top-probability must be between 0.1 and 1.0, got %g", flagTopProbability)
	}
	return nil
}

// buildPrompt combines piped input with the prompt argument.
func buildPrompt(stdin io.Reader, piped bool, arg string) (string, error) {
	if !piped {
		return arg, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(data) + "\n\n" + arg, nil
}

func runCompletion(cmd *cobra.Command, args []string) error {
	if err := validateCompletionFlags(); err != nil {
		return err
	}

	piped := !stdinIsTerminal()
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	prompt, err := buildPrompt(cmd.InOrStdin(), piped, arg)
	if err != nil {
		return err
	}
	if prompt == "" {
		return errors.New("missing argument: PROMPT")
	}

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		exitCode = ExitRuntimeError
		return nil
	}

	logger, err := logging.NewFromSettings(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		exitCode = ExitRuntimeError
		return nil
	}
	ctx := logging.WithContext(cmd.Context(), logger)
	cacheLog := *logging.FromContext(logging.WithComponent(ctx, "cache"))
	clientLog := *logging.FromContext(logging.WithComponent(ctx, "completion"))

	store, err := cache.Open(cfg.CachePath, cache.WithStoreLogger(cacheLog))
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: opening cache: %v\n", err)
		exitCode = ExitRuntimeError
		return nil
	}

	metrics := cache.NewRecorder()
	defer logCacheSummary(ctx, cacheLog, metrics)

	client := completion.New(cfg.APIHost,
		completion.WithTimeout(time.Duration(cfg.RequestTimeout)*time.Second),
		completion.WithLogger(clientLog),
	)
	memo := cache.NewMemoizer(store, cfg.CacheLength,
		cache.WithLogger(cacheLog),
		cache.WithMeterProvider(metrics.MeterProvider()),
	)
	cached := completion.NewCached(client, memo)

	req := completion.Request{
		Prompt:         prompt,
		Temperature:    flagTemperature,
		TopProbability: flagTopProbability,
	}
	caching := flagCache && !flagNoCache

	printer := output.NewPrinter(cmd.OutOrStdout(), cfg.DefaultColor)
	text, err := stream(ctx, printer, cached, req, caching)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		exitCode = ExitRuntimeError
		return nil
	}

	session := completion.NewSession(req, caching)
	session.Response = text

	if !piped {
		if err := interact(ctx, cmd, printer, session, cfg.DefaultExecuteShellCmd); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			exitCode = ExitRuntimeError
		}
	}

	if cfg.UploadSessions {
		ctx := logging.WithSession(ctx, session.ID)
		if err := client.Upload(ctx, session); err != nil {
			logging.FromContext(ctx).Warn().Err(err).Msg("uploading session failed")
		}
	}
	return nil
}

// logCacheSummary reports the cache counters for this run at debug level.
func logCacheSummary(ctx context.Context, log zerolog.Logger, metrics *cache.Recorder) {
	ctx = context.WithoutCancel(ctx)
	defer func() { _ = metrics.Shutdown(ctx) }()
	if log.GetLevel() > zerolog.DebugLevel {
		return
	}
	counts, err := metrics.Counts(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("collecting cache metrics")
		return
	}
	log.Debug().
		Int64("hits", counts.Hits).
		Int64("misses", counts.Misses).
		Int64("bypasses", counts.Bypasses).
		Int64("corrupt", counts.Corrupt).
		Int64("commits", counts.Commits).
		Int64("failed_commits", counts.FailedCommits).
		Int64("evictions", counts.Evictions).
		Msg("cache summary")
}

// stream prints the completion as it arrives and returns the full text.
func stream(ctx context.Context, printer *output.Printer, cached *completion.Cached, req completion.Request, caching bool) (string, error) {
	var b strings.Builder
	for chunk, err := range cached.Complete(ctx, req, caching) {
		if err != nil {
			if b.Len() > 0 {
				printer.Newline()
			}
			return b.String(), err
		}
		b.WriteString(chunk)
		printer.Chunk(chunk)
	}
	printer.Newline()
	if err := printer.Err(); err != nil {
		return b.String(), fmt.Errorf("writing output: %w", err)
	}
	return b.String(), nil
}

// interact runs the execute/modify/abort loop. Every choice is recorded in
// session.Options; an edit is recorded right after its "m".
func interact(ctx context.Context, cmd *cobra.Command, printer *output.Printer, session *completion.Session, executeByDefault bool) error {
	log := logging.FromContext(ctx)
	def := "a"
	if executeByDefault {
		def = "e"
	}
	in := bufio.NewReader(cmd.InOrStdin())
	command := session.Response

	for {
		choice, err := readChoice(in, cmd.OutOrStdout(), def)
		if err != nil {
			return err
		}
		session.Options = append(session.Options, choice)

		switch choice {
		case "e":
			if err := runCommand(ctx, command); err != nil {
				log.Warn().Err(err).Msg("command exited with an error")
			}
			return nil
		case "m":
			edited, err := editCommand(ctx, command)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				continue
			}
			command = strings.TrimSpace(edited)
			session.Options = append(session.Options, command)
			printer.Line(command)
		default:
			return nil
		}
	}
}

// readChoice prompts until the user enters e, m or a. An empty answer picks
// def; end of input aborts.
func readChoice(in *bufio.Reader, out io.Writer, def string) (string, error) {
	for {
		fmt.Fprintf(out, "%s: ", choicePrompt)
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading choice: %w", err)
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		if errors.Is(err, io.EOF) && answer == "" {
			fmt.Fprintln(out)
			return "a", nil
		}
		switch answer {
		case "":
			return def, nil
		case "e", "m", "a":
			return answer, nil
		}
		fmt.Fprintf(out, "Error: %q is not one of e, m, a.\n", answer)
	}
}
