package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitUsageError   = 2
	ExitRuntimeError = 4
)

var rootCmd = &cobra.Command{
	Use:   "sgptr [PROMPT]",
	Short: "Turn a plain-language request into a shell command",
	Long: `sgptr sends a prompt to the completion service and streams the answer.
Piped input is prepended to the prompt. On a terminal the answer can be
executed, edited or discarded. Answers are cached; --no-cache bypasses the cache.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCompletion,
}

// Run executes the root command and returns an exit code.
func Run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}

	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print sgptr version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sgptr version %s\n", version)
	},
}

func init() {
	addCompletionFlags(rootCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(integrationCmd)
	rootCmd.AddCommand(versionCmd)
}
