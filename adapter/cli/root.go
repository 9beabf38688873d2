// Package cli implements the taskbrain command line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/felixgeelhaar/taskbrain/internal/app"
	"github.com/felixgeelhaar/taskbrain/pkg/config"
	"github.com/felixgeelhaar/taskbrain/pkg/observability"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "taskbrain",
	Short: "TaskBrain - task backlog with heuristic intelligence",
	Long: `TaskBrain keeps a local task backlog and layers heuristic
intelligence on top: priority scoring, daily scheduling, overdue
analysis and completion-pattern learning, with two-way sync against
Todoist and Linear.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if logger == nil {
			logger = observability.LoggerFromEnv()
		}
		if verbose {
			logger = observability.NewLogger(observability.LogConfig{
				Level:       observability.LogLevelDebug,
				ServiceName: "taskbrain",
			})
		}
		slog.SetDefault(logger)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// SetLogger sets the CLI logger.
func SetLogger(l *slog.Logger) {
	logger = l
}

// newContainer loads configuration and wires the application for one
// command invocation.
func newContainer(ctx context.Context) (*app.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.NewContainer(ctx, cfg, logger)
}
