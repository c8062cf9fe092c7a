// Package cli implements the signal command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/CoReason-AI/coreason-signal/internal/config"
	"github.com/CoReason-AI/coreason-signal/internal/logging"

	// Register connector implementations.
	_ "github.com/CoReason-AI/coreason-signal/internal/connector/bridge"
	_ "github.com/CoReason-AI/coreason-signal/internal/connector/ndjson"
)

// RootOptions holds global flags and the environment-derived configuration
// that subcommand flags override.
type RootOptions struct {
	LogJSON bool
	Config  config.Config
}

// NewRootCommand creates the root command for the signal CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Config: config.Load()}

	cmd := &cobra.Command{
		Use:   "signal",
		Short: "signal - edge reflex agent for lab instruments",
		Long: `Matches instrument error events against standard operating procedures
and dispatches the prescribed reflex (RETRY, PAUSE, ABORT, NOTIFY) under a
hard decision deadline, pausing the instrument when the deadline passes.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(opts.LogJSON, logging.ParseLevel(opts.Config.LogLevel))
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.Config.LogLevel, "log-level", opts.Config.LogLevel, "log level (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&opts.LogJSON, "log-json", false, "log JSON to stderr")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewDecideCommand(opts))
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewTriggerCommand(opts))

	return cmd
}
