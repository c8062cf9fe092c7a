package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/CoReason-AI/coreason-signal/internal/config"
	"github.com/CoReason-AI/coreason-signal/internal/connector"
	"github.com/CoReason-AI/coreason-signal/internal/connector/ndjson"
	"github.com/CoReason-AI/coreason-signal/internal/engine/dedup"
	"github.com/CoReason-AI/coreason-signal/internal/model"
	"github.com/CoReason-AI/coreason-signal/internal/output/stdout"
	"github.com/CoReason-AI/coreason-signal/internal/pipeline"
	"github.com/CoReason-AI/coreason-signal/internal/sop"
	"github.com/CoReason-AI/coreason-signal/pkg/reflex"
)

// NewDecideCommand creates the decide command.
func NewDecideCommand(rootOpts *RootOptions) *cobra.Command {
	c := &rootOpts.Config
	var pretty bool

	cmd := &cobra.Command{
		Use:   "decide [events.ndjson]",
		Short: "Decide reflexes for a batch of log events",
		Long: `Read LogEvents as NDJSON from a file (or stdin when omitted or "-"),
decide each against the SOP library and print the reflexes as NDJSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runDecide(cmd, *c, path, pretty)
		},
	}

	f := cmd.Flags()
	f.StringVar(&c.Store.Path, "store", c.Store.Path, "SOP store: SQLite path or memory://")
	f.StringVar(&c.Store.Library, "library", c.Store.Library, "YAML SOP library (default: built-in SOPs for an empty store)")
	f.DurationVar(&c.Engine.Timeout, "timeout", c.Engine.Timeout, "decision deadline")
	f.StringSliceVar(&c.Engine.ActionableLevels, "levels", c.Engine.ActionableLevels, "event levels that may trigger reflexes")
	f.DurationVar(&c.Engine.DedupWindow, "dedup-window", c.Engine.DedupWindow, "collapse identical reflexes within this window (0 disables)")
	f.BoolVar(&pretty, "pretty", c.Output.Pretty, "indent JSON output")

	return cmd
}

func runDecide(cmd *cobra.Command, cfg config.Config, path string, pretty bool) error {
	levels, err := cfg.Engine.Levels()
	if err != nil {
		return err
	}
	opts := []reflex.Option{
		reflex.WithStorePath(cfg.Store.Path),
		reflex.WithTimeout(cfg.Engine.Timeout),
		reflex.WithActionableLevels(levels...),
		reflex.WithHashingDim(cfg.Store.Dim),
	}
	if cfg.Store.ModelPath != "" {
		opts = append(opts, reflex.WithModelPaths(cfg.Store.ModelPath, cfg.Store.VocabPath))
	}

	var library []model.SOPDocument
	if cfg.Store.Library != "" {
		if library, err = sop.LoadLibrary(cfg.Store.Library); err != nil {
			return err
		}
		opts = append(opts, reflex.WithLibrary(library))
	}

	agent, err := reflex.New(opts...)
	if err != nil {
		return err
	}
	defer agent.Close()
	if agent.Count() == 0 {
		if err := agent.Ingest(cmd.Context(), sop.DefaultLibrary()); err != nil {
			return err
		}
	}

	var popts []pipeline.Option
	if w := cfg.Engine.DedupWindow; w > 0 {
		popts = append(popts, pipeline.WithDedup(dedup.New(dedup.Config{Window: w}), w))
	}
	conn := &ndjson.Connector{Stdin: cmd.InOrStdin()}
	p := pipeline.New(conn, agent, stdout.NewWriter(cmd.OutOrStdout(), pretty), popts...)
	defer p.Close()

	start := time.Now()
	if err := p.Query(cmd.Context(), connector.Config{Endpoint: path}, connector.QueryParams{}); err != nil {
		return err
	}
	s := p.Stats()
	fmt.Fprintf(cmd.ErrOrStderr(), "decided %d events: %d reflexes, %d skipped in %v\n",
		s.Events, s.Dispatched, s.Skipped, time.Since(start).Round(time.Millisecond))
	return nil
}
