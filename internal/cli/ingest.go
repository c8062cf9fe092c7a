package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CoReason-AI/coreason-signal/internal/connector/httpclient"
	"github.com/CoReason-AI/coreason-signal/internal/sop"
	"github.com/CoReason-AI/coreason-signal/pkg/reflex"
)

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	c := &rootOpts.Config
	var apiURL string

	cmd := &cobra.Command{
		Use:   "ingest <library.yaml>",
		Short: "Add SOP documents to a store or a running agent",
		Long: `Parse a YAML SOP library and upsert its documents by id, either into a
SQLite store (--store) or into a running agent through its admin API (--api).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := sop.LoadLibrary(args[0])
			if err != nil {
				return err
			}

			if apiURL != "" {
				var resp struct {
					Count int `json:"count"`
					Total int `json:"total"`
				}
				client := httpclient.New(apiURL, "")
				if err := client.PostJSON(cmd.Context(), "/sops", docs, &resp); err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ingested %d SOPs (%d total)\n", resp.Count, resp.Total)
				return nil
			}

			if c.Store.Path == sop.MemoryPath {
				return fmt.Errorf("ingest: --store must be a SQLite path (or use --api)")
			}
			opts := []reflex.Option{reflex.WithStorePath(c.Store.Path), reflex.WithHashingDim(c.Store.Dim)}
			if c.Store.ModelPath != "" {
				opts = append(opts, reflex.WithModelPaths(c.Store.ModelPath, c.Store.VocabPath))
			}
			agent, err := reflex.New(opts...)
			if err != nil {
				return err
			}
			defer agent.Close()
			if err := agent.Ingest(cmd.Context(), docs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d SOPs (%d total)\n", len(docs), agent.Count())
			return nil
		},
	}

	cmd.Flags().StringVar(&c.Store.Path, "store", c.Store.Path, "SQLite SOP store path")
	cmd.Flags().StringVar(&apiURL, "api", "", "admin API base URL of a running agent")
	return cmd
}
