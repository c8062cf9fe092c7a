package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/CoReason-AI/coreason-signal/internal/api"
	"github.com/CoReason-AI/coreason-signal/internal/config"
	"github.com/CoReason-AI/coreason-signal/internal/connector"
	"github.com/CoReason-AI/coreason-signal/internal/engine"
	"github.com/CoReason-AI/coreason-signal/internal/engine/dedup"
	"github.com/CoReason-AI/coreason-signal/internal/model"
	"github.com/CoReason-AI/coreason-signal/internal/output"
	"github.com/CoReason-AI/coreason-signal/internal/output/async"
	"github.com/CoReason-AI/coreason-signal/internal/output/broadcast"
	"github.com/CoReason-AI/coreason-signal/internal/output/multi"
	"github.com/CoReason-AI/coreason-signal/internal/pipeline"
	"github.com/CoReason-AI/coreason-signal/internal/sop"
	"github.com/CoReason-AI/coreason-signal/internal/sop/embedder"
)

// noConnector disables the event pipeline; only the API feeds the engine.
const noConnector = "none"

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	c := &rootOpts.Config
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reflex agent: event pipeline, admin API and SOP watcher",
		Long: `Run the reflex agent.

Events stream in from the configured connector (ndjson on stdin by default,
or an instrument bridge), are decided against the SOP store, and the
resulting reflexes are dispatched to the configured actuators. The admin API
serves status, manual triggers and a websocket stream of reflexes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts.Config, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&c.API.Addr, "addr", c.API.Addr, "admin API listen address")
	f.StringVar(&c.API.DeviceID, "device-id", c.API.DeviceID, "device id reported by /status")
	f.StringSliceVar(&c.API.AllowedReflexes, "allowed-reflexes", c.API.AllowedReflexes, "actions allowed for manual triggers (empty allows all)")
	f.StringVar(&c.Connector.Provider, "connector", c.Connector.Provider, `event source: ndjson, bridge or "none"`)
	f.StringVar(&c.Connector.Endpoint, "endpoint", c.Connector.Endpoint, "connector endpoint (file path or bridge URL)")
	f.StringVar(&c.Store.Path, "store", c.Store.Path, "SOP store: SQLite path or memory://")
	f.StringVar(&c.Store.Library, "library", c.Store.Library, "YAML SOP library to ingest at startup")
	f.BoolVar(&c.Store.Watch, "watch", c.Store.Watch, "re-ingest the library when it changes")
	f.StringVar(&c.Store.ModelPath, "model", c.Store.ModelPath, "ONNX embedding model (default: hashing embedder)")
	f.DurationVar(&c.Engine.Timeout, "timeout", c.Engine.Timeout, "decision deadline")
	f.IntVar(&c.Engine.QueueSize, "queue-size", c.Engine.QueueSize, "decision queue capacity")
	f.StringSliceVar(&c.Engine.ActionableLevels, "levels", c.Engine.ActionableLevels, "event levels that may trigger reflexes")
	f.DurationVar(&c.Engine.DedupWindow, "dedup-window", c.Engine.DedupWindow, "collapse identical reflexes within this window (0 disables)")
	f.StringSliceVarP(&c.Output.Targets, "output", "o", c.Output.Targets, "actuators: stdout, file, webhook")
	f.StringVar(&c.Output.WebhookURL, "webhook-url", c.Output.WebhookURL, "webhook actuator URL")
	f.StringVar(&c.Output.FilePath, "output-file", c.Output.FilePath, "file actuator path")
	f.BoolVar(&c.Output.FileSync, "output-file-sync", c.Output.FileSync, "fsync the file actuator after every reflex")

	return cmd
}

func runServe(ctx context.Context, cfg config.Config, cmd *cobra.Command) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	levels, err := cfg.Engine.Levels()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	emb, err := embedder.New(embedder.Config{
		ModelPath: cfg.Store.ModelPath,
		VocabPath: cfg.Store.VocabPath,
		Dim:       cfg.Store.Dim,
	})
	if err != nil {
		return err
	}
	defer emb.Close()

	store, err := sop.Open(cfg.Store.Path, emb)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := seedLibrary(ctx, store, cfg.Store.Library); err != nil {
		return err
	}

	sinks, err := buildOutputs(cfg.Output, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	hub := broadcast.New(0)
	targets := make([]multi.Target, 0, len(sinks)+1)
	for i, s := range sinks {
		targets = append(targets, multi.Target{Name: cfg.Output.Targets[i], Output: s})
	}
	targets = append(targets, multi.Target{Name: "stream", Output: hub})
	dispatch := async.New(multi.NewNamed(targets...), async.WithOnError(func(err error) {
		slog.Error("actuator write failed", "error", err)
	}))
	defer dispatch.Close()

	eng, err := engine.New(store,
		engine.WithTimeout(cfg.Engine.Timeout),
		engine.WithQueueSize(cfg.Engine.QueueSize),
		engine.WithActionableLevels(levels...),
		engine.WithActuator(dispatch),
	)
	if err != nil {
		return err
	}
	defer eng.Close()

	apiCfg := api.Config{
		Addr:     cfg.API.Addr,
		Device:   cfg.API.Device(),
		Engine:   eng,
		Store:    store,
		Hub:      hub,
		Dispatch: dispatch,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Connector.Provider != noConnector {
		p, err := newPipeline(cfg, eng, dispatch)
		if err != nil {
			return err
		}
		apiCfg.Stats = p.Stats
		connCfg := connector.Config{
			Provider: cfg.Connector.Provider,
			APIKey:   cfg.Connector.APIKey,
			Endpoint: cfg.Connector.Endpoint,
			Extra:    cfg.Connector.Extra,
		}
		g.Go(func() error {
			slog.Info("event pipeline started", "connector", cfg.Connector.Provider)
			err := p.Stream(gctx, connCfg)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			slog.Info("event pipeline stopped", "stats", p.Stats())
			return err
		})
	}

	if cfg.Store.Watch {
		g.Go(func() error {
			return sop.Watch(gctx, cfg.Store.Library, func(docs []model.SOPDocument, removed []string) error {
				if err := store.Add(gctx, docs); err != nil {
					return err
				}
				_, err := store.Remove(gctx, removed...)
				return err
			})
		})
	}

	g.Go(func() error {
		return api.New(apiCfg).Run(gctx)
	})

	slog.Info("signal agent ready",
		"device_id", cfg.API.DeviceID, "sops", store.Count(), "timeout", cfg.Engine.Timeout, "outputs", cfg.Output.Targets)
	return g.Wait()
}

func newPipeline(cfg config.Config, dec pipeline.Decider, out output.Output) (*pipeline.Pipeline, error) {
	ctor, err := connector.Get(cfg.Connector.Provider)
	if err != nil {
		return nil, err
	}
	var opts []pipeline.Option
	if w := cfg.Engine.DedupWindow; w > 0 {
		opts = append(opts, pipeline.WithDedup(dedup.New(dedup.Config{Window: w}), w), pipeline.WithMaxBuffer(1000))
	}
	return pipeline.New(ctor(), dec, out, opts...), nil
}

// seedLibrary ingests the library at path, or the built-in SOPs when no
// library is given and the store is empty.
func seedLibrary(ctx context.Context, store *sop.LocalStore, path string) error {
	var docs []model.SOPDocument
	switch {
	case path != "":
		var err error
		if docs, err = sop.LoadLibrary(path); err != nil {
			return err
		}
	case store.Count() == 0:
		docs = sop.DefaultLibrary()
	default:
		return nil
	}
	if err := store.Add(ctx, docs); err != nil {
		return err
	}
	slog.Info("sop library ingested", "documents", len(docs), "total", store.Count())
	return nil
}
