package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agenthands/graphmerge/internal/config"
	"github.com/agenthands/graphmerge/internal/core"
	"github.com/agenthands/graphmerge/internal/driver"
	"github.com/agenthands/graphmerge/internal/llm"
	"github.com/agenthands/graphmerge/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogMode    string
	Format     string // "json" | "text"
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "graphmerge",
		Short: "graphmerge - deduplicating graph ingestion",
		Long:  "Decompose record batches into vertices and edges and merge them into a graph store without duplicates.",
		// main prints the error; command output stays parseable
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a TOML config file")
	cmd.PersistentFlags().StringVar(&opts.LogMode, "log", "prod", "log mode (prod|dev|quiet)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMergeCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// env is everything a command needs to talk to the graph.
type env struct {
	cfg     *config.Config
	log     *logger.Logger
	driver  driver.GraphDriver
	builder *core.GraphBuilder
}

func (e *env) Close(ctx context.Context) {
	if e.driver != nil {
		if err := e.driver.Close(ctx); err != nil {
			e.log.Warn("Failed to close graph store", "error", err)
		}
	}
	e.log.Sync()
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(o.ConfigPath); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *RootOptions) open(ctx context.Context) (*env, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(o.LogMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	client, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}

	d, err := driver.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	b, err := core.NewFromConfig(cfg, d, client, log)
	if err != nil {
		_ = d.Close(ctx)
		return nil, err
	}
	if err := b.BuildIndices(ctx); err != nil {
		_ = d.Close(ctx)
		return nil, fmt.Errorf("failed to build indices: %w", err)
	}
	return &env{cfg: cfg, log: log, driver: d, builder: b}, nil
}
