package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/agenthands/graphmerge/internal/core"
	"github.com/agenthands/graphmerge/internal/core/model"
)

type MergeOptions struct {
	Bucket     string
	Principal  string
	Candidates bool
	DryRun     bool
}

// NewMergeCommand merges one or more JSON-lines files, one pass per file.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeOptions{}

	cmd := &cobra.Command{
		Use:   "merge <file>...",
		Short: "Merge record files into the graph",
		Long: `Merge JSON-lines files into the configured graph store.

Each file is one batch and runs as its own merge pass; passes run
concurrently up to concurrency.bulk_ingest. Lines are raw records
decomposed by the configured policy, or candidate elements with
--candidates.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd, rootOpts, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.Bucket, "bucket", "b", "", "owning-context tag written on merged elements")
	_ = cmd.MarkFlagRequired("bucket")
	cmd.Flags().StringVarP(&opts.Principal, "principal", "p", "", "acting principal for match visibility")
	cmd.Flags().BoolVar(&opts.Candidates, "candidates", false, "lines are candidate elements, not records")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "merge without touching the store")

	return cmd
}

func runMerge(cmd *cobra.Command, rootOpts *RootOptions, opts *MergeOptions, files []string) error {
	ctx := cmd.Context()
	reqs, err := opts.requests(files)
	if err != nil {
		return err
	}

	e, err := rootOpts.open(ctx)
	if err != nil {
		return err
	}
	defer e.Close(ctx)

	stats, err := e.builder.BuildBulk(ctx, reqs)
	if werr := writeStats(cmd.OutOrStdout(), rootOpts.Format, stats); werr != nil && err == nil {
		err = werr
	}
	return err
}

func (o *MergeOptions) requests(files []string) ([]core.BuildRequest, error) {
	reqs := make([]core.BuildRequest, 0, len(files))
	for _, path := range files {
		req := core.BuildRequest{Bucket: o.Bucket, Principal: o.Principal, DryRun: o.DryRun}
		var err error
		if o.Candidates {
			req.Candidates, err = readFile[model.Element](path)
		} else {
			req.Records, err = readFile[model.Record](path)
		}
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func writeStats(w io.Writer, format string, s model.MergeStats) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	_, err := fmt.Fprintf(w,
		"vertices: %d created, %d updated, %d emitted, %d errors\nedges: %d created, %d updated, %d emitted, %d errors, %d matched\n",
		s.VerticesCreated, s.VerticesUpdated, s.VerticesEmitted, s.VertexErrors,
		s.EdgesCreated, s.EdgesUpdated, s.EdgesEmitted, s.EdgeErrors, s.EdgeMatchesFound)
	return err
}
