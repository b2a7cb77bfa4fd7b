package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agenthands/graphmerge/internal/core"
	"github.com/agenthands/graphmerge/internal/core/model"
)

type ValidationResult struct {
	Valid  bool         `json:"valid"`
	Issues []core.Issue `json:"issues,omitempty"`
}

func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var candidates bool

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a file without merging it",
		Long: `Decompose a JSON-lines file and report every candidate the merge
would reject for its shape. The graph store is not modified.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			req := core.BuildRequest{}
			var err error
			if candidates {
				req.Candidates, err = readFile[model.Element](args[0])
			} else {
				req.Records, err = readFile[model.Record](args[0])
			}
			if err != nil {
				return err
			}

			e, err := rootOpts.open(ctx)
			if err != nil {
				return err
			}
			defer e.Close(ctx)

			issues, err := e.builder.Validate(ctx, req)
			if err != nil {
				return err
			}
			result := ValidationResult{Valid: len(issues) == 0, Issues: issues}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				for _, is := range issues {
					fmt.Fprintf(out, "candidate %d: %s\n", is.Index, is.Error)
				}
				if result.Valid {
					fmt.Fprintln(out, "ok")
				}
			}
			if !result.Valid {
				return fmt.Errorf("%d invalid candidate(s)", len(issues))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&candidates, "candidates", false, "lines are candidate elements, not records")
	return cmd
}
