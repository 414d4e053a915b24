package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ocrhub/pagetrack/internal/store"
)

// newCreateCommand registers a new processing request.
func newCreateCommand(opts *rootOptions) *cobra.Command {
	var (
		page     string
		priority int32
		stages   []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new processing request for a page",
		Long: `Register a new processing request and print its uuid.

The stage list is the pipeline contract for the request: it is fixed at
creation and every later stage log must name one of its entries.

Example:
  pagetrack create --page 8c0e7a9e --priority 3 --stages binarize,ocr,export`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(ctx context.Context, s store.Store) error {
				req, err := s.CreateRequest(ctx, store.CreateRequestParams{
					PageUUID:         page,
					Priority:         priority,
					ProcessingStages: stages,
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), req.UUID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&page, "page", "", "page uuid the request processes (required)")
	cmd.Flags().Int32Var(&priority, "priority", 0, "scheduling priority, higher is preferred")
	cmd.Flags().StringSliceVar(&stages, "stages", nil, "ordered pipeline stage names (required)")
	_ = cmd.MarkFlagRequired("page")
	_ = cmd.MarkFlagRequired("stages")

	return cmd
}
