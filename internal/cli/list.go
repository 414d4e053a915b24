package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ocrhub/pagetrack/internal/store"
)

// newListCommand lists all requests that reference a page.
func newListCommand(opts *rootOptions) *cobra.Command {
	var page string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all processing requests for a page",
		Long: `List every request that references a page, oldest first. A page that
appears more than once has been reprocessed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(ctx context.Context, s store.Store) error {
				reqs, err := s.ListRequestsByPage(ctx, page)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "UUID\tSTARTED\tPRIORITY\tSTAGES\tLOGS")
				for _, r := range reqs {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
						r.UUID,
						r.StartTime.UTC().Format(time.RFC3339),
						r.Priority,
						len(r.ProcessingStages),
						len(r.Logs),
					)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&page, "page", "", "page uuid to list requests for (required)")
	_ = cmd.MarkFlagRequired("page")

	return cmd
}
