package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ocrhub/pagetrack/internal/store"
)

// newCompleteCommand reports whether every declared stage has reached a
// terminal status.
func newCompleteCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <request-uuid>",
		Short: "Report whether a request has finished all its stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid request uuid %q: %w", args[0], err)
			}

			return opts.withStore(cmd, func(ctx context.Context, s store.Store) error {
				done, err := s.IsComplete(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), done)
				return nil
			})
		},
	}

	return cmd
}
