package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ocrhub/pagetrack/internal/store"
)

// newDeleteCommand removes a whole request. Individual results or log
// entries can never be deleted; retention acts on whole requests only.
func newDeleteCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <request-uuid>",
		Short: "Delete a request and everything it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid request uuid %q: %w", args[0], err)
			}

			return opts.withStore(cmd, func(ctx context.Context, s store.Store) error {
				if err := s.DeleteRequest(ctx, id); err != nil {
					return err
				}
				opts.logger.Info("request deleted", "uuid", id)
				return nil
			})
		},
	}

	return cmd
}
