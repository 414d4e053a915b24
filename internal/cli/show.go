package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ocrhub/pagetrack/internal/model"
	"github.com/ocrhub/pagetrack/internal/store"
)

// newShowCommand prints the full aggregate of one request.
func newShowCommand(opts *rootOptions) *cobra.Command {
	var compact bool

	cmd := &cobra.Command{
		Use:   "show <request-uuid>",
		Short: "Print a request with its results and stage logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid request uuid %q: %w", args[0], err)
			}

			return opts.withStore(cmd, func(ctx context.Context, s store.Store) error {
				req, err := s.GetRequest(ctx, id)
				if err != nil {
					return err
				}
				b, err := model.EncodeRequest(req)
				if err != nil {
					return err
				}
				if !compact {
					var buf bytes.Buffer
					if err := json.Indent(&buf, b, "", "  "); err != nil {
						return err
					}
					b = buf.Bytes()
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&compact, "compact", false, "print compact JSON on one line")

	return cmd
}
