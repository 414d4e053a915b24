package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ocrhub/pagetrack/internal/model"
	"github.com/ocrhub/pagetrack/internal/store"
)

// newResultCommand appends an artifact to a request's results.
func newResultCommand(opts *rootOptions) *cobra.Command {
	var (
		name string
		file string
	)

	cmd := &cobra.Command{
		Use:   "result <request-uuid>",
		Short: "Append a result artifact to a request",
		Long: `Append a named artifact to a request's result list. Content is read
from --file, or from stdin when --file is omitted.

Example:
  pagetrack result 6b1f6e30-9c3a-4d54-8f2a-0c9a6f6f2b11 --name page.xml --file out/page.xml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid request uuid %q: %w", args[0], err)
			}

			var content []byte
			if file != "" {
				content, err = os.ReadFile(file)
			} else {
				content, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("read artifact content: %w", err)
			}

			return opts.withStore(cmd, func(ctx context.Context, s store.Store) error {
				return s.AppendResult(ctx, id, model.Data{Name: name, Content: content})
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "artifact name (required)")
	cmd.Flags().StringVar(&file, "file", "", "file to read the artifact content from (default stdin)")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
