package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ocrhub/pagetrack/internal/model"
	"github.com/ocrhub/pagetrack/internal/store"
)

// newLogCommand appends a stage execution record to a request.
func newLogCommand(opts *rootOptions) *cobra.Command {
	var (
		stage    string
		status   string
		host     string
		version  string
		message  string
		startStr string
		endStr   string
	)

	cmd := &cobra.Command{
		Use:   "log <request-uuid>",
		Short: "Append a stage execution log entry to a request",
		Long: `Append one stage execution record. The stage must be declared in the
request's pipeline. Corrections are made by appending another entry for the
same stage, never by rewriting history.

Example:
  pagetrack log 6b1f6e30-9c3a-4d54-8f2a-0c9a6f6f2b11 \
    --stage ocr --status success --host worker-07 --version v2.1.3 \
    --end 2024-06-01T12:00:09.5Z`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid request uuid %q: %w", args[0], err)
			}

			entry := model.StageLog{
				HostID:  host,
				Stage:   stage,
				Status:  model.StageStatus(status),
				Log:     message,
				Version: version,
			}
			if host == "" {
				if hostname, err := os.Hostname(); err == nil {
					entry.HostID = hostname
				}
			}

			entry.Start = time.Now().UTC()
			if startStr != "" {
				if entry.Start, err = time.Parse(time.RFC3339, startStr); err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
			}
			if endStr != "" {
				end, err := time.Parse(time.RFC3339, endStr)
				if err != nil {
					return fmt.Errorf("invalid --end: %w", err)
				}
				entry.End = &end
			}

			return opts.withStore(cmd, func(ctx context.Context, s store.Store) error {
				return s.AppendStageLog(ctx, id, entry)
			})
		},
	}

	cmd.Flags().StringVar(&stage, "stage", "", "pipeline stage name (required)")
	cmd.Flags().StringVar(&status, "status", "", "stage status: pending|running|success|failure|retrying (required)")
	cmd.Flags().StringVar(&host, "host", "", "worker host id (default: this hostname)")
	cmd.Flags().StringVar(&version, "version", "", "processing code version that ran the stage")
	cmd.Flags().StringVar(&message, "message", "", "free-text diagnostic output")
	cmd.Flags().StringVar(&startStr, "start", "", "stage start time, RFC 3339 (default: now)")
	cmd.Flags().StringVar(&endStr, "end", "", "stage end time, RFC 3339 (omit while in flight)")
	_ = cmd.MarkFlagRequired("stage")
	_ = cmd.MarkFlagRequired("status")

	return cmd
}
